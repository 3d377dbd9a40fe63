// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Package accesstokens exposes a REST client for querying the v1 token endpoint of an authority
to get various types of access tokens (oauth) for use in authentication.

These calls are of type "application/x-www-form-urlencoded".  This means we use url.Values to
represent arguments and then encode them into the POST body message.  We receive JSON in
return for the requests.  The request definition is defined in https://tools.ietf.org/html/rfc7521#section-4.2 .
*/
package accesstokens

import (
	"context"
	"crypto"

	/* #nosec */
	"crypto/sha1"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/errors"
	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/internal/oauth/ops/authority"
	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/internal/oauth/ops/internal/grant"
	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/internal/oauth/ops/wstrust"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	grantType  = "grant_type"
	clientID   = "client_id"
	resource   = "resource"
	username   = "username"
	password   = "password"
	apiVersion = "api-version"

	// jwtLifetime is how long a self signed client assertion is valid.
	jwtLifetime = 10 * time.Minute
)

type urlFormCaller interface {
	URLFormCall(ctx context.Context, endpoint string, qv url.Values, resp interface{}) error
}

// Credential represents the credential used in confidential client flows. This can be either
// a Secret or Cert/Key.
type Credential struct {
	// Secret contains the credential secret if we are doing auth by secret.
	Secret string

	// Cert is the public x509 certificate if we are doing any auth other than secret.
	Cert *x509.Certificate
	// Key is the private key for signing if we are doing any auth other than secret.
	Key crypto.PrivateKey
}

// JWT returns a new client assertion signed with the credential's key. Each call produces
// an assertion with a fresh jti.
func (c *Credential) JWT(authParams authority.AuthParams) (string, error) {
	if c.Cert == nil || c.Key == nil {
		return "", stdErrors.New("a certificate and a private key are required to sign a client assertion")
	}
	now := time.Now()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"aud": authParams.Endpoints.TokenEndpoint,
		"exp": now.Add(jwtLifetime).Unix(),
		"iss": authParams.ClientID,
		"jti": uuid.New().String(),
		"nbf": now.Unix(),
		"sub": authParams.ClientID,
	})
	token.Header = map[string]interface{}{
		"alg": "RS256",
		"typ": "JWT",
		"x5t": base64.RawURLEncoding.EncodeToString(thumbprint(c.Cert)),
	}

	assertion, err := token.SignedString(c.Key)
	if err != nil {
		return "", fmt.Errorf("unable to sign a JWT token using private key: %w", err)
	}
	return assertion, nil
}

// thumbprint runs the asn1.Der bytes through sha1 for use in the x5t parameter of JWT.
// https://tools.ietf.org/html/rfc7517#section-4.8
func thumbprint(cert *x509.Certificate) []byte {
	/* #nosec */
	a := sha1.Sum(cert.Raw)
	return a[:]
}

// Client represents the REST calls to get tokens from token generator backends.
type Client struct {
	// Comm provides the HTTP transport client.
	Comm urlFormCaller
	// now is replaced in tests.
	now func() time.Time
}

func (c Client) timeNow() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}

// GetAccessTokenFromUsernamePassword uses a username and password to get an access token.
func (c Client) GetAccessTokenFromUsernamePassword(ctx context.Context, authParams authority.AuthParams) (TokenResponse, error) {
	qv := url.Values{}
	qv.Set(grantType, grant.Password)
	qv.Set(username, authParams.Username)
	qv.Set(password, authParams.Password)
	qv.Set(clientID, authParams.ClientID)
	addResourceParam(qv, authParams)

	return c.doTokenResp(ctx, authParams, qv)
}

// GetAccessTokenFromAuthCode uses an authorization code to retrieve an access token. cc is nil
// for public clients.
func (c Client) GetAccessTokenFromAuthCode(ctx context.Context, authParams authority.AuthParams, code string, cc *Credential) (TokenResponse, error) {
	qv, err := prepURLVals(cc, authParams)
	if err != nil {
		return TokenResponse{}, err
	}
	qv.Set(grantType, grant.AuthCode)
	qv.Set("code", code)
	qv.Set("redirect_uri", authParams.Redirecturi)
	qv.Set(clientID, authParams.ClientID)
	addResourceParam(qv, authParams)

	return c.doTokenResp(ctx, authParams, qv)
}

// GetAccessTokenFromRefreshToken uses a refresh token (for refreshing credentials) to get a new access token.
// cc is nil for public clients.
func (c Client) GetAccessTokenFromRefreshToken(ctx context.Context, authParams authority.AuthParams, cc *Credential, refreshToken string) (TokenResponse, error) {
	qv, err := prepURLVals(cc, authParams)
	if err != nil {
		return TokenResponse{}, err
	}
	qv.Set(grantType, grant.RefreshToken)
	qv.Set(clientID, authParams.ClientID)
	qv.Set("refresh_token", refreshToken)
	addResourceParam(qv, authParams)

	return c.doTokenResp(ctx, authParams, qv)
}

// GetAccessTokenWithClientSecret uses a client's secret (aka password) to get a new token.
func (c Client) GetAccessTokenWithClientSecret(ctx context.Context, authParams authority.AuthParams, clientSecret string) (TokenResponse, error) {
	qv := url.Values{}
	qv.Set(grantType, grant.ClientCredential)
	qv.Set("client_secret", clientSecret)
	qv.Set(clientID, authParams.ClientID)
	addResourceParam(qv, authParams)

	token, err := c.doTokenResp(ctx, authParams, qv)
	if err != nil {
		return token, fmt.Errorf("GetAccessTokenWithClientSecret(): %w", err)
	}
	return token, nil
}

// GetAccessTokenWithAssertion uses a signed client assertion to get a new token.
func (c Client) GetAccessTokenWithAssertion(ctx context.Context, authParams authority.AuthParams, assertion string) (TokenResponse, error) {
	qv := url.Values{}
	qv.Set(grantType, grant.ClientCredential)
	qv.Set("client_assertion_type", grant.ClientAssertion)
	qv.Set("client_assertion", assertion)
	qv.Set(clientID, authParams.ClientID)
	addResourceParam(qv, authParams)

	token, err := c.doTokenResp(ctx, authParams, qv)
	if err != nil {
		return token, fmt.Errorf("GetAccessTokenWithAssertion(): %w", err)
	}
	return token, nil
}

// GetDeviceCodeResult requests a user code from the device code endpoint.
func (c Client) GetDeviceCodeResult(ctx context.Context, authParams authority.AuthParams) (DeviceCodeResponse, error) {
	qv := url.Values{}
	qv.Set(clientID, authParams.ClientID)
	addResourceParam(qv, authParams)
	if authParams.Language != "" {
		qv.Set("mkt", authParams.Language)
	}

	endpoint := withAPIVersion(authParams.Endpoints.DeviceCodeEndpoint)
	resp := DeviceCodeResponse{}
	if err := c.Comm.URLFormCall(ctx, endpoint, qv, &resp); err != nil {
		return DeviceCodeResponse{}, classifyErr("Get Device Code", endpoint, err)
	}
	return resp, nil
}

// GetAccessTokenFromDeviceCodeResult polls the token endpoint once for deviceCode.
func (c Client) GetAccessTokenFromDeviceCodeResult(ctx context.Context, authParams authority.AuthParams, deviceCode string) (TokenResponse, error) {
	qv := url.Values{}
	qv.Set(grantType, grant.DeviceCode)
	qv.Set(clientID, authParams.ClientID)
	qv.Set("code", deviceCode)
	addResourceParam(qv, authParams)

	return c.doTokenResp(ctx, authParams, qv)
}

// GetAccessTokenFromSamlGrant exchanges a SAML assertion from a federated identity provider for a token.
func (c Client) GetAccessTokenFromSamlGrant(ctx context.Context, authParams authority.AuthParams, samlGrant wstrust.SamlTokenInfo) (TokenResponse, error) {
	qv := url.Values{}
	qv.Set(clientID, authParams.ClientID)
	qv.Set("scope", "openid")
	qv.Set("assertion", base64.StdEncoding.WithPadding(base64.StdPadding).EncodeToString([]byte(samlGrant.Assertion)))
	addResourceParam(qv, authParams)

	switch samlGrant.AssertionType {
	case grant.SAMLV1, grant.SAMLV2:
		qv.Set(grantType, samlGrant.AssertionType)
	default:
		return TokenResponse{}, fmt.Errorf("GetAccessTokenFromSamlGrant returned unknown SAML assertion type: %q", samlGrant.AssertionType)
	}

	return c.doTokenResp(ctx, authParams, qv)
}

func (c Client) doTokenResp(ctx context.Context, authParams authority.AuthParams, qv url.Values) (TokenResponse, error) {
	endpoint := withAPIVersion(authParams.Endpoints.TokenEndpoint)

	resp := TokenResponseJSONPayload{}
	if err := c.Comm.URLFormCall(ctx, endpoint, qv, &resp); err != nil {
		return TokenResponse{}, classifyErr("Get Token", endpoint, err)
	}
	return NewTokenResponse(resp, c.timeNow())
}

// classifyErr turns a transport error into the error type callers match on.
func classifyErr(op, endpoint string, err error) error {
	host := hostOf(endpoint)

	var pe *errors.ParseError
	if stdErrors.As(err, &pe) {
		return &errors.ParseError{Op: "The token response returned from the server is unparseable as JSON", Err: pe.Err}
	}

	var ce errors.CallErr
	if !stdErrors.As(err, &ce) || ce.Resp == nil {
		return fmt.Errorf("%s request to %s failed: %w", op, host, err)
	}

	body := []byte{}
	if ce.Resp.Body != nil {
		body, _ = io.ReadAll(ce.Resp.Body)
	}
	base := authority.OAuthResponseBase{}
	if json.Unmarshal(body, &base) == nil && base.Error != "" {
		return &errors.OAuthError{
			Op:            op,
			StatusCode:    ce.Resp.StatusCode,
			Code:          base.Error,
			Description:   base.ErrorDescription,
			ErrorCodes:    base.ErrorCodes,
			CorrelationID: base.CorrelationID,
			Host:          host,
		}
	}
	return &errors.ProtocolError{Op: op, StatusCode: ce.Resp.StatusCode, Host: host, Body: string(body)}
}

// prepURLVals returns an url.Values that sets various key/values if we are doing secrets
// or JWT assertions. A nil cc is a public client and sets nothing.
func prepURLVals(cc *Credential, authParams authority.AuthParams) (url.Values, error) {
	params := url.Values{}
	if cc == nil {
		return params, nil
	}
	if cc.Secret != "" {
		params.Set("client_secret", cc.Secret)
		return params, nil
	}

	jwt, err := cc.JWT(authParams)
	if err != nil {
		return nil, err
	}
	params.Set("client_assertion", jwt)
	params.Set("client_assertion_type", grant.ClientAssertion)
	return params, nil
}

func addResourceParam(qv url.Values, authParams authority.AuthParams) {
	if authParams.Resource != "" {
		qv.Set(resource, authParams.Resource)
	}
}

func withAPIVersion(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	q := u.Query()
	q.Set(apiVersion, authority.APIVersion)
	u.RawQuery = q.Encode()
	return u.String()
}

func hostOf(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	return u.Host
}
