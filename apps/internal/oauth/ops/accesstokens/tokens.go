// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package accesstokens

import (
	"fmt"
	"time"

	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/cache"
	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/errors"
	internalTime "github.com/AzureAD/azure-activedirectory-library-for-go/apps/internal/json/types/time"
	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/internal/oauth/ops/authority"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenResponseJSONPayload is the JSON body of a successful token endpoint reply.
type TokenResponseJSONPayload struct {
	authority.OAuthResponseBase

	TokenType    string               `json:"token_type"`
	AccessToken  string               `json:"access_token"`
	RefreshToken string               `json:"refresh_token"`
	ExpiresIn    internalTime.Seconds `json:"expires_in"`
	ExpiresOn    internalTime.Unix    `json:"expires_on"`
	CreatedOn    internalTime.Unix    `json:"created_on"`
	NotBefore    internalTime.Unix    `json:"not_before"`
	Resource     string               `json:"resource"`
	Scope        string               `json:"scope"`
	IDToken      string               `json:"id_token"`
}

// IDToken holds the claims of an id_token that are surfaced to callers.
// https://docs.microsoft.com/azure/active-directory/develop/id-tokens .
type IDToken struct {
	jwt.RegisteredClaims

	UPN              string `json:"upn,omitempty"`
	Email            string `json:"email,omitempty"`
	TenantID         string `json:"tid,omitempty"`
	GivenName        string `json:"given_name,omitempty"`
	FamilyName       string `json:"family_name,omitempty"`
	Oid              string `json:"oid,omitempty"`
	IdentityProvider string `json:"idp,omitempty"`

	RawToken string `json:"-"`
}

// NewIDToken decodes the payload of an id_token. The signature is not verified; the token
// came from the token endpoint over TLS.
func NewIDToken(raw string) (IDToken, error) {
	idToken := IDToken{}
	parser := jwt.NewParser(jwt.WithPaddingAllowed())
	if _, _, err := parser.ParseUnverified(raw, &idToken); err != nil {
		return IDToken{}, fmt.Errorf("id token returned from server is invalid: %w", err)
	}
	idToken.RawToken = raw
	return idToken, nil
}

// UserID returns the user id to cache the token under, and whether it is fit to display.
// upn is preferred, then email, then the subject. Without any of these a random id is used.
func (i IDToken) UserID() (string, bool) {
	switch {
	case i.UPN != "":
		return i.UPN, true
	case i.Email != "":
		return i.Email, true
	case i.Subject != "":
		return i.Subject, false
	}
	return uuid.New().String(), false
}

// Identity is the user identity carried by a token response.
type Identity struct {
	UserID string
	Claims cache.IdentityClaims
}

// TokenResponse is the information that is returned from a token endpoint during a token acquisition flow.
type TokenResponse struct {
	authority.OAuthResponseBase

	TokenType    string
	AccessToken  string
	RefreshToken string
	ExpiresOn    time.Time
	CreatedOn    time.Time
	// Resource is the resource echoed by the server, empty when the server did not echo one.
	Resource string
	IDToken  IDToken
	// Identity is nil when the response had no usable id_token.
	Identity *Identity
}

// HasRefreshToken checks if the TokenResponse has an refresh token.
func (tr TokenResponse) HasRefreshToken() bool {
	return len(tr.RefreshToken) > 0
}

// NewTokenResponse validates payload and converts it into a TokenResponse. now is the time
// the reply was received and anchors expires_in.
func NewTokenResponse(payload TokenResponseJSONPayload, now time.Time) (TokenResponse, error) {
	if payload.TokenType == "" {
		return TokenResponse{}, &errors.ValidationError{Msg: "wireResponse is missing token_type"}
	}
	if payload.AccessToken == "" {
		return TokenResponse{}, &errors.ValidationError{Msg: "wireResponse missing access_token"}
	}

	expiresOn := payload.ExpiresOn.T
	if payload.ExpiresIn.Set {
		expiresOn = now.Add(payload.ExpiresIn.Duration())
	}

	tr := TokenResponse{
		OAuthResponseBase: payload.OAuthResponseBase,
		TokenType:         payload.TokenType,
		AccessToken:       payload.AccessToken,
		RefreshToken:      payload.RefreshToken,
		ExpiresOn:         expiresOn,
		CreatedOn:         payload.CreatedOn.T,
		Resource:          payload.Resource,
	}

	// ID tokens aren't always returned, which is not a reportable error condition.
	if payload.IDToken != "" {
		if idToken, err := NewIDToken(payload.IDToken); err == nil {
			userID, displayable := idToken.UserID()
			tr.IDToken = idToken
			tr.Identity = &Identity{
				UserID: userID,
				Claims: cache.IdentityClaims{
					TenantID:            idToken.TenantID,
					GivenName:           idToken.GivenName,
					FamilyName:          idToken.FamilyName,
					IsUserIDDisplayable: displayable,
					IdentityProvider:    idToken.IdentityProvider,
					ObjectID:            idToken.Oid,
				},
			}
		}
	}
	return tr, nil
}

// DeviceCodeResponse represents the HTTP response received from the device code endpoint
type DeviceCodeResponse struct {
	authority.OAuthResponseBase

	UserCode        string               `json:"user_code"`
	DeviceCode      string               `json:"device_code"`
	VerificationURL string               `json:"verification_url"`
	ExpiresIn       internalTime.Seconds `json:"expires_in"`
	Interval        internalTime.Seconds `json:"interval"`
	Message         string               `json:"message"`
}
