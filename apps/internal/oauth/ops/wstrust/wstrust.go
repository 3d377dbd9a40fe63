// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Package wstrust provides a client for communicating with a WS-Trust endpoint of a federated
identity provider. The SAML assertion it returns is exchanged for an access token with
accesstokens.Client.GetAccessTokenFromSamlGrant().
*/
package wstrust

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	adalErrors "github.com/AzureAD/azure-activedirectory-library-for-go/apps/errors"
	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/internal/logger"
	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/internal/oauth/ops/authority"
	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/internal/oauth/ops/internal/grant"
	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/internal/oauth/ops/wstrust/defs"
)

// AppliesTo is the relying party URN of Azure AD.
const AppliesTo = "urn:federation:MicrosoftOnline"

type xmlCaller interface {
	SOAPCall(ctx context.Context, endpoint, action string, headers http.Header, qv url.Values, body string, resp interface{}) error
}

// SamlTokenInfo is the assertion extracted from an RSTR.
type SamlTokenInfo struct {
	// AssertionType is the OAuth grant type the assertion is exchanged with.
	AssertionType string
	Assertion     string
}

// Client represents the REST calls to a WS-Trust endpoint.
type Client struct {
	// Comm provides the HTTP transport client.
	Comm   xmlCaller
	Logger *logger.Logger
}

// EndpointFromRealm returns the username/password endpoint advertised by a federated user realm.
func EndpointFromRealm(realm authority.UserRealm) (defs.Endpoint, error) {
	if realm.FederationActiveAuthURL == "" {
		return defs.Endpoint{}, errors.New("user realm has no federation_active_auth_url")
	}
	ep := defs.Endpoint{Version: defs.Trust13, URL: realm.FederationActiveAuthURL}
	if strings.Contains(strings.ToLower(realm.FederationActiveAuthURL), "/trust/2005/") {
		ep.Version = defs.Trust2005
	}
	return ep, nil
}

// GetSAMLTokenInfo sends an RST with the username and password of authParams to endpoint
// and returns the SAML assertion found in the response.
func (c Client) GetSAMLTokenInfo(ctx context.Context, authParams authority.AuthParams, cloudAudienceURN string, endpoint defs.Endpoint) (SamlTokenInfo, error) {
	if cloudAudienceURN == "" {
		cloudAudienceURN = AppliesTo
	}
	soapAction, err := endpoint.SOAPAction()
	if err != nil {
		return SamlTokenInfo{}, err
	}

	env, err := defs.NewEnvelope(endpoint, cloudAudienceURN, authParams.Username, authParams.Password, time.Now())
	if err != nil {
		return SamlTokenInfo{}, err
	}
	msg, err := env.Marshal()
	if err != nil {
		return SamlTokenInfo{}, fmt.Errorf("could not marshal the RST: %w", err)
	}
	if c.Logger != nil {
		redacted, _ := env.Redacted().Marshal()
		c.Logger.Log(ctx, logger.Debug, "sending RST", logger.Field("endpoint", endpoint.URL), logger.Field("rst", redacted))
	}

	resp := defs.SAMLDefinitions{}
	err = c.Comm.SOAPCall(ctx, endpoint.URL, soapAction, http.Header{}, nil, msg, &resp)
	if err != nil {
		return SamlTokenInfo{}, fmt.Errorf("WS-Trust RST to %s: %w", hostOf(endpoint.URL), err)
	}

	return c.samlAssertion(resp)
}

const (
	samlv1Assertion = "urn:oasis:names:tc:SAML:1.0:assertion"
	samlv2Assertion = "urn:oasis:names:tc:SAML:2.0:assertion"
)

func (c Client) samlAssertion(def defs.SAMLDefinitions) (SamlTokenInfo, error) {
	if f := def.Body.Fault; f != nil {
		code := f.Code.Subcode.Value
		if code == "" {
			code = f.Code.Value
		}
		return SamlTokenInfo{}, &adalErrors.WSTrustFaultError{Code: code, Reason: strings.Join(f.Reason.Text, " ")}
	}

	responses := def.Body.RequestSecurityTokenResponseCollection.RequestSecurityTokenResponse
	responses = append(responses, def.Body.RequestSecurityTokenResponse...)
	for _, tokenResponse := range responses {
		token := tokenResponse.RequestedSecurityToken
		if token.Assertion.XMLName.Local == "" {
			continue
		}
		assertion := strings.TrimSpace(token.AssertionRawXML)

		samlVersion := token.Assertion.XMLName.Space
		if samlVersion == "" {
			samlVersion = token.Assertion.Saml
		}
		switch samlVersion {
		case samlv1Assertion:
			return SamlTokenInfo{AssertionType: grant.SAMLV1, Assertion: assertion}, nil
		case samlv2Assertion:
			return SamlTokenInfo{AssertionType: grant.SAMLV2, Assertion: assertion}, nil
		}
		return SamlTokenInfo{}, fmt.Errorf("couldn't parse SAML assertion, version unknown: %q", samlVersion)
	}
	return SamlTokenInfo{}, errors.New("the RSTR did not contain a SAML assertion")
}

func hostOf(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	return u.Host
}
