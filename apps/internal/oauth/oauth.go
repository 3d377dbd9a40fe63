// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package oauth is the protocol façade used by token requests. It picks the wire exchange
// for each grant and hides the individual REST clients behind one type.
package oauth

import (
	"context"
	"fmt"
	"time"

	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/internal/logger"
	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/internal/oauth/ops"
	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/internal/oauth/ops/accesstokens"
	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/internal/oauth/ops/authority"
	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/internal/oauth/ops/wstrust"
	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/internal/oauth/ops/wstrust/defs"
)

type accessTokens interface {
	GetAccessTokenFromUsernamePassword(ctx context.Context, authParams authority.AuthParams) (accesstokens.TokenResponse, error)
	GetAccessTokenFromAuthCode(ctx context.Context, authParams authority.AuthParams, code string, cc *accesstokens.Credential) (accesstokens.TokenResponse, error)
	GetAccessTokenFromRefreshToken(ctx context.Context, authParams authority.AuthParams, cc *accesstokens.Credential, refreshToken string) (accesstokens.TokenResponse, error)
	GetAccessTokenWithClientSecret(ctx context.Context, authParams authority.AuthParams, clientSecret string) (accesstokens.TokenResponse, error)
	GetAccessTokenWithAssertion(ctx context.Context, authParams authority.AuthParams, assertion string) (accesstokens.TokenResponse, error)
	GetDeviceCodeResult(ctx context.Context, authParams authority.AuthParams) (accesstokens.DeviceCodeResponse, error)
	GetAccessTokenFromDeviceCodeResult(ctx context.Context, authParams authority.AuthParams, deviceCode string) (accesstokens.TokenResponse, error)
	GetAccessTokenFromSamlGrant(ctx context.Context, authParams authority.AuthParams, samlGrant wstrust.SamlTokenInfo) (accesstokens.TokenResponse, error)
}

type fetchAuthority interface {
	UserRealm(ctx context.Context, authParams authority.AuthParams) (authority.UserRealm, error)
}

type fetchWSTrust interface {
	GetSAMLTokenInfo(ctx context.Context, authParams authority.AuthParams, cloudAudienceURN string, endpoint defs.Endpoint) (wstrust.SamlTokenInfo, error)
}

// Client provides tokens for various types of token requests.
type Client struct {
	accessTokens accessTokens
	authority    fetchAuthority
	wsTrust      fetchWSTrust
	log          *logger.Logger
}

// New is the constructor for Client. realmTTL is how long user realm lookups are cached.
func New(httpClient ops.HTTPClient, log *logger.Logger, realmTTL time.Duration) *Client {
	r := ops.New(httpClient, log, realmTTL)
	return &Client{
		accessTokens: r.AccessTokens(),
		authority:    r.Authority(),
		wsTrust:      r.WSTrust(),
		log:          log,
	}
}

// AuthCode returns a token based on an authorization code. cred is nil for public clients.
func (t *Client) AuthCode(ctx context.Context, authParams authority.AuthParams, code string, cred *accesstokens.Credential) (accesstokens.TokenResponse, error) {
	tr, err := t.accessTokens.GetAccessTokenFromAuthCode(ctx, authParams, code, cred)
	if err != nil {
		return accesstokens.TokenResponse{}, fmt.Errorf("could not retrieve token from auth code: %w", err)
	}
	return tr, nil
}

// Credential acquires a token from the authority using a client credentials grant.
func (t *Client) Credential(ctx context.Context, authParams authority.AuthParams, cred *accesstokens.Credential) (accesstokens.TokenResponse, error) {
	if cred.Secret != "" {
		return t.accessTokens.GetAccessTokenWithClientSecret(ctx, authParams, cred.Secret)
	}

	jwt, err := cred.JWT(authParams)
	if err != nil {
		return accesstokens.TokenResponse{}, err
	}
	return t.accessTokens.GetAccessTokenWithAssertion(ctx, authParams, jwt)
}

// Refresh redeems a refresh token. cred is nil for public clients.
func (t *Client) Refresh(ctx context.Context, authParams authority.AuthParams, cred *accesstokens.Credential, refreshToken string) (accesstokens.TokenResponse, error) {
	return t.accessTokens.GetAccessTokenFromRefreshToken(ctx, authParams, cred, refreshToken)
}

// UsernamePassword retrieves a token where a username and password is used. Federated
// accounts go through the identity provider's WS-Trust endpoint first.
func (t *Client) UsernamePassword(ctx context.Context, authParams authority.AuthParams) (accesstokens.TokenResponse, error) {
	userRealm, err := t.authority.UserRealm(ctx, authParams)
	if err != nil {
		return accesstokens.TokenResponse{}, err
	}

	switch userRealm.AccountType {
	case authority.Federated:
		t.log.Log(ctx, logger.Info, "user realm is federated", logger.Field("domain", userRealm.DomainName))
		endpoint, err := wstrust.EndpointFromRealm(userRealm)
		if err != nil {
			return accesstokens.TokenResponse{}, err
		}
		saml, err := t.wsTrust.GetSAMLTokenInfo(ctx, authParams, userRealm.CloudAudienceURN, endpoint)
		if err != nil {
			return accesstokens.TokenResponse{}, err
		}
		return t.accessTokens.GetAccessTokenFromSamlGrant(ctx, authParams, saml)
	case authority.Managed:
		return t.accessTokens.GetAccessTokenFromUsernamePassword(ctx, authParams)
	}
	return accesstokens.TokenResponse{}, fmt.Errorf("unknown account type: %s", userRealm.AccountType)
}

// DeviceCode requests a user code that the user enters at the verification URL.
func (t *Client) DeviceCode(ctx context.Context, authParams authority.AuthParams) (accesstokens.DeviceCodeResponse, error) {
	dc, err := t.accessTokens.GetDeviceCodeResult(ctx, authParams)
	if err != nil {
		return accesstokens.DeviceCodeResponse{}, err
	}
	if dc.Error != "" {
		return accesstokens.DeviceCodeResponse{}, fmt.Errorf("device code endpoint returned %s: %s", dc.Error, dc.ErrorDescription)
	}
	return dc, nil
}

// DeviceCodeToken makes a single token request for deviceCode. While the user has not
// finished signing in the error is an *errors.OAuthError with code authorization_pending.
func (t *Client) DeviceCodeToken(ctx context.Context, authParams authority.AuthParams, deviceCode string) (accesstokens.TokenResponse, error) {
	return t.accessTokens.GetAccessTokenFromDeviceCodeResult(ctx, authParams, deviceCode)
}
