// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package fake provides fake implementations of the REST clients used by package oauth.
package fake

import (
	"context"
	"errors"
	"sync"

	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/internal/oauth/ops/accesstokens"
	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/internal/oauth/ops/authority"
	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/internal/oauth/ops/wstrust"
	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/internal/oauth/ops/wstrust/defs"
)

// AccessTokens is a fake implementation of the accessTokens interface.
type AccessTokens struct {
	// Err, when true, makes every call fail.
	Err bool
	// Result is handed out in order by GetAccessTokenFromDeviceCodeResult.
	Result []error
	// Token is returned by successful calls.
	Token accesstokens.TokenResponse

	mu    sync.Mutex
	Calls []string
}

func (f *AccessTokens) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, name)
	if f.Err {
		return errors.New("error")
	}
	return nil
}

func (f *AccessTokens) respond(name string) (accesstokens.TokenResponse, error) {
	if err := f.record(name); err != nil {
		return accesstokens.TokenResponse{}, err
	}
	return f.Token, nil
}

func (f *AccessTokens) GetAccessTokenFromUsernamePassword(ctx context.Context, authParams authority.AuthParams) (accesstokens.TokenResponse, error) {
	return f.respond("password")
}

func (f *AccessTokens) GetAccessTokenFromAuthCode(ctx context.Context, authParams authority.AuthParams, code string, cc *accesstokens.Credential) (accesstokens.TokenResponse, error) {
	return f.respond("authcode")
}

func (f *AccessTokens) GetAccessTokenFromRefreshToken(ctx context.Context, authParams authority.AuthParams, cc *accesstokens.Credential, refreshToken string) (accesstokens.TokenResponse, error) {
	return f.respond("refresh")
}

func (f *AccessTokens) GetAccessTokenWithClientSecret(ctx context.Context, authParams authority.AuthParams, clientSecret string) (accesstokens.TokenResponse, error) {
	return f.respond("secret")
}

func (f *AccessTokens) GetAccessTokenWithAssertion(ctx context.Context, authParams authority.AuthParams, assertion string) (accesstokens.TokenResponse, error) {
	return f.respond("assertion")
}

func (f *AccessTokens) GetDeviceCodeResult(ctx context.Context, authParams authority.AuthParams) (accesstokens.DeviceCodeResponse, error) {
	if err := f.record("devicecode"); err != nil {
		return accesstokens.DeviceCodeResponse{}, err
	}
	return accesstokens.DeviceCodeResponse{DeviceCode: "device", UserCode: "user"}, nil
}

func (f *AccessTokens) GetAccessTokenFromDeviceCodeResult(ctx context.Context, authParams authority.AuthParams, deviceCode string) (accesstokens.TokenResponse, error) {
	if err := f.record("devicecodetoken"); err != nil {
		return accesstokens.TokenResponse{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Result) > 0 {
		err := f.Result[0]
		f.Result = f.Result[1:]
		if err != nil {
			return accesstokens.TokenResponse{}, err
		}
	}
	return f.Token, nil
}

func (f *AccessTokens) GetAccessTokenFromSamlGrant(ctx context.Context, authParams authority.AuthParams, samlGrant wstrust.SamlTokenInfo) (accesstokens.TokenResponse, error) {
	return f.respond("saml")
}

// Authority is a fake implementation of the fetchAuthority interface.
type Authority struct {
	Err   bool
	Realm authority.UserRealm
}

func (f Authority) UserRealm(ctx context.Context, params authority.AuthParams) (authority.UserRealm, error) {
	if f.Err {
		return authority.UserRealm{}, errors.New("error")
	}
	return f.Realm, nil
}

// WSTrust is a fake implementation of the fetchWSTrust interface.
type WSTrust struct {
	GetSAMLTokenInfoErr bool
	// Endpoint records the endpoint of the last call.
	Endpoint *defs.Endpoint
}

func (f WSTrust) GetSAMLTokenInfo(ctx context.Context, authParams authority.AuthParams, cloudAudienceURN string, endpoint defs.Endpoint) (wstrust.SamlTokenInfo, error) {
	if f.Endpoint != nil {
		*f.Endpoint = endpoint
	}
	if f.GetSAMLTokenInfoErr {
		return wstrust.SamlTokenInfo{}, errors.New("error")
	}
	return wstrust.SamlTokenInfo{AssertionType: "urn:ietf:params:oauth:grant-type:saml1_1-bearer", Assertion: "<saml/>"}, nil
}
