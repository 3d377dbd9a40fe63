// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package adal

import (
	"context"

	"golang.org/x/oauth2"
)

// AcquireFunc acquires a token. It is usually a closure over one of the AuthenticationContext
// AcquireToken methods.
type AcquireFunc func(ctx context.Context) (Token, error)

// TokenSource is an oauth2.TokenSource backed by an AcquireFunc. Every call to Token runs
// the AcquireFunc, which serves from the cache while the token is valid.
type TokenSource struct {
	ctx     context.Context
	acquire AcquireFunc
}

// Token implements oauth2.TokenSource.
func (ts *TokenSource) Token() (*oauth2.Token, error) {
	t, err := ts.acquire(ts.ctx)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.ExpiresOn,
	}, nil
}

// NewTokenSource returns an oauth2.TokenSource that holds on to the token acquire returns
// until it expires. ctx is used for every acquisition.
func NewTokenSource(ctx context.Context, acquire AcquireFunc) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, &TokenSource{ctx: ctx, acquire: acquire})
}

// ClientCredentialsTokenSource returns a token source for app only tokens acquired with clientSecret.
func (ac *AuthenticationContext) ClientCredentialsTokenSource(ctx context.Context, resource, clientID, clientSecret string) oauth2.TokenSource {
	return NewTokenSource(ctx, func(ctx context.Context) (Token, error) {
		return ac.AcquireTokenWithClientCredentials(ctx, resource, clientID, clientSecret)
	})
}
