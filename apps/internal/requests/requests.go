// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Package requests orchestrates token acquisition. A TokenRequest decides for each grant
whether the token can come from the cache, needs a silent refresh, or requires a full
exchange with the authority, and stores whatever the authority returns.
*/
package requests

import (
	"context"
	"crypto"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/cache"
	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/errors"
	internalCache "github.com/AzureAD/azure-activedirectory-library-for-go/apps/internal/cache"
	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/internal/logger"
	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/internal/oauth/ops/accesstokens"
	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/internal/oauth/ops/authority"
)

// Protocol performs the wire exchanges. It is implemented by *oauth.Client.
type Protocol interface {
	AuthCode(ctx context.Context, authParams authority.AuthParams, code string, cred *accesstokens.Credential) (accesstokens.TokenResponse, error)
	Credential(ctx context.Context, authParams authority.AuthParams, cred *accesstokens.Credential) (accesstokens.TokenResponse, error)
	Refresh(ctx context.Context, authParams authority.AuthParams, cred *accesstokens.Credential, refreshToken string) (accesstokens.TokenResponse, error)
	UsernamePassword(ctx context.Context, authParams authority.AuthParams) (accesstokens.TokenResponse, error)
	DeviceCode(ctx context.Context, authParams authority.AuthParams) (accesstokens.DeviceCodeResponse, error)
	DeviceCodeToken(ctx context.Context, authParams authority.AuthParams, deviceCode string) (accesstokens.TokenResponse, error)
}

// Context is the state shared by every request made through one authentication context.
type Context struct {
	authorityInfo authority.Info
	cache         cache.Cache
	protocol      Protocol
	log           *logger.Logger

	shared *internalCache.Shared
	polls  *pollRegistry

	// PollUnit is the length of one second of a device code interval. Tests shorten it.
	PollUnit time.Duration
}

// NewContext creates a Context. A nil log discards everything.
func NewContext(info authority.Info, c cache.Cache, p Protocol, log *logger.Logger) *Context {
	if log == nil {
		log = logger.Nop()
	}
	return &Context{
		authorityInfo: info,
		cache:         c,
		protocol:      p,
		log:           log,
		shared:        internalCache.SharedFor(c),
		polls:         newPollRegistry(),
		PollUnit:      time.Second,
	}
}

// AuthorityInfo returns the authority the context was created for.
func (c *Context) AuthorityInfo() authority.Info {
	return c.authorityInfo
}

// TokenRequest is a single token acquisition for a client and resource.
type TokenRequest struct {
	ctx      *Context
	clientID string
	resource string
	policy   string
}

// NewTokenRequest creates a TokenRequest for clientID and resource.
func (c *Context) NewTokenRequest(clientID, resource string) *TokenRequest {
	return &TokenRequest{ctx: c, clientID: clientID, resource: resource}
}

// WithPolicy scopes the request's cache reads and writes to a B2C style policy.
// Entries stored under one policy are never returned for another, or for none.
func (r *TokenRequest) WithPolicy(policy string) *TokenRequest {
	r.policy = policy
	return r
}

func (r *TokenRequest) authParams() authority.AuthParams {
	p := authority.NewAuthParams(r.clientID, r.ctx.authorityInfo)
	p.Resource = r.resource
	p.Policy = r.policy
	return p
}

func (r *TokenRequest) driver(cred *accesstokens.Credential) *internalCache.Driver {
	return internalCache.NewDriver(
		r.ctx.authorityInfo.CanonicalAuthorityURI,
		r.resource,
		r.clientID,
		r.policy,
		r.ctx.cache,
		r.refreshFunc(cred),
		r.ctx.log,
		r.ctx.shared,
	)
}

func (r *TokenRequest) refreshFunc(cred *accesstokens.Credential) internalCache.RefreshFunc {
	return func(ctx context.Context, entry cache.Entry, resource string) (accesstokens.TokenResponse, error) {
		params := r.authParams()
		params.Resource = resource
		return r.ctx.protocol.Refresh(ctx, params, cred, entry.RefreshToken)
	}
}

func (r *TokenRequest) log(ctx context.Context, msg string, fields ...logger.KV) {
	fields = append(fields, logger.Field("client_id", r.clientID), logger.Field("resource", r.resource))
	r.ctx.log.Log(ctx, logger.Info, msg, fields...)
}

// findOrAcquire serves from the cache when it can and otherwise runs acquire and stores its result.
func (r *TokenRequest) findOrAcquire(ctx context.Context, userID string, cred *accesstokens.Credential, acquire func() (accesstokens.TokenResponse, error)) (cache.Entry, error) {
	d := r.driver(cred)
	entry, found, err := d.Find(ctx, userID)
	if err != nil {
		return cache.Entry{}, err
	}
	if found {
		return entry, nil
	}
	r.log(ctx, "no usable cached token, requesting a new one")
	return r.acquire(ctx, d, acquire)
}

func (r *TokenRequest) acquire(ctx context.Context, d *internalCache.Driver, acquire func() (accesstokens.TokenResponse, error)) (cache.Entry, error) {
	resp, err := acquire()
	if err != nil {
		r.ctx.log.Log(ctx, logger.Err, "token request failed", logger.Field("error", err))
		return cache.Entry{}, err
	}
	return d.ManageCache(ctx, resp)
}

// GetTokenFromCacheWithRefresh returns a cached token for userID, refreshing it if needed.
// Nothing but the refresh is sent to the authority.
func (r *TokenRequest) GetTokenFromCacheWithRefresh(ctx context.Context, userID string) (cache.Entry, error) {
	r.log(ctx, "getting token from cache with refresh")
	entry, found, err := r.driver(nil).Find(ctx, userID)
	if err != nil {
		return cache.Entry{}, err
	}
	if !found {
		return cache.Entry{}, fmt.Errorf("%w: no token for user %q, client %q and resource %q", errors.ErrNotFound, userID, r.clientID, r.resource)
	}
	return entry, nil
}

// GetTokenWithUsernamePassword acquires a token with the resource owner password flow.
// Federated users are authenticated by their identity provider over WS-Trust.
func (r *TokenRequest) GetTokenWithUsernamePassword(ctx context.Context, username, password string) (cache.Entry, error) {
	switch {
	case username == "":
		return cache.Entry{}, errors.Required("username")
	case password == "":
		return cache.Entry{}, errors.Required("password")
	}
	r.log(ctx, "acquiring token with username and password")

	return r.findOrAcquire(ctx, username, nil, func() (accesstokens.TokenResponse, error) {
		params := r.authParams()
		params.Username = username
		params.Password = password
		return r.ctx.protocol.UsernamePassword(ctx, params)
	})
}

// GetTokenWithClientCredentials acquires an app only token with a client secret.
func (r *TokenRequest) GetTokenWithClientCredentials(ctx context.Context, secret string) (cache.Entry, error) {
	if secret == "" {
		return cache.Entry{}, errors.Required("clientSecret")
	}
	r.log(ctx, "acquiring token with client credentials")
	return r.clientCredential(ctx, &accesstokens.Credential{Secret: secret})
}

// GetTokenWithCertificate acquires an app only token with a client assertion signed by key.
func (r *TokenRequest) GetTokenWithCertificate(ctx context.Context, cert *x509.Certificate, key crypto.PrivateKey) (cache.Entry, error) {
	switch {
	case cert == nil:
		return cache.Entry{}, errors.Required("certificate")
	case key == nil:
		return cache.Entry{}, errors.Required("key")
	}
	r.log(ctx, "acquiring token with certificate")
	return r.clientCredential(ctx, &accesstokens.Credential{Cert: cert, Key: key})
}

func (r *TokenRequest) clientCredential(ctx context.Context, cred *accesstokens.Credential) (cache.Entry, error) {
	return r.findOrAcquire(ctx, "", cred, func() (accesstokens.TokenResponse, error) {
		return r.ctx.protocol.Credential(ctx, r.authParams(), cred)
	})
}

// GetTokenWithAuthorizationCode redeems an authorization code. Codes are single use, so the
// cache is only written to. secret is empty for public clients.
func (r *TokenRequest) GetTokenWithAuthorizationCode(ctx context.Context, code, redirectURI, secret string) (cache.Entry, error) {
	switch {
	case code == "":
		return cache.Entry{}, errors.Required("authorizationCode")
	case redirectURI == "":
		return cache.Entry{}, errors.Required("redirectUri")
	}
	r.log(ctx, "acquiring token with authorization code")

	cred := secretCredential(secret)
	return r.acquire(ctx, r.driver(cred), func() (accesstokens.TokenResponse, error) {
		params := r.authParams()
		params.Redirecturi = redirectURI
		return r.ctx.protocol.AuthCode(ctx, params, code, cred)
	})
}

// GetTokenWithRefreshToken redeems refreshToken. secret is empty for public clients.
func (r *TokenRequest) GetTokenWithRefreshToken(ctx context.Context, refreshToken, secret string) (cache.Entry, error) {
	if refreshToken == "" {
		return cache.Entry{}, errors.Required("refreshToken")
	}
	r.log(ctx, "acquiring token with refresh token")

	cred := secretCredential(secret)
	return r.acquire(ctx, r.driver(cred), func() (accesstokens.TokenResponse, error) {
		return r.ctx.protocol.Refresh(ctx, r.authParams(), cred, refreshToken)
	})
}

func secretCredential(secret string) *accesstokens.Credential {
	if secret == "" {
		return nil
	}
	return &accesstokens.Credential{Secret: secret}
}
