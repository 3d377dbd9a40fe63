// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Package adal acquires OAuth2 access tokens from Azure Active Directory v1 endpoints.

An AuthenticationContext is created for one authority (https://login.microsoftonline.com/<tenant>).
Tokens it acquires are stored in a cache and served from it on later calls, refreshing them
with their refresh token when they expire. A refresh token that was issued for multiple
resources is used to get tokens for any of them.

	ac, err := adal.New("https://login.microsoftonline.com/contoso.onmicrosoft.com")
	if err != nil {
		// handle error
	}
	token, err := ac.AcquireTokenWithClientCredentials(ctx, "https://graph.windows.net", clientID, secret)
*/
package adal

import (
	"context"
	"crypto"
	"crypto/x509"
	"net/http"
	"net/url"
	"time"

	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/cache"
	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/internal/logger"
	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/internal/oauth"
	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/internal/oauth/ops"
	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/internal/oauth/ops/authority"
	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/internal/requests"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Token is the result of a token acquisition. It is the entry stored in the cache.
type Token = cache.Entry

// UserCodeInfo is the user code returned by AcquireUserCode.
type UserCodeInfo = requests.UserCodeInfo

// DeviceCodeState is the state of a device code poll.
type DeviceCodeState = requests.DeviceCodeState

// HTTPClient is the transport used to reach the authority. *http.Client implements it.
type HTTPClient = ops.HTTPClient

// Options configures the AuthenticationContext's behavior.
type Options struct {
	// Cache stores acquired tokens. The process wide cache.Default() is used when unset.
	// This can be set with the WithCache() option.
	Cache cache.Cache

	// HTTPClient sends every request. http.DefaultClient is used when unset.
	HTTPClient HTTPClient

	// Logger receives the library's log. Nothing is logged when unset.
	Logger *zerolog.Logger

	// CorrelationID is sent as client-request-id on every request. A random one is used when unset.
	CorrelationID string

	// ValidateAuthority is carried on the authority info. It defaults to true.
	ValidateAuthority bool

	// UserRealmTTL is how long user realm discovery results are cached.
	UserRealmTTL time.Duration

	// Policy is the B2C style policy tokens are cached under. Empty means no policy.
	Policy string
}

// Option is an optional argument to the New constructor.
type Option func(o *Options)

// WithCache sets the cache tokens are stored in.
func WithCache(c cache.Cache) Option {
	return func(o *Options) {
		o.Cache = c
	}
}

// WithHTTPClient allows for a custom HTTP client to be set.
func WithHTTPClient(httpClient HTTPClient) Option {
	return func(o *Options) {
		o.HTTPClient = httpClient
	}
}

// WithLogger sets the zerolog logger the library logs to.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Options) {
		o.Logger = &l
	}
}

// WithCorrelationID sets the correlation id sent with every request.
func WithCorrelationID(id string) Option {
	return func(o *Options) {
		o.CorrelationID = id
	}
}

// WithValidateAuthority turns authority validation on or off.
func WithValidateAuthority(validate bool) Option {
	return func(o *Options) {
		o.ValidateAuthority = validate
	}
}

// WithUserRealmTTL sets how long user realm discovery results are cached.
func WithUserRealmTTL(ttl time.Duration) Option {
	return func(o *Options) {
		o.UserRealmTTL = ttl
	}
}

// WithPolicy caches every token the context acquires under policy, and only serves
// cached tokens stored under the same policy.
func WithPolicy(policy string) Option {
	return func(o *Options) {
		o.Policy = policy
	}
}

// AuthenticationContext acquires tokens from a single authority. It is safe for concurrent use.
type AuthenticationContext struct {
	requests      *requests.Context
	correlationID string
	policy        string
}

// New is the constructor for AuthenticationContext.
func New(authorityURI string, options ...Option) (*AuthenticationContext, error) {
	opts := Options{
		ValidateAuthority: true,
		UserRealmTTL:      30 * time.Minute,
	}
	for _, o := range options {
		o(&opts)
	}

	info, err := authority.NewInfoFromAuthorityURI(authorityURI, opts.ValidateAuthority)
	if err != nil {
		return nil, err
	}
	if opts.Cache == nil {
		opts.Cache = cache.Default()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.CorrelationID == "" {
		opts.CorrelationID = uuid.New().String()
	}

	log := logger.New(opts.Logger)
	protocol := oauth.New(opts.HTTPClient, log, opts.UserRealmTTL)
	return &AuthenticationContext{
		requests:      requests.NewContext(info, opts.Cache, protocol, log),
		correlationID: opts.CorrelationID,
		policy:        opts.Policy,
	}, nil
}

// Authority returns the normalized authority URL.
func (ac *AuthenticationContext) Authority() string {
	return ac.requests.AuthorityInfo().CanonicalAuthorityURI
}

// CorrelationID returns the id sent as client-request-id on every request.
func (ac *AuthenticationContext) CorrelationID() string {
	return ac.correlationID
}

func (ac *AuthenticationContext) tokenRequest(clientID, resource string) *requests.TokenRequest {
	return ac.requests.NewTokenRequest(clientID, resource).WithPolicy(ac.policy)
}

func (ac *AuthenticationContext) withCorrelation(ctx context.Context) context.Context {
	if logger.CorrelationID(ctx) != "" {
		return ctx
	}
	return logger.WithCorrelationID(ctx, ac.correlationID)
}

// AcquireToken returns a cached token for userID, refreshing it if needed. It never
// prompts and fails with errors.ErrNotFound when there is nothing usable in the cache.
// userID is empty for app only tokens.
func (ac *AuthenticationContext) AcquireToken(ctx context.Context, resource, userID, clientID string) (Token, error) {
	return ac.tokenRequest(clientID, resource).GetTokenFromCacheWithRefresh(ac.withCorrelation(ctx), userID)
}

// AcquireTokenWithUsernamePassword gets a token for a user. Federated users are
// authenticated by their identity provider.
func (ac *AuthenticationContext) AcquireTokenWithUsernamePassword(ctx context.Context, resource, username, password, clientID string) (Token, error) {
	return ac.tokenRequest(clientID, resource).GetTokenWithUsernamePassword(ac.withCorrelation(ctx), username, password)
}

// AcquireTokenWithClientCredentials gets an app only token with a client secret.
func (ac *AuthenticationContext) AcquireTokenWithClientCredentials(ctx context.Context, resource, clientID, clientSecret string) (Token, error) {
	return ac.tokenRequest(clientID, resource).GetTokenWithClientCredentials(ac.withCorrelation(ctx), clientSecret)
}

// AcquireTokenWithClientCertificate gets an app only token by signing a client assertion with key.
// See CertFromPEM and CertFromPFX for loading cert and key.
func (ac *AuthenticationContext) AcquireTokenWithClientCertificate(ctx context.Context, resource, clientID string, cert *x509.Certificate, key crypto.PrivateKey) (Token, error) {
	return ac.tokenRequest(clientID, resource).GetTokenWithCertificate(ac.withCorrelation(ctx), cert, key)
}

// AcquireTokenWithAuthorizationCode redeems an authorization code obtained from AuthorizationURL.
// clientSecret is empty for public clients.
func (ac *AuthenticationContext) AcquireTokenWithAuthorizationCode(ctx context.Context, code, redirectURI, resource, clientID, clientSecret string) (Token, error) {
	return ac.tokenRequest(clientID, resource).GetTokenWithAuthorizationCode(ac.withCorrelation(ctx), code, redirectURI, clientSecret)
}

// AcquireTokenWithRefreshToken redeems a refresh token. resource may be empty when the
// refresh token was issued for a single resource. clientSecret is empty for public clients.
func (ac *AuthenticationContext) AcquireTokenWithRefreshToken(ctx context.Context, refreshToken, clientID, clientSecret, resource string) (Token, error) {
	return ac.tokenRequest(clientID, resource).GetTokenWithRefreshToken(ac.withCorrelation(ctx), refreshToken, clientSecret)
}

// AcquireUserCode starts the device code flow. The returned Message tells the user where to
// enter the user code. language selects the message language and may be empty.
func (ac *AuthenticationContext) AcquireUserCode(ctx context.Context, resource, clientID, language string) (UserCodeInfo, error) {
	return ac.tokenRequest(clientID, resource).GetUserCode(ac.withCorrelation(ctx), language)
}

// AcquireTokenWithDeviceCode blocks until the user has signed in with info's user code, the
// code expires, ctx is done or CancelRequestToGetTokenWithDeviceCode is called.
func (ac *AuthenticationContext) AcquireTokenWithDeviceCode(ctx context.Context, resource, clientID string, info *UserCodeInfo) (Token, error) {
	return ac.tokenRequest(clientID, resource).AcquireTokenWithDeviceCode(ac.withCorrelation(ctx), info)
}

// CancelRequestToGetTokenWithDeviceCode stops a running AcquireTokenWithDeviceCode call for
// info, which then returns errors.ErrPollingCancelled.
func (ac *AuthenticationContext) CancelRequestToGetTokenWithDeviceCode(info *UserCodeInfo) error {
	return ac.requests.CancelRequestToGetTokenWithDeviceCode(info)
}

// DeviceCodeState returns the state of the poll for deviceCode.
func (ac *AuthenticationContext) DeviceCodeState(deviceCode string) DeviceCodeState {
	return ac.requests.DeviceCodeState(deviceCode)
}

// AuthorizationURL returns the URL the user agent is sent to for an authorization code.
// state is returned unchanged on the redirect and may be empty.
func (ac *AuthenticationContext) AuthorizationURL(clientID, redirectURI, resource, state string) (string, error) {
	endpoints := authority.NewEndpoints(ac.requests.AuthorityInfo())
	u, err := url.Parse(endpoints.AuthorizationEndpoint)
	if err != nil {
		return "", err
	}

	v := url.Values{}
	v.Add("response_type", "code")
	v.Add("client_id", clientID)
	v.Add("redirect_uri", redirectURI)
	if resource != "" {
		v.Add("resource", resource)
	}
	if state != "" {
		v.Add("state", state)
	}
	v.Add("api-version", authority.APIVersion)
	u.RawQuery = v.Encode()
	return u.String(), nil
}
