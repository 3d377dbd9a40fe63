// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package authority describes an Azure AD v1 authority: its validated URL, the endpoints
// derived from it, and the user realm discovery call made against it.
package authority

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/cache"
	"github.com/jellydator/ttlcache/v3"
)

const (
	// APIVersion is sent as the api-version query parameter on every v1 endpoint call.
	APIVersion = "1.0"

	defaultRealmTTL = 30 * time.Minute
)

type jsonCaller interface {
	JSONCall(ctx context.Context, endpoint string, headers http.Header, qv url.Values, body, resp interface{}) error
}

// Info consists of information about the authority.
type Info struct {
	Host string
	// CanonicalAuthorityURI is the normalized authority: lower case, no query and no trailing slash.
	CanonicalAuthorityURI string
	Tenant                string
	ValidateAuthority     bool
}

// NewInfoFromAuthorityURI validates authority and returns its Info.
func NewInfoFromAuthorityURI(authority string, validateAuthority bool) (Info, error) {
	if strings.TrimSpace(authority) == "" {
		return Info{}, errors.New("The authority parameter is required.")
	}
	u, err := url.Parse(strings.TrimSpace(authority))
	if err != nil {
		return Info{}, fmt.Errorf("authority %q could not be parsed: %w", authority, err)
	}
	if u.Scheme != "https" {
		return Info{}, fmt.Errorf("The authority url must be an https endpoint.")
	}
	if u.RawQuery != "" {
		return Info{}, fmt.Errorf("The authority url must not have a query string.")
	}
	if u.Fragment != "" {
		return Info{}, fmt.Errorf("The authority url must not have a fragment.")
	}
	pathParts := strings.Split(strings.Trim(u.EscapedPath(), "/"), "/")
	if len(pathParts) == 0 || pathParts[0] == "" {
		return Info{}, fmt.Errorf("authority %q did not have a tenant", authority)
	}

	return Info{
		Host:                  strings.ToLower(u.Host),
		CanonicalAuthorityURI: cache.NormalizeAuthority(u.String()),
		Tenant:                strings.ToLower(pathParts[0]),
		ValidateAuthority:     validateAuthority,
	}, nil
}

// Endpoints consists of the endpoints used against an authority.
type Endpoints struct {
	AuthorizationEndpoint string
	TokenEndpoint         string
	DeviceCodeEndpoint    string
}

// NewEndpoints derives the v1 endpoints of an authority.
func NewEndpoints(info Info) Endpoints {
	base := info.CanonicalAuthorityURI
	return Endpoints{
		AuthorizationEndpoint: base + "/oauth2/authorize",
		TokenEndpoint:         base + "/oauth2/token",
		DeviceCodeEndpoint:    base + "/oauth2/devicecode",
	}
}

// AuthParams represents the parameters used for a single token request.
type AuthParams struct {
	AuthorityInfo Info
	Endpoints     Endpoints
	ClientID      string
	// Resource is the App ID URI of the target web API. It may be a space separated scope list.
	Resource string
	// Username and Password are set for the resource owner password flows.
	Username string
	Password string
	// Redirecturi is used by the authorization code flow.
	Redirecturi string
	// Policy is the B2C style policy, empty when none.
	Policy string
	// Language is sent as the mkt parameter when requesting a user code.
	Language string
}

// NewAuthParams creates an authorization parameters object.
func NewAuthParams(clientID string, authorityInfo Info) AuthParams {
	return AuthParams{
		ClientID:      clientID,
		AuthorityInfo: authorityInfo,
		Endpoints:     NewEndpoints(authorityInfo),
	}
}

// OAuthResponseBase is the base JSON return message for an OAuth call.
// This is embedded in other calls to get the base fields from every response.
type OAuthResponseBase struct {
	Error            string `json:"error"`
	SubError         string `json:"suberror"`
	ErrorDescription string `json:"error_description"`
	ErrorCodes       []int  `json:"error_codes"`
	CorrelationID    string `json:"correlation_id"`
	Claims           string `json:"claims"`
}

// AccountType is the account type of a user realm.
type AccountType string

const (
	Managed   AccountType = "Managed"
	Federated AccountType = "Federated"
	Unknown   AccountType = "Unknown"
)

// UserRealm is the response from the user realm discovery endpoint.
type UserRealm struct {
	AccountType       AccountType `json:"account_type"`
	DomainName        string      `json:"domain_name"`
	CloudInstanceName string      `json:"cloud_instance_name"`
	CloudAudienceURN  string      `json:"cloud_audience_urn"`

	// required if accountType is Federated
	FederationProtocol      string `json:"federation_protocol"`
	FederationMetadataURL   string `json:"federation_metadata_url"`
	FederationActiveAuthURL string `json:"federation_active_auth_url"`
}

func (u UserRealm) validate() error {
	switch u.AccountType {
	case Managed:
	case Federated:
		if u.FederationProtocol == "" {
			return errors.New("federation protocol of user realm is missing")
		}
		if u.FederationActiveAuthURL == "" && u.FederationMetadataURL == "" {
			return errors.New("federation endpoints of user realm are missing")
		}
	default:
		return fmt.Errorf("unsupported user realm account type %q", u.AccountType)
	}
	return nil
}

// Client represents the REST calls to authority backends.
type Client struct {
	// Comm provides the HTTP transport client.
	Comm jsonCaller

	realms *ttlcache.Cache[string, UserRealm]
}

// NewClient returns a Client that remembers user realm answers for ttl. A ttl <= 0 uses 30 minutes.
func NewClient(comm jsonCaller, ttl time.Duration) *Client {
	if ttl <= 0 {
		ttl = defaultRealmTTL
	}
	return &Client{
		Comm: comm,
		realms: ttlcache.New(
			ttlcache.WithTTL[string, UserRealm](ttl),
			ttlcache.WithDisableTouchOnHit[string, UserRealm](),
		),
	}
}

// UserRealm discovers whether params.Username is a managed or a federated account.
func (c *Client) UserRealm(ctx context.Context, params AuthParams) (UserRealm, error) {
	if params.Username == "" {
		return UserRealm{}, errors.New("The username parameter is required.")
	}
	key := params.AuthorityInfo.Host + "|" + strings.ToLower(params.Username)
	if c.realms != nil {
		if item := c.realms.Get(key); item != nil {
			return item.Value(), nil
		}
	}

	endpoint := fmt.Sprintf("https://%s/common/UserRealm/%s", params.AuthorityInfo.Host, url.PathEscape(params.Username))
	qv := url.Values{"api-version": []string{APIVersion}}

	resp := UserRealm{}
	if err := c.Comm.JSONCall(ctx, endpoint, http.Header{}, qv, nil, &resp); err != nil {
		return UserRealm{}, fmt.Errorf("user realm discovery for host %s: %w", params.AuthorityInfo.Host, err)
	}
	if err := resp.validate(); err != nil {
		return UserRealm{}, err
	}

	if c.realms != nil {
		c.realms.DeleteExpired()
		c.realms.Set(key, resp, ttlcache.DefaultTTL)
	}
	return resp, nil
}
