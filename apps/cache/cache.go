// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Package cache defines the token cache contract and provides an in-memory implementation.

A Cache stores Entry values. Each Entry is identified by its authority, client id,
resource, user id and policy. Applications that need a different backing store
implement Cache and pass it to adal.WithCache().
*/
package cache

import (
	"context"
	"sort"
	"strings"
	"time"
)

// Cache is implemented by token stores. Implementations must be safe for concurrent use.
type Cache interface {
	// Add stores entries, replacing any entry with the same identity.
	Add(ctx context.Context, entries []Entry) error
	// Remove deletes entries that exactly match the ones given.
	Remove(ctx context.Context, entries []Entry) error
	// Find returns every entry matching the query.
	Find(ctx context.Context, q Query) ([]Entry, error)
}

// Marshaler marshals data from an internal cache to bytes that can be stored.
type Marshaler interface {
	Marshal() ([]byte, error)
}

// Unmarshaler unmarshals data from a storage medium into the internal cache, overwriting it.
type Unmarshaler interface {
	Unmarshal([]byte) error
}

// Serializer can serialize the cache to binary or from binary into the cache.
type Serializer interface {
	Marshaler
	Unmarshaler
}

// IdentityClaims are the user facing claims taken from an id_token.
type IdentityClaims struct {
	TenantID            string `json:"tenantId,omitempty"`
	GivenName           string `json:"givenName,omitempty"`
	FamilyName          string `json:"familyName,omitempty"`
	IsUserIDDisplayable bool   `json:"isUserIdDisplayable,omitempty"`
	IdentityProvider    string `json:"identityProvider,omitempty"`
	ObjectID            string `json:"oid,omitempty"`
}

// Entry is a cached token.
type Entry struct {
	Authority    string         `json:"_authority"`
	ClientID     string         `json:"_clientId"`
	Resource     string         `json:"resource,omitempty"`
	UserID       string         `json:"userId,omitempty"`
	Policy       string         `json:"policy,omitempty"`
	TokenType    string         `json:"tokenType"`
	AccessToken  string         `json:"accessToken"`
	RefreshToken string         `json:"refreshToken,omitempty"`
	ExpiresOn    time.Time      `json:"expiresOn"`
	CreatedOn    time.Time      `json:"createdOn,omitempty"`
	IsMRRT       bool           `json:"isMRRT,omitempty"`
	Claims       IdentityClaims `json:"claims"`
}

// Key returns the identity of the entry. Two entries with the same key can not coexist in a Cache.
func (e Entry) Key() string {
	return strings.Join(
		[]string{
			NormalizeAuthority(e.Authority),
			e.ClientID,
			NormalizeResource(e.Resource),
			e.UserID,
			e.Policy,
		},
		"|",
	)
}

// Expired reports whether the access token is expired, or will be within skew of now.
func (e Entry) Expired(now time.Time, skew time.Duration) bool {
	return !now.Add(skew).Before(e.ExpiresOn)
}

// Query selects entries. Empty string fields match any value.
type Query struct {
	Authority string
	ClientID  string
	Resource  string
	UserID    string
	// Policy is compared only when MatchPolicy is set, and then exactly.
	Policy      string
	MatchPolicy bool
	// MRRTOnly restricts the result to multi resource refresh token entries.
	MRRTOnly bool
}

// Matches reports whether e satisfies q.
func (q Query) Matches(e Entry) bool {
	switch {
	case q.Authority != "" && NormalizeAuthority(q.Authority) != NormalizeAuthority(e.Authority):
		return false
	case q.ClientID != "" && q.ClientID != e.ClientID:
		return false
	case q.UserID != "" && q.UserID != e.UserID:
		return false
	case q.Resource != "" && NormalizeResource(q.Resource) != NormalizeResource(e.Resource):
		return false
	case q.MatchPolicy && q.Policy != e.Policy:
		return false
	case q.MRRTOnly && !e.IsMRRT:
		return false
	}
	return true
}

// NormalizeResource turns a whitespace separated resource or scope list into a canonical form.
func NormalizeResource(resource string) string {
	fields := strings.Fields(resource)
	if len(fields) < 2 {
		return strings.Join(fields, "")
	}
	set := make(map[string]struct{}, len(fields))
	uniq := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := set[f]; ok {
			continue
		}
		set[f] = struct{}{}
		uniq = append(uniq, f)
	}
	sort.Strings(uniq)
	return strings.Join(uniq, " ")
}

// NormalizeAuthority lower cases an authority and strips any query and trailing slash.
func NormalizeAuthority(authority string) string {
	a := strings.ToLower(strings.TrimSpace(authority))
	if i := strings.IndexAny(a, "?#"); i >= 0 {
		a = a[:i]
	}
	return strings.TrimRight(a, "/")
}
