// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Package cache provides the Driver, which sits between a token request and a cache.Cache.

A Driver is created for each request. It turns token responses into cache entries,
keeps multi resource refresh tokens (MRRT) in step across entries of the same user,
and on lookup decides whether a cached entry can be returned as is or must be refreshed.
*/
package cache

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/cache"
	adalErrors "github.com/AzureAD/azure-activedirectory-library-for-go/apps/errors"
	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/internal/logger"
	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/internal/oauth/ops/accesstokens"
	"golang.org/x/sync/singleflight"
)

// ExpirySkew is how long before ExpiresOn an access token is treated as expired.
const ExpirySkew = 5 * time.Minute

// RefreshFunc redeems the refresh token of entry for a token valid for resource.
type RefreshFunc func(ctx context.Context, entry cache.Entry, resource string) (accesstokens.TokenResponse, error)

// Shared is the state drivers writing to one cache.Cache have in common.
type Shared struct {
	// mu serializes cache mutations so MRRT propagation is never observed half done.
	mu sync.Mutex
	// refreshes collapses concurrent refreshes of the same entry.
	refreshes singleflight.Group
}

// sharedByCache maps a cache.Cache to its *Shared.
var sharedByCache sync.Map

// SharedFor returns the Shared of c. Every caller passing the same cache instance gets
// the same Shared, so MRRT updates and refreshes are coordinated per cache rather than
// per caller. A cache whose dynamic type can not be a map key gets a Shared of its own.
func SharedFor(c cache.Cache) *Shared {
	if c == nil || !reflect.TypeOf(c).Comparable() {
		return &Shared{}
	}
	v, _ := sharedByCache.LoadOrStore(c, &Shared{})
	return v.(*Shared)
}

// Driver manages cache access for a single token request.
type Driver struct {
	Authority string
	Resource  string
	ClientID  string
	Policy    string

	Cache   cache.Cache
	Refresh RefreshFunc
	Log     *logger.Logger

	shared *Shared
	now    func() time.Time
}

// NewDriver creates a Driver. A nil s means SharedFor(c).
func NewDriver(authority, resource, clientID, policy string, c cache.Cache, refresh RefreshFunc, log *logger.Logger, s *Shared) *Driver {
	if s == nil {
		s = SharedFor(c)
	}
	return &Driver{
		Authority: cache.NormalizeAuthority(authority),
		Resource:  resource,
		ClientID:  clientID,
		Policy:    policy,
		Cache:     c,
		Refresh:   refresh,
		Log:       log,
		shared:    s,
		now:       time.Now,
	}
}

// Add stores the token in resp and returns the entry that was written.
func (d *Driver) Add(ctx context.Context, resp accesstokens.TokenResponse) (cache.Entry, error) {
	entry := d.newEntry(resp)
	if err := d.add(ctx, entry); err != nil {
		return cache.Entry{}, err
	}
	return entry, nil
}

// ManageCache persists the result of a full token exchange.
func (d *Driver) ManageCache(ctx context.Context, resp accesstokens.TokenResponse) (cache.Entry, error) {
	return d.Add(ctx, resp)
}

func (d *Driver) newEntry(resp accesstokens.TokenResponse) cache.Entry {
	entry := cache.Entry{
		Authority:    d.Authority,
		ClientID:     d.ClientID,
		Resource:     d.Resource,
		Policy:       d.Policy,
		TokenType:    resp.TokenType,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresOn:    resp.ExpiresOn,
		CreatedOn:    resp.CreatedOn,
		// A refresh token issued without a fixed resource is good for any resource.
		IsMRRT: resp.HasRefreshToken() && resp.Resource == "",
	}
	if entry.CreatedOn.IsZero() {
		entry.CreatedOn = d.now()
	}
	if resp.Identity != nil {
		entry.UserID = resp.Identity.UserID
		entry.Claims = resp.Identity.Claims
	}
	return entry
}

// add writes entry. An MRRT entry hands its refresh token to every other MRRT entry
// of the same authority, client, user and policy in the same Cache.Add call.
func (d *Driver) add(ctx context.Context, entry cache.Entry) error {
	d.shared.mu.Lock()
	defer d.shared.mu.Unlock()

	entries := []cache.Entry{entry}
	if entry.IsMRRT {
		siblings, err := d.Cache.Find(ctx, cache.Query{
			Authority:   entry.Authority,
			ClientID:    entry.ClientID,
			UserID:      entry.UserID,
			Policy:      entry.Policy,
			MatchPolicy: true,
			MRRTOnly:    true,
		})
		if err != nil {
			return fmt.Errorf("could not read MRRT entries: %w", err)
		}
		key := entry.Key()
		for _, s := range siblings {
			if s.UserID != entry.UserID || s.Key() == key || s.RefreshToken == entry.RefreshToken {
				continue
			}
			s.RefreshToken = entry.RefreshToken
			entries = append(entries, s)
		}
		if len(entries) > 1 {
			d.Log.Log(ctx, logger.Debug, "updating MRRT entries", logger.Field("count", len(entries)-1))
		}
	}
	if err := d.Cache.Add(ctx, entries); err != nil {
		return fmt.Errorf("could not add entries to the cache: %w", err)
	}
	return nil
}

// Find returns the cached entry for userID, refreshing it when needed. found is false
// when the cache has nothing usable, which is not an error.
func (d *Driver) Find(ctx context.Context, userID string) (entry cache.Entry, found bool, err error) {
	entry, found, err = d.lookup(ctx, userID)
	if err != nil || !found {
		return cache.Entry{}, false, err
	}

	otherResource := d.Resource != "" && cache.NormalizeResource(entry.Resource) != cache.NormalizeResource(d.Resource)
	if !otherResource && !entry.Expired(d.now(), ExpirySkew) {
		d.Log.Log(ctx, logger.Info, "returning cached token")
		return entry, true, nil
	}

	if entry.RefreshToken == "" || d.Refresh == nil {
		d.Log.Log(ctx, logger.Info, "cached token is expired and can not be refreshed")
		return cache.Entry{}, false, nil
	}
	if otherResource {
		d.Log.Log(ctx, logger.Info, "redeeming MRRT for a new resource")
	} else {
		d.Log.Log(ctx, logger.Info, "cached token is expired, refreshing")
	}

	refreshed, err := d.refresh(ctx, entry)
	if err != nil {
		return cache.Entry{}, false, err
	}
	return refreshed, true, nil
}

// lookup queries the cache for an exact match, falling back to MRRT entries of any resource.
func (d *Driver) lookup(ctx context.Context, userID string) (cache.Entry, bool, error) {
	q := cache.Query{
		Authority:   d.Authority,
		ClientID:    d.ClientID,
		Resource:    d.Resource,
		UserID:      userID,
		Policy:      d.Policy,
		MatchPolicy: true,
	}
	entries, err := d.Cache.Find(ctx, q)
	if err != nil {
		return cache.Entry{}, false, err
	}
	if len(entries) == 0 && d.Resource != "" {
		q.Resource = ""
		q.MRRTOnly = true
		entries, err = d.Cache.Find(ctx, q)
		if err != nil {
			return cache.Entry{}, false, err
		}
		if len(entries) > 0 {
			d.Log.Log(ctx, logger.Debug, "found MRRT entries", logger.Field("count", len(entries)))
			if !sameUser(entries) {
				return cache.Entry{}, false, adalErrors.ErrAmbiguousMatch
			}
			return entries[0], true, nil
		}
	}

	switch len(entries) {
	case 0:
		return cache.Entry{}, false, nil
	case 1:
		return entries[0], true, nil
	}
	return cache.Entry{}, false, adalErrors.ErrAmbiguousMatch
}

// sameUser reports whether every MRRT entry belongs to one user. Such entries share
// a refresh token, so any of them will do.
func sameUser(entries []cache.Entry) bool {
	for _, e := range entries[1:] {
		if e.UserID != entries[0].UserID {
			return false
		}
	}
	return true
}

func (d *Driver) refresh(ctx context.Context, entry cache.Entry) (cache.Entry, error) {
	key := entry.Key() + "|" + cache.NormalizeResource(d.Resource)
	v, err, _ := d.shared.refreshes.Do(key, func() (interface{}, error) {
		resp, err := d.Refresh(ctx, entry, d.Resource)
		if err != nil {
			return nil, err
		}
		refreshed := d.newEntry(resp)
		if refreshed.UserID == "" {
			refreshed.UserID = entry.UserID
			refreshed.Claims = entry.Claims
		}
		if refreshed.RefreshToken == "" {
			refreshed.RefreshToken = entry.RefreshToken
			refreshed.IsMRRT = entry.IsMRRT
		}
		if err := d.add(ctx, refreshed); err != nil {
			return nil, err
		}
		return refreshed, nil
	})
	if err != nil {
		return cache.Entry{}, fmt.Errorf("refreshing cached token: %w", err)
	}
	return v.(cache.Entry), nil
}
