// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/cache"
	adalErrors "github.com/AzureAD/azure-activedirectory-library-for-go/apps/errors"
	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/internal/oauth/ops/accesstokens"
	"github.com/kylelemons/godebug/pretty"
)

const (
	testAuthority  = "https://login.microsoftonline.com/tenant"
	otherAuthority = "https://login.microsoftonline.com/other"
	testClientID   = "client"
	resourceA      = "https://graph.windows.net"
	resourceB      = "https://management.core.windows.net"
)

func tokenResp(at, rt, user string, mrrt bool, expiresIn time.Duration) accesstokens.TokenResponse {
	tr := accesstokens.TokenResponse{
		TokenType:    "Bearer",
		AccessToken:  at,
		RefreshToken: rt,
		ExpiresOn:    time.Now().Add(expiresIn).Truncate(time.Second),
		CreatedOn:    time.Now().Truncate(time.Second),
	}
	if !mrrt {
		tr.Resource = "fixed"
	}
	if user != "" {
		tr.Identity = &accesstokens.Identity{UserID: user}
	}
	return tr
}

func noRefresh(t *testing.T) RefreshFunc {
	return func(ctx context.Context, entry cache.Entry, resource string) (accesstokens.TokenResponse, error) {
		t.Errorf("unexpected refresh of %s for %s", entry.Key(), resource)
		return accesstokens.TokenResponse{}, errors.New("unexpected refresh")
	}
}

func TestAddFindRoundTrip(t *testing.T) {
	ctx := context.Background()
	mem := cache.NewMemory()
	d := NewDriver(testAuthority, resourceA, testClientID, "", mem, noRefresh(t), nil, nil)

	added, err := d.Add(ctx, tokenResp("at", "rt", "user@contoso.com", false, time.Hour))
	if err != nil {
		t.Fatalf("TestAddFindRoundTrip: Add(): got err == %s, want err == nil", err)
	}
	got, found, err := d.Find(ctx, "user@contoso.com")
	if err != nil || !found {
		t.Fatalf("TestAddFindRoundTrip: Find(): got found == %v, err == %v", found, err)
	}
	if diff := pretty.Compare(added, got); diff != "" {
		t.Errorf("TestAddFindRoundTrip: -want/+got:\n%s", diff)
	}
	if got.IsMRRT {
		t.Errorf("TestAddFindRoundTrip: entry with a fixed resource was marked MRRT")
	}
}

func TestAddOverwrites(t *testing.T) {
	ctx := context.Background()
	mem := cache.NewMemory()
	d := NewDriver(testAuthority, resourceA, testClientID, "", mem, noRefresh(t), nil, nil)

	for _, at := range []string{"first", "second"} {
		if _, err := d.Add(ctx, tokenResp(at, "", "user", false, time.Hour)); err != nil {
			t.Fatal(err)
		}
	}
	if mem.Len() != 1 {
		t.Fatalf("TestAddOverwrites: got %d entries, want 1", mem.Len())
	}
	if mem.Entries()[0].AccessToken != "second" {
		t.Errorf("TestAddOverwrites: got access token %q, want %q", mem.Entries()[0].AccessToken, "second")
	}
}

func TestMRRTPropagation(t *testing.T) {
	ctx := context.Background()
	mem := cache.NewMemory()
	shared := &Shared{}

	add := func(authority, resource, rt string) {
		t.Helper()
		d := NewDriver(authority, resource, testClientID, "", mem, noRefresh(t), nil, shared)
		if _, err := d.Add(ctx, tokenResp("at-"+resource, rt, "user", true, time.Hour)); err != nil {
			t.Fatal(err)
		}
	}
	add(testAuthority, resourceA, "rt1")
	add(otherAuthority, resourceA, "rt-other")
	add(testAuthority, resourceB, "rt2")

	if mem.Len() != 3 {
		t.Fatalf("TestMRRTPropagation: got %d entries, want 3", mem.Len())
	}
	for _, e := range mem.Entries() {
		if !e.IsMRRT {
			t.Errorf("TestMRRTPropagation: entry %s was not MRRT", e.Key())
		}
		want := "rt2"
		if e.Authority == cache.NormalizeAuthority(otherAuthority) {
			want = "rt-other"
		}
		if e.RefreshToken != want {
			t.Errorf("TestMRRTPropagation: entry %s has refresh token %q, want %q", e.Key(), e.RefreshToken, want)
		}
	}
}

func TestFindMiss(t *testing.T) {
	d := NewDriver(testAuthority, resourceA, testClientID, "", cache.NewMemory(), noRefresh(t), nil, nil)
	_, found, err := d.Find(context.Background(), "user")
	if err != nil || found {
		t.Errorf("TestFindMiss: got found == %v, err == %v, want false, nil", found, err)
	}
}

func TestFindAmbiguous(t *testing.T) {
	ctx := context.Background()
	mem := cache.NewMemory()
	d := NewDriver(testAuthority, resourceA, testClientID, "", mem, noRefresh(t), nil, nil)
	for _, user := range []string{"alice", "bob"} {
		if _, err := d.Add(ctx, tokenResp("at-"+user, "", user, false, time.Hour)); err != nil {
			t.Fatal(err)
		}
	}

	_, _, err := d.Find(ctx, "")
	if !errors.Is(err, adalErrors.ErrAmbiguousMatch) {
		t.Fatalf("TestFindAmbiguous: got err == %v, want ErrAmbiguousMatch", err)
	}
	if err.Error() != "More than one token matches the criteria. The result is ambiguous." {
		t.Errorf("TestFindAmbiguous: got message %q", err.Error())
	}

	got, found, err := d.Find(ctx, "bob")
	if err != nil || !found || got.AccessToken != "at-bob" {
		t.Errorf("TestFindAmbiguous: Find(bob): got %v, %v, %v", got.AccessToken, found, err)
	}
}

func TestFindRefresh(t *testing.T) {
	refreshErr := &adalErrors.OAuthError{StatusCode: 400, Code: "invalid_grant"}

	tests := []struct {
		desc        string
		stored      accesstokens.TokenResponse
		storedFor   string
		resource    string
		refreshErr  error
		wantRefresh bool
		wantFound   bool
		wantAT      string
	}{
		{
			desc:      "valid token is returned as is",
			stored:    tokenResp("old", "rt", "user", false, time.Hour),
			storedFor: resourceA,
			resource:  resourceA,
			wantFound: true,
			wantAT:    "old",
		},
		{
			desc:        "token inside the skew is refreshed",
			stored:      tokenResp("old", "rt", "user", false, 2*time.Minute),
			storedFor:   resourceA,
			resource:    resourceA,
			wantRefresh: true,
			wantFound:   true,
			wantAT:      "new",
		},
		{
			desc:      "expired token without refresh token is a miss",
			stored:    tokenResp("old", "", "user", false, -time.Minute),
			storedFor: resourceA,
			resource:  resourceA,
		},
		{
			desc:        "MRRT for another resource is redeemed",
			stored:      tokenResp("old", "rt", "user", true, time.Hour),
			storedFor:   resourceA,
			resource:    resourceB,
			wantRefresh: true,
			wantFound:   true,
			wantAT:      "new",
		},
		{
			desc:      "non MRRT entry is not used for another resource",
			stored:    tokenResp("old", "rt", "user", false, time.Hour),
			storedFor: resourceA,
			resource:  resourceB,
		},
		{
			desc:        "refresh failure propagates",
			stored:      tokenResp("old", "rt", "user", false, -time.Minute),
			storedFor:   resourceA,
			resource:    resourceA,
			refreshErr:  refreshErr,
			wantRefresh: true,
		},
	}

	for _, test := range tests {
		ctx := context.Background()
		mem := cache.NewMemory()
		shared := &Shared{}
		if _, err := NewDriver(testAuthority, test.storedFor, testClientID, "", mem, nil, nil, shared).Add(ctx, test.stored); err != nil {
			t.Fatal(err)
		}
		before := mem.Entries()

		refreshed := false
		refresh := func(ctx context.Context, entry cache.Entry, resource string) (accesstokens.TokenResponse, error) {
			refreshed = true
			if entry.RefreshToken != "rt" || resource != test.resource {
				t.Errorf("TestFindRefresh(%s): refresh got rt %q resource %q", test.desc, entry.RefreshToken, resource)
			}
			if test.refreshErr != nil {
				return accesstokens.TokenResponse{}, test.refreshErr
			}
			return tokenResp("new", "", "", false, time.Hour), nil
		}

		d := NewDriver(testAuthority, test.resource, testClientID, "", mem, refresh, nil, shared)
		got, found, err := d.Find(ctx, "user")
		if refreshed != test.wantRefresh {
			t.Errorf("TestFindRefresh(%s): got refreshed == %v, want %v", test.desc, refreshed, test.wantRefresh)
		}
		if test.refreshErr != nil {
			if !errors.Is(err, test.refreshErr) {
				t.Errorf("TestFindRefresh(%s): got err == %v, want %v", test.desc, err, test.refreshErr)
			}
			if diff := pretty.Compare(before, mem.Entries()); diff != "" {
				t.Errorf("TestFindRefresh(%s): cache changed after a failed refresh:\n%s", test.desc, diff)
			}
			continue
		}
		if err != nil {
			t.Errorf("TestFindRefresh(%s): got err == %s, want err == nil", test.desc, err)
			continue
		}
		if found != test.wantFound {
			t.Errorf("TestFindRefresh(%s): got found == %v, want %v", test.desc, found, test.wantFound)
			continue
		}
		if !found {
			continue
		}
		if got.AccessToken != test.wantAT {
			t.Errorf("TestFindRefresh(%s): got access token %q, want %q", test.desc, got.AccessToken, test.wantAT)
		}
		if test.wantRefresh {
			if got.UserID != "user" || got.RefreshToken != "rt" {
				t.Errorf("TestFindRefresh(%s): refreshed entry lost identity: %+v", test.desc, got)
			}
			if got.Resource != test.resource {
				t.Errorf("TestFindRefresh(%s): refreshed entry has resource %q, want %q", test.desc, got.Resource, test.resource)
			}
			again, _, _ := d.Find(ctx, "user")
			if again.AccessToken != "new" {
				t.Errorf("TestFindRefresh(%s): refreshed token was not cached", test.desc)
			}
		}
	}
}

// countingCache signals every Find call.
type countingCache struct {
	*cache.Memory
	finds chan struct{}
}

func (c countingCache) Find(ctx context.Context, q cache.Query) ([]cache.Entry, error) {
	defer func() { c.finds <- struct{}{} }()
	return c.Memory.Find(ctx, q)
}

func TestConcurrentRefreshIsShared(t *testing.T) {
	const n = 8
	ctx := context.Background()
	mem := cache.NewMemory()
	shared := &Shared{}
	if _, err := NewDriver(testAuthority, resourceA, testClientID, "", mem, nil, nil, shared).Add(ctx, tokenResp("old", "rt", "user", false, -time.Minute)); err != nil {
		t.Fatal(err)
	}

	c := countingCache{Memory: mem, finds: make(chan struct{}, 10*n)}
	release := make(chan struct{})
	var calls int32
	refresh := func(ctx context.Context, entry cache.Entry, resource string) (accesstokens.TokenResponse, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return tokenResp("new", "rt2", "", false, time.Hour), nil
	}

	wg := sync.WaitGroup{}
	results := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, _, err := NewDriver(testAuthority, resourceA, testClientID, "", c, refresh, nil, shared).Find(ctx, "user")
			if err != nil {
				t.Errorf("TestConcurrentRefreshIsShared: got err == %s", err)
			}
			results <- got.AccessToken
		}()
	}
	for i := 0; i < n; i++ {
		<-c.finds
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	for at := range results {
		if at != "new" {
			t.Errorf("TestConcurrentRefreshIsShared: got access token %q, want %q", at, "new")
		}
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("TestConcurrentRefreshIsShared: refresh called %d times, want 1", got)
	}
}

// pausingCache blocks the first MRRT sibling read made by Driver.add until resume is closed.
type pausingCache struct {
	*cache.Memory
	reads  int32
	paused chan struct{}
	resume chan struct{}
}

func newPausingCache() *pausingCache {
	return &pausingCache{Memory: cache.NewMemory(), paused: make(chan struct{}), resume: make(chan struct{})}
}

func (c *pausingCache) Find(ctx context.Context, q cache.Query) ([]cache.Entry, error) {
	entries, err := c.Memory.Find(ctx, q)
	if q.MRRTOnly && q.Resource == "" && atomic.AddInt32(&c.reads, 1) == 1 {
		close(c.paused)
		<-c.resume
	}
	return entries, err
}

// refreshTokens returns the distinct refresh tokens of the MRRT entries of user.
func refreshTokens(t *testing.T, c cache.Cache, user string) map[string]bool {
	t.Helper()
	entries, err := c.Find(context.Background(), cache.Query{Authority: testAuthority, ClientID: testClientID, UserID: user, MRRTOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	rts := map[string]bool{}
	for _, e := range entries {
		rts[e.RefreshToken] = true
	}
	return rts
}

func TestSharedForSameCache(t *testing.T) {
	a, b := cache.NewMemory(), cache.NewMemory()
	if SharedFor(a) != SharedFor(a) {
		t.Errorf("TestSharedForSameCache: one cache got two Shared values")
	}
	if SharedFor(a) == SharedFor(b) {
		t.Errorf("TestSharedForSameCache: two caches got the same Shared")
	}
	d := NewDriver(testAuthority, resourceA, testClientID, "", a, nil, nil, nil)
	if d.shared != SharedFor(a) {
		t.Errorf("TestSharedForSameCache: NewDriver(nil shared) did not use the Shared of its cache")
	}
}

func TestConcurrentMRRTAddsOnOneCache(t *testing.T) {
	ctx := context.Background()
	c := newPausingCache()

	first := make(chan error, 1)
	go func() {
		_, err := NewDriver(testAuthority, resourceA, testClientID, "", c, nil, nil, nil).Add(ctx, tokenResp("atA", "rt1", "user", true, time.Hour))
		first <- err
	}()
	<-c.paused

	second := make(chan error, 1)
	go func() {
		_, err := NewDriver(testAuthority, resourceB, testClientID, "", c, nil, nil, nil).Add(ctx, tokenResp("atB", "rt2", "user", true, time.Hour))
		second <- err
	}()
	// Give the second add the chance to run ahead of the paused one.
	time.Sleep(50 * time.Millisecond)
	close(c.resume)

	if err := <-first; err != nil {
		t.Fatalf("TestConcurrentMRRTAddsOnOneCache: first Add(): got err == %s, want err == nil", err)
	}
	if err := <-second; err != nil {
		t.Fatalf("TestConcurrentMRRTAddsOnOneCache: second Add(): got err == %s, want err == nil", err)
	}

	if got := c.Len(); got != 2 {
		t.Fatalf("TestConcurrentMRRTAddsOnOneCache: got %d entries, want 2", got)
	}
	rts := refreshTokens(t, c, "user")
	if diff := pretty.Compare(map[string]bool{"rt2": true}, rts); diff != "" {
		t.Errorf("TestConcurrentMRRTAddsOnOneCache: MRRT entries hold different refresh tokens: -want/+got:\n%s", diff)
	}
}
