// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package performance

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"testing"
	"time"

	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/cache"
	internalCache "github.com/AzureAD/azure-activedirectory-library-for-go/apps/internal/cache"
	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/internal/oauth/ops/accesstokens"
	"github.com/montanaflynn/stats"
)

const (
	fakeAuthority = "https://login.microsoftonline.com/fake_tenant"
	fakeClientID  = "fake_client_id"
)

func resourceName(i int) string {
	return fmt.Sprintf("https://resource%d.example.com", i)
}

func userName(i int) string {
	return fmt.Sprintf("user%d@contoso.com", i)
}

func driver(c cache.Cache, resource string, shared *internalCache.Shared) *internalCache.Driver {
	return internalCache.NewDriver(fakeAuthority, resource, fakeClientID, "", c, nil, nil, shared)
}

func populateCache(users int, tokens int, c cache.Cache) {
	shared := &internalCache.Shared{}
	for user := 0; user < users; user++ {
		for token := 0; token < tokens; token++ {
			resource := resourceName(token)
			_, err := driver(c, resource, shared).Add(context.Background(), accesstokens.TokenResponse{
				TokenType:    "Bearer",
				AccessToken:  fmt.Sprintf("fake_access_token%d_%d", user, token),
				RefreshToken: "fake_refresh_token",
				ExpiresOn:    time.Now().Add(1 * time.Hour),
				Resource:     resource,
				Identity:     &accesstokens.Identity{UserID: userName(user)},
			})
			if err != nil {
				panic(err)
			}
		}
	}
}

func calculateStats(users, tokens int, duration []float64) {
	fmt.Printf("No of users: %d, No of tokens per user: %d \n", users, tokens)

	report := []struct {
		name string
		fn   func(stats.Float64Data) (float64, error)
	}{
		{"Mean", stats.Mean},
		{"Median", stats.Median},
		{"Standard Deviation", stats.StandardDeviation},
		{"Min Time", stats.Min},
		{"Max Time", stats.Max},
	}
	for _, r := range report {
		v, err := r.fn(duration)
		if err != nil {
			panic(err)
		}
		fmt.Println(r.name)
		fmt.Println(v / float64(time.Microsecond))
	}

	p99, err := stats.Percentile(duration, 99)
	if err != nil {
		panic(err)
	}
	fmt.Println("99th Percentile")
	fmt.Println(p99 / float64(time.Microsecond))
}

func benchMarkFind(users int, tokens int, c cache.Cache, length time.Duration) []float64 {
	shared := &internalCache.Shared{}
	var duration []float64
	for start := time.Now(); time.Since(start) < length; {
		s := time.Now()
		queryCache(users, tokens, c, shared)
		e := time.Now()
		duration = append(duration, float64(e.Sub(s)))
	}
	return duration
}

func queryCache(users int, tokens int, c cache.Cache, shared *internalCache.Shared) {
	user := userName(rand.Intn(users))
	resource := resourceName(rand.Intn(tokens))
	_, found, err := driver(c, resource, shared).Find(context.Background(), user)
	if err != nil {
		panic(err)
	}
	if !found {
		panic(fmt.Sprintf("no token cached for %s and %s", user, resource))
	}
}

func TestCacheFind(t *testing.T) {
	if os.Getenv("CI") != "" {
		t.Skip("Skipping testing in CI environment")
	}
	if testing.Short() {
		t.Skip("Skipping performance test in short mode")
	}
	tests := []struct {
		Users  int
		Tokens int
	}{
		{1, 100},
		{1, 1000},
		{100, 100},
		{1000, 10},
	}

	for _, test := range tests {
		c := cache.NewMemory()
		populateCache(test.Users, test.Tokens, c)
		duration := benchMarkFind(test.Users, test.Tokens, c, 5*time.Second)
		calculateStats(test.Users, test.Tokens, duration)
	}
}
