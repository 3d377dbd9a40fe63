// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"text/template"
	"time"

	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/adal"
	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/cache"
	"github.com/AzureAD/azure-activedirectory-library-for-go/apps/internal/mock"
)

const (
	accessToken = "fake_token"
	clientID    = "fake_client_id"
	secret      = "fake_secret"
)

type testParams struct {
	// the number of goroutines to use
	Concurrency int

	// the number of tokens in the cache
	// must be divisible by Concurrency
	TokenCount int
}

// fakeContext returns an AuthenticationContext whose authority answers every token
// request with the same token.
func fakeContext() (*adal.AuthenticationContext, error) {
	mc := mock.NewClient()
	mc.Repeat = true
	mc.AppendResponse(mock.WithBody(mock.TokenBody{AccessToken: accessToken, ExpiresIn: 3600}.Bytes()))

	return adal.New(
		"https://login.microsoftonline.com/fake_tenant",
		adal.WithHTTPClient(mc),
		adal.WithCache(cache.NewMemory()),
	)
}

func resource(i int) string {
	return fmt.Sprintf("https://resource%d.example.com", i)
}

type execTime struct {
	start time.Time
	end   time.Time
}

func populateTokenCache(ac *adal.AuthenticationContext, params testParams) execTime {
	if r := params.TokenCount % params.Concurrency; r != 0 {
		panic("TokenCount must be divisible by Concurrency")
	}
	parts := params.TokenCount / params.Concurrency

	wg := &sync.WaitGroup{}
	fmt.Printf("Populating token cache with %d tokens...", params.TokenCount)
	start := time.Now()
	for n := 0; n < params.Concurrency; n++ {
		wg.Add(1)
		go func(chunk int) {
			defer wg.Done()
			// each token is for a different resource which is what makes them unique
			for i := parts * chunk; i < parts*(chunk+1); i++ {
				if _, err := ac.AcquireTokenWithClientCredentials(context.Background(), resource(i), clientID, secret); err != nil {
					panic(err)
				}
			}
		}(n)
	}
	wg.Wait()
	return execTime{start: start, end: time.Now()}
}

func executeTest(ac *adal.AuthenticationContext, params testParams) execTime {
	wg := &sync.WaitGroup{}
	fmt.Printf("Begin token retrieval.....")
	start := time.Now()
	for n := 0; n < params.Concurrency; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// retrieve each token once per goroutine
			for tk := 0; tk < params.TokenCount; tk++ {
				if _, err := ac.AcquireToken(context.Background(), resource(tk), "", clientID); err != nil {
					panic(err)
				}
			}
		}()
	}
	wg.Wait()
	return execTime{start: start, end: time.Now()}
}

// Stats is used with statsTemplText for reporting purposes
type Stats struct {
	popExec     execTime
	retExec     execTime
	Concurrency int
	Count       int64
}

// PopDur returns the total duration for populating the cache.
func (s *Stats) PopDur() time.Duration {
	return s.popExec.end.Sub(s.popExec.start)
}

// RetDur returns the total duration for retrieving tokens.
func (s *Stats) RetDur() time.Duration {
	return s.retExec.end.Sub(s.retExec.start)
}

// PopAvg returns the mean average of caching a token.
func (s *Stats) PopAvg() time.Duration {
	return s.PopDur() / time.Duration(s.Count)
}

// RetAvg returns the mean average of retrieving a token.
func (s *Stats) RetAvg() time.Duration {
	return s.RetDur() / time.Duration(s.Count*int64(s.Concurrency))
}

var statsTemplText = `
Test Results:
[{{.Concurrency}} goroutines][{{.Count}} tokens] [population: total {{.PopDur}}, avg {{.PopAvg}}] [retrieval: total {{.RetDur}}, avg {{.RetAvg}}]
==========================================================================
`
var statsTempl = template.Must(template.New("stats").Parse(statsTemplText))

func main() {
	tests := []testParams{
		{Concurrency: runtime.NumCPU(), TokenCount: 100},
		{Concurrency: runtime.NumCPU(), TokenCount: 1000},
		{Concurrency: runtime.NumCPU(), TokenCount: 5000},
	}

	for _, t := range tests {
		if t.TokenCount%t.Concurrency != 0 {
			t.TokenCount -= t.TokenCount % t.Concurrency
		}
		ac, err := fakeContext()
		if err != nil {
			panic(err)
		}
		fmt.Printf("Test Params: %#v\n", t)
		ptime := populateTokenCache(ac, t)
		ttime := executeTest(ac, t)
		if err := statsTempl.Execute(os.Stdout, &Stats{
			popExec:     ptime,
			retExec:     ttime,
			Concurrency: t.Concurrency,
			Count:       int64(t.TokenCount),
		}); err != nil {
			panic(err)
		}
	}
}
