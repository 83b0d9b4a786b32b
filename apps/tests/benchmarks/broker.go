// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Command benchmarks measures concurrent broker response processing and cache retrieval.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"sync"
	"text/template"
	"time"

	"github.com/AzureAD/msal-broker-go/apps/broker"
)

const (
	accessToken = "fake_token"
	homeID      = "fake_uid.fake_utid"
	clientID    = "fake_client_id"
)

type testParams struct {
	// the number of goroutines to use
	Concurrency int

	// the number of tokens in the cache
	// must be divisible by Concurrency
	TokenCount int
}

func fakeClient() (*broker.Client, error) {
	return broker.New(broker.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

// brokerResponse is a successful broker response relaying a token for scope.
func brokerResponse(scope string) broker.Event {
	now := time.Now()
	entity := func(m map[string]any) map[string]any {
		m["homeAccountId"] = homeID
		m["environment"] = "fake_authority"
		m["realm"] = "fake_utid"
		return m
	}
	data, err := json.Marshal(map[string]any{
		"messageType":     "BrokerAuthResult",
		"interactionType": "silent",
		"result": map[string]any{
			"accessToken": accessToken,
			"tokensToCache": map[string]any{
				"accessToken": entity(map[string]any{
					"credentialType":    "AccessToken",
					"clientId":          clientID,
					"secret":            accessToken,
					"target":            scope,
					"cachedAt":          strconv.FormatInt(now.Unix(), 10),
					"expiresOn":         strconv.FormatInt(now.Add(time.Hour).Unix(), 10),
					"extendedExpiresOn": strconv.FormatInt(now.Add(time.Hour).Unix(), 10),
				}),
				"idToken": entity(map[string]any{"credentialType": "IdToken", "clientId": clientID, "secret": "x.e30"}),
				"account": entity(map[string]any{"authorityType": "MSSTS"}),
			},
		},
	})
	if err != nil {
		panic(err)
	}
	return broker.Event{Data: data}
}

type execTime struct {
	start time.Time
	end   time.Time
}

func populateTokenCache(client *broker.Client, params testParams) execTime {
	if r := params.TokenCount % params.Concurrency; r != 0 {
		panic("TokenCount must be divisible by Concurrency")
	}
	parts := params.TokenCount / params.Concurrency

	// messages are built up front so only processing is timed
	events := make([]broker.Event, params.TokenCount)
	for i := range events {
		events[i] = brokerResponse(strconv.Itoa(i))
	}

	wg := &sync.WaitGroup{}
	fmt.Printf("Populating token cache with %d tokens...", params.TokenCount)
	start := time.Now()
	for n := 0; n < params.Concurrency; n++ {
		wg.Add(1)
		go func(chunk int) {
			for i := parts * chunk; i < parts*(chunk+1); i++ {
				// each token has a different scope which is what makes them unique
				if _, err := client.ProcessResponse(context.Background(), events[i]); err != nil {
					panic(err)
				}
			}
			wg.Done()
		}(n)
	}
	wg.Wait()
	return execTime{start: start, end: time.Now()}
}

func executeTest(client *broker.Client, params testParams) execTime {
	wg := &sync.WaitGroup{}
	fmt.Printf("Begin token retrieval.....")
	start := time.Now()
	for n := 0; n < params.Concurrency; n++ {
		wg.Add(1)
		go func() {
			// retrieve each token once per goroutine
			for tk := 0; tk < params.TokenCount; tk++ {
				_, err := client.CachedAccessToken(context.Background(), homeID, clientID, []string{strconv.Itoa(tk)})
				if err != nil {
					panic(err)
				}
			}
			wg.Done()
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

// PopAvg returns the mean average of processing one broker response.
func (s *Stats) PopAvg() time.Duration {
	return s.PopDur() / time.Duration(s.Count)
}

// RetAvg returns the mean average of retrieving a token.
func (s *Stats) RetAvg() time.Duration {
	return s.RetDur() / time.Duration(s.Count)
}

var statsTemplText = `
Test Results:
[{{.Concurrency}} goroutines][{{.Count}} tokens] [population: total {{.PopDur}}, avg {{.PopAvg}}] [retrieval: total {{.RetDur}}, avg {{.RetAvg}}]
==========================================================================
`
var statsTempl = template.Must(template.New("stats").Parse(statsTemplText))

func main() {
	tests := []testParams{
		{
			Concurrency: runtime.NumCPU(),
			TokenCount:  runtime.NumCPU() * 100,
		},
		{
			Concurrency: runtime.NumCPU(),
			TokenCount:  runtime.NumCPU() * 1000,
		},
		{
			Concurrency: runtime.NumCPU(),
			TokenCount:  runtime.NumCPU() * 5000,
		},
	}

	for _, t := range tests {
		client, err := fakeClient()
		if err != nil {
			panic(err)
		}
		fmt.Printf("Test Params: %#v\n", t)
		ptime := populateTokenCache(client, t)
		ttime := executeTest(client, t)
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
