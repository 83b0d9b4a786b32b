// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/AzureAD/msal-broker-go/apps/cache"
	"github.com/AzureAD/msal-broker-go/apps/errors"
)

// CacheManager persists the entities derived from a successful broker response.
// Concurrent calls from simultaneous responses must be safe; SaveCacheRecord is the only
// write a response causes.
type CacheManager interface {
	SaveCacheRecord(ctx context.Context, record cache.Record) error
}

// ProcessResponse validates ev and processes it with Process. A message that is not a broker
// authentication response returns an error wrapping errors.ErrNotApplicable.
func ProcessResponse(ctx context.Context, ev Event, cm CacheManager) (AuthResult, error) {
	out := Classify(ev, DefaultProtocolVersion)
	if out.Kind != Accepted {
		return AuthResult{}, fmt.Errorf("%w: %s", errors.ErrNotApplicable, out.Reason)
	}
	return Process(ctx, out.Response, cm)
}

// Process turns a validated response into the caller's result. A broker failure is returned
// as the *errors.BrokerErr the broker sent, without touching the cache. On success the token
// bundle is written to cm as a single cache.Record and the AuthResult, which never carries
// the bundle, is returned. If the write fails no result is returned.
func Process(ctx context.Context, resp Response, cm CacheManager) (AuthResult, error) {
	return process(ctx, resp, cm.SaveCacheRecord)
}

func process(ctx context.Context, resp Response, save func(context.Context, cache.Record) error) (AuthResult, error) {
	if resp.Err != nil {
		return AuthResult{}, resp.Err
	}
	record, err := cacheRecord(resp.Result)
	if err != nil {
		return AuthResult{}, err
	}
	if err := save(ctx, record); err != nil {
		return AuthResult{}, fmt.Errorf("could not save broker tokens to the cache: %w", err)
	}
	return finish(resp.Result.AuthResult), nil
}

// cacheRecord hydrates the three entities relayed in the result's token bundle. Brokers never
// relay refresh tokens or app metadata, so those stay nil.
func cacheRecord(r *Result) (cache.Record, error) {
	if r == nil {
		return cache.Record{}, &errors.ProtocolErr{Reason: "result is missing"}
	}
	if r.TokensToCache == nil {
		return cache.Record{}, &errors.ProtocolErr{Reason: "result.tokensToCache is missing"}
	}

	accessToken := cache.AccessToken{CredentialType: cache.CredentialTypeAccessToken}
	idToken := cache.IDToken{CredentialType: cache.CredentialTypeIDToken}
	account := cache.Account{}

	parts := []struct {
		name   string
		raw    json.RawMessage
		entity any
	}{
		{"accessToken", r.TokensToCache.AccessToken, &accessToken},
		{"idToken", r.TokensToCache.IDToken, &idToken},
		{"account", r.TokensToCache.Account, &account},
	}
	for _, p := range parts {
		if !populated(p.raw) {
			return cache.Record{}, &errors.ProtocolErr{Reason: "result.tokensToCache." + p.name + " is missing"}
		}
		if err := cache.ToObject(p.raw, p.entity); err != nil {
			return cache.Record{}, &errors.ProtocolErr{Reason: "result.tokensToCache." + p.name + " is malformed", Err: err}
		}
	}

	return cache.Record{
		AccessToken:  &accessToken,
		IDToken:      &idToken,
		Account:      &account,
		RefreshToken: nil,
		AppMetaData:  nil,
	}, nil
}

// finish prepares a result for the caller.
func finish(ar AuthResult) AuthResult {
	delete(ar.AdditionalFields, tokensToCacheField)
	if len(ar.IDTokenClaims) == 0 && ar.IDToken != "" {
		if claims, err := idTokenClaims(ar.IDToken); err == nil {
			ar.IDTokenClaims = claims
		}
	}
	return ar
}
