// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package storage holds all cached token information written from broker responses. This
// storage can be augmented with third-party extensions to provide persistent storage. In that
// case, reads and writes in upper packages will call Marshal() to take the entire in-memory
// representation and write it to storage and Unmarshal() to update the entire in-memory
// storage with what was in the persistent storage.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/AzureAD/msal-broker-go/apps/cache"
)

// Contract is the JSON structure that is written to any storage medium when serializing
// the internal cache. Top level names match the ones other MSAL libraries use.
type Contract struct {
	AccessTokens  map[string]cache.AccessToken  `json:"AccessToken"`
	RefreshTokens map[string]cache.RefreshToken `json:"RefreshToken"`
	IDTokens      map[string]cache.IDToken      `json:"IdToken"`
	Accounts      map[string]cache.Account      `json:"Account"`
	AppMetaData   map[string]cache.AppMetaData  `json:"AppMetadata"`
}

// NewContract is the constructor for Contract.
func NewContract() *Contract {
	return &Contract{
		AccessTokens:  map[string]cache.AccessToken{},
		RefreshTokens: map[string]cache.RefreshToken{},
		IDTokens:      map[string]cache.IDToken{},
		Accounts:      map[string]cache.Account{},
		AppMetaData:   map[string]cache.AppMetaData{},
	}
}

// ensure makes every map writable after a decode that left some of them nil.
func (c *Contract) ensure() {
	if c.AccessTokens == nil {
		c.AccessTokens = map[string]cache.AccessToken{}
	}
	if c.RefreshTokens == nil {
		c.RefreshTokens = map[string]cache.RefreshToken{}
	}
	if c.IDTokens == nil {
		c.IDTokens = map[string]cache.IDToken{}
	}
	if c.Accounts == nil {
		c.Accounts = map[string]cache.Account{}
	}
	if c.AppMetaData == nil {
		c.AppMetaData = map[string]cache.AppMetaData{}
	}
}

// Manager is an in-memory cache of access tokens, accounts and meta data. This data is
// updated on read/write calls. Unmarshal() replaces all data stored here with whatever
// was given to it on each call.
type Manager struct {
	contract   *Contract
	contractMu sync.RWMutex
}

// New is the constructor for Manager.
func New() *Manager {
	return &Manager{contract: NewContract()}
}

// SaveCacheRecord writes every entity of record to the cache. The record is written under a
// single lock, so concurrent readers see all of it or none of it.
func (m *Manager) SaveCacheRecord(ctx context.Context, record cache.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.contractMu.Lock()
	defer m.contractMu.Unlock()

	if at := record.AccessToken; at != nil {
		m.contract.AccessTokens[at.Key()] = *at
	}
	if idt := record.IDToken; idt != nil {
		m.contract.IDTokens[idt.Key()] = *idt
	}
	if acc := record.Account; acc != nil {
		m.contract.Accounts[acc.Key()] = *acc
	}
	if rt := record.RefreshToken; rt != nil {
		m.contract.RefreshTokens[rt.Key()] = *rt
	}
	if amd := record.AppMetaData; amd != nil {
		m.contract.AppMetaData[amd.Key()] = *amd
	}
	return nil
}

func isMatchingScopes(scopesOne []string, scopesTwo []string) bool {
	scopeCounter := 0
	for _, scope := range scopesOne {
		for _, otherScope := range scopesTwo {
			if scope == otherScope {
				scopeCounter++
				break
			}
		}
	}
	return scopeCounter == len(scopesOne)
}

// ReadAccessToken returns a cached, unexpired access token for the account and client that
// was granted at least scopes.
func (m *Manager) ReadAccessToken(homeAccountID, clientID string, scopes []string) (cache.AccessToken, error) {
	m.contractMu.RLock()
	defer m.contractMu.RUnlock()
	// TODO: linear search (over a map no less) is slow for a large number of tokens
	for _, at := range m.contract.AccessTokens {
		if at.HomeAccountID == homeAccountID && at.ClientID == clientID && isMatchingScopes(scopes, at.Scopes()) {
			if err := at.Validate(); err == nil {
				return at, nil
			}
		}
	}
	return cache.AccessToken{}, fmt.Errorf("access token not found")
}

// ReadIDToken returns the cached ID token for the account and client.
func (m *Manager) ReadIDToken(homeAccountID, clientID string) (cache.IDToken, error) {
	m.contractMu.RLock()
	defer m.contractMu.RUnlock()
	for _, idt := range m.contract.IDTokens {
		if idt.HomeAccountID == homeAccountID && idt.ClientID == clientID {
			return idt, nil
		}
	}
	return cache.IDToken{}, fmt.Errorf("id token not found")
}

// AllAccounts returns every cached account.
func (m *Manager) AllAccounts() []cache.Account {
	m.contractMu.RLock()
	defer m.contractMu.RUnlock()

	var accounts []cache.Account
	for _, v := range m.contract.Accounts {
		accounts = append(accounts, v)
	}
	return accounts
}

// Account returns the account with homeAccountID, or the zero Account.
func (m *Manager) Account(homeAccountID string) cache.Account {
	m.contractMu.RLock()
	defer m.contractMu.RUnlock()

	for _, v := range m.contract.Accounts {
		if v.HomeAccountID == homeAccountID {
			return v
		}
	}
	return cache.Account{}
}

// update updates the internal cache object. This is for use in tests, other uses are not
// supported.
func (m *Manager) update(c *Contract) {
	m.contractMu.Lock()
	defer m.contractMu.Unlock()
	c.ensure()
	m.contract = c
}

// Marshal implements cache.Marshaler.
func (m *Manager) Marshal() ([]byte, error) {
	m.contractMu.RLock()
	defer m.contractMu.RUnlock()
	return json.Marshal(m.contract)
}

// Unmarshal implements cache.Unmarshaler.
func (m *Manager) Unmarshal(b []byte) error {
	contract := NewContract()
	if err := json.Unmarshal(b, contract); err != nil {
		return err
	}
	contract.ensure()

	m.contractMu.Lock()
	defer m.contractMu.Unlock()
	m.contract = contract
	return nil
}
