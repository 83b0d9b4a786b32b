// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package cache

import (
	"errors"
	"fmt"
	"strings"
	"time"

	internalTime "github.com/AzureAD/msal-broker-go/apps/internal/json/types/time"
)

const (
	// KeySeparator is used in creating the keys of the cache.
	KeySeparator = "-"
	// ScopeSeparator separates scopes in an access token's Target.
	ScopeSeparator = " "
)

// Credential types as written by the browser libraries.
const (
	CredentialTypeAccessToken  = "AccessToken"
	CredentialTypeIDToken      = "IdToken"
	CredentialTypeRefreshToken = "RefreshToken"
)

func cacheKey(parts ...string) string {
	return strings.ToLower(strings.Join(parts, KeySeparator))
}

// AccessToken is the cache representation of an access token.
type AccessToken struct {
	HomeAccountID     string            `json:"homeAccountId,omitempty"`
	Environment       string            `json:"environment,omitempty"`
	CredentialType    string            `json:"credentialType,omitempty"`
	ClientID          string            `json:"clientId,omitempty"`
	Secret            string            `json:"secret,omitempty"`
	FamilyID          string            `json:"familyId,omitempty"`
	Realm             string            `json:"realm,omitempty"`
	Target            string            `json:"target,omitempty"`
	TokenType         string            `json:"tokenType,omitempty"`
	KeyID             string            `json:"keyId,omitempty"`
	CachedAt          internalTime.Unix `json:"cachedAt"`
	ExpiresOn         internalTime.Unix `json:"expiresOn"`
	ExtendedExpiresOn internalTime.Unix `json:"extendedExpiresOn"`
	RefreshOn         internalTime.Unix `json:"refreshOn"`
}

// NewAccessToken is the constructor for AccessToken.
func NewAccessToken(homeID, env, realm, clientID string, cachedAt, expiresOn, extendedExpiresOn time.Time, scopes, token string) AccessToken {
	return AccessToken{
		HomeAccountID:     homeID,
		Environment:       env,
		Realm:             realm,
		CredentialType:    CredentialTypeAccessToken,
		ClientID:          clientID,
		Secret:            token,
		Target:            scopes,
		CachedAt:          internalTime.Unix{T: cachedAt.UTC()},
		ExpiresOn:         internalTime.Unix{T: expiresOn.UTC()},
		ExtendedExpiresOn: internalTime.Unix{T: extendedExpiresOn.UTC()},
	}
}

// Key outputs the key that can be used to uniquely look up this entry in a map.
func (a AccessToken) Key() string {
	return cacheKey(a.HomeAccountID, a.Environment, a.CredentialType, a.ClientID, a.Realm, a.Target)
}

// Scopes returns the scopes the token was granted for.
func (a AccessToken) Scopes() []string {
	return strings.Fields(a.Target)
}

// Validate validates that this AccessToken can be used.
func (a AccessToken) Validate() error {
	if a.CachedAt.T.IsZero() {
		return fmt.Errorf("access token does not have CachedAt set")
	}
	if a.CachedAt.T.After(time.Now()) {
		return errors.New("access token isn't valid, it was cached at a future time")
	}
	if a.ExpiresOn.T.Before(time.Now().Add(5 * time.Minute)) {
		return fmt.Errorf("access token is expired")
	}
	return nil
}

// IDToken is the cache representation of an ID token.
type IDToken struct {
	HomeAccountID  string `json:"homeAccountId,omitempty"`
	Environment    string `json:"environment,omitempty"`
	CredentialType string `json:"credentialType,omitempty"`
	ClientID       string `json:"clientId,omitempty"`
	Secret         string `json:"secret,omitempty"`
	Realm          string `json:"realm,omitempty"`
}

// NewIDToken is the constructor for IDToken.
func NewIDToken(homeID, env, realm, clientID, idToken string) IDToken {
	return IDToken{
		HomeAccountID:  homeID,
		Environment:    env,
		Realm:          realm,
		CredentialType: CredentialTypeIDToken,
		ClientID:       clientID,
		Secret:         idToken,
	}
}

// IsZero determines if IDToken is the zero value.
func (i IDToken) IsZero() bool {
	return i == IDToken{}
}

// Key outputs the key that can be used to uniquely look up this entry in a map.
func (i IDToken) Key() string {
	return cacheKey(i.HomeAccountID, i.Environment, i.CredentialType, i.ClientID, i.Realm, "")
}

// RefreshToken is the cache representation of a refresh token. Brokers never relay refresh
// tokens, but the type is part of the shared contract so that a persisted cache written by
// another client round trips.
type RefreshToken struct {
	HomeAccountID  string `json:"homeAccountId,omitempty"`
	Environment    string `json:"environment,omitempty"`
	CredentialType string `json:"credentialType,omitempty"`
	ClientID       string `json:"clientId,omitempty"`
	FamilyID       string `json:"familyId,omitempty"`
	Secret         string `json:"secret,omitempty"`
	Realm          string `json:"realm,omitempty"`
	Target         string `json:"target,omitempty"`
}

// Key outputs the key that can be used to uniquely look up this entry in a map.
// Family refresh tokens are keyed by family rather than client.
func (r RefreshToken) Key() string {
	id := r.ClientID
	if r.FamilyID != "" {
		id = r.FamilyID
	}
	return cacheKey(r.HomeAccountID, r.Environment, r.CredentialType, id, "", "")
}

// Account is the cache representation of a signed in account.
type Account struct {
	HomeAccountID        string `json:"homeAccountId,omitempty"`
	Environment          string `json:"environment,omitempty"`
	Realm                string `json:"realm,omitempty"`
	LocalAccountID       string `json:"localAccountId,omitempty"`
	Username             string `json:"username,omitempty"`
	AuthorityType        string `json:"authorityType,omitempty"`
	Name                 string `json:"name,omitempty"`
	ClientInfo           string `json:"clientInfo,omitempty"`
	LastModificationTime string `json:"lastModificationTime,omitempty"`
	LastModificationApp  string `json:"lastModificationApp,omitempty"`
	CloudGraphHostName   string `json:"cloudGraphHostName,omitempty"`
	MsGraphHost          string `json:"msGraphHost,omitempty"`
	NativeAccountID      string `json:"nativeAccountId,omitempty"`
}

// NewAccount creates an account.
func NewAccount(homeAccountID, env, realm, localAccountID, authorityType, username string) Account {
	return Account{
		HomeAccountID:  homeAccountID,
		Environment:    env,
		Realm:          realm,
		LocalAccountID: localAccountID,
		AuthorityType:  authorityType,
		Username:       username,
	}
}

// Key creates the key for storing accounts in the cache.
func (a Account) Key() string {
	return cacheKey(a.HomeAccountID, a.Environment, a.Realm)
}

// IsZero checks the zero value of account.
func (a Account) IsZero() bool {
	return a == Account{}
}

// AppMetaData is the cache representation of application metadata.
type AppMetaData struct {
	FamilyID    string `json:"familyId,omitempty"`
	ClientID    string `json:"clientId,omitempty"`
	Environment string `json:"environment,omitempty"`
}

// NewAppMetaData is the constructor for AppMetaData.
func NewAppMetaData(familyID, clientID, environment string) AppMetaData {
	return AppMetaData{
		FamilyID:    familyID,
		ClientID:    clientID,
		Environment: environment,
	}
}

// Key outputs the key that can be used to uniquely look up this entry in a map.
func (a AppMetaData) Key() string {
	return cacheKey("appmetadata", a.Environment, a.ClientID)
}

// Record is the set of entities written to the cache as the outcome of one authentication.
// Nil entities are not written.
type Record struct {
	AccessToken  *AccessToken
	IDToken      *IDToken
	Account      *Account
	RefreshToken *RefreshToken
	AppMetaData  *AppMetaData
}
