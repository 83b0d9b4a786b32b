// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package broker

import (
	"encoding/json"
	"reflect"
	"strings"

	internalTime "github.com/AzureAD/msal-broker-go/apps/internal/json/types/time"
)

// AccountInfo describes the signed in account in an AuthResult.
type AccountInfo struct {
	HomeAccountID  string         `json:"homeAccountId,omitempty"`
	Environment    string         `json:"environment,omitempty"`
	TenantID       string         `json:"tenantId,omitempty"`
	Username       string         `json:"username,omitempty"`
	LocalAccountID string         `json:"localAccountId,omitempty"`
	Name           string         `json:"name,omitempty"`
	IDTokenClaims  map[string]any `json:"idTokenClaims,omitempty"`
}

// AuthResult contains the results of one broker token acquisition, as handed to the caller.
// The tokens it describes have already been written to the cache.
type AuthResult struct {
	Authority          string             `json:"authority,omitempty"`
	UniqueID           string             `json:"uniqueId,omitempty"`
	TenantID           string             `json:"tenantId,omitempty"`
	Scopes             []string           `json:"scopes,omitempty"`
	Account            *AccountInfo       `json:"account,omitempty"`
	IDToken            string             `json:"idToken,omitempty"`
	IDTokenClaims      map[string]any     `json:"idTokenClaims,omitempty"`
	AccessToken        string             `json:"accessToken,omitempty"`
	FromCache          bool               `json:"fromCache,omitempty"`
	ExpiresOn          *internalTime.Date `json:"expiresOn,omitempty"`
	ExtExpiresOn       *internalTime.Date `json:"extExpiresOn,omitempty"`
	TokenType          string             `json:"tokenType,omitempty"`
	CorrelationID      string             `json:"correlationId,omitempty"`
	State              string             `json:"state,omitempty"`
	FamilyID           string             `json:"familyId,omitempty"`
	CloudGraphHostName string             `json:"cloudGraphHostName,omitempty"`
	MsGraphHost        string             `json:"msGraphHost,omitempty"`

	// AdditionalFields holds result fields this package does not model, so that a newer
	// broker's result reaches the caller intact.
	AdditionalFields map[string]json.RawMessage `json:"-"`
}

// tokensToCacheField is the transient bundle key; it never survives into an AuthResult.
const tokensToCacheField = "tokensToCache"

// resultFields are the JSON names AuthResult models.
var resultFields = func() map[string]bool {
	m := map[string]bool{}
	t := reflect.TypeOf(AuthResult{})
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		if name != "" && name != "-" {
			m[name] = true
		}
	}
	return m
}()

// authResult has AuthResult's fields without its methods.
type authResult AuthResult

// UnmarshalJSON implements json.Unmarshaler. Unknown fields go to AdditionalFields, except
// tokensToCache which is dropped.
func (a *AuthResult) UnmarshalJSON(b []byte) error {
	var known authResult
	if err := json.Unmarshal(b, &known); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(b, &all); err != nil {
		return err
	}
	for k, v := range all {
		if resultFields[k] || k == tokensToCacheField {
			continue
		}
		if known.AdditionalFields == nil {
			known.AdditionalFields = map[string]json.RawMessage{}
		}
		known.AdditionalFields[k] = v
	}
	*a = AuthResult(known)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (a AuthResult) MarshalJSON() ([]byte, error) {
	b, err := json.Marshal(authResult(a))
	if err != nil || len(a.AdditionalFields) == 0 {
		return b, err
	}
	all := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &all); err != nil {
		return nil, err
	}
	for k, v := range a.AdditionalFields {
		if resultFields[k] || k == tokensToCacheField {
			continue
		}
		all[k] = v
	}
	return json.Marshal(all)
}
