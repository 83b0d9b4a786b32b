// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package broker

import (
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testHID         = "uid.utid"
	testEnvironment = "login.microsoftonline.com"
	testRealm       = "contoso"
	testClientID    = "my_client_id"
	testScope       = "user.read"
	testAccessToken = "tok-1"
)

// obj is a JSON object under construction.
type obj = map[string]any

// successMessage returns a broker response for a silent flow that succeeded for hid.
func successMessage(hid string) obj {
	now := time.Now()
	unix := func(t time.Time) string { return strconv.FormatInt(t.Unix(), 10) }
	return obj{
		"messageType":     "BrokerAuthResult",
		"interactionType": "silent",
		"version":         DefaultProtocolVersion,
		"result": obj{
			"authority":     "https://login.microsoftonline.com/contoso",
			"uniqueId":      "oid",
			"tenantId":      "utid",
			"scopes":        []string{testScope},
			"accessToken":   testAccessToken,
			"idToken":       "x.e30.",
			"tokenType":     "Bearer",
			"correlationId": "corr-1",
			"expiresOn":     now.Add(time.Hour).UTC().Format(time.RFC3339),
			"account": obj{
				"homeAccountId": hid,
				"environment":   testEnvironment,
				"tenantId":      "utid",
				"username":      "john@contoso.com",
			},
			"tokensToCache": obj{
				"accessToken": obj{
					"homeAccountId":     hid,
					"environment":       testEnvironment,
					"credentialType":    "AccessToken",
					"clientId":          testClientID,
					"secret":            testAccessToken,
					"realm":             testRealm,
					"target":            testScope,
					"tokenType":         "Bearer",
					"cachedAt":          unix(now),
					"expiresOn":         unix(now.Add(time.Hour)),
					"extendedExpiresOn": unix(now.Add(2 * time.Hour)),
				},
				"idToken": obj{
					"homeAccountId":  hid,
					"environment":    testEnvironment,
					"credentialType": "IdToken",
					"clientId":       testClientID,
					"secret":         "x.e30.",
					"realm":          testRealm,
				},
				"account": obj{
					"homeAccountId":  hid,
					"environment":    testEnvironment,
					"realm":          testRealm,
					"localAccountId": "oid",
					"username":       "john@contoso.com",
					"authorityType":  "MSSTS",
				},
			},
		},
	}
}

func errorMessage() obj {
	return obj{
		"messageType":     "BrokerAuthResult",
		"interactionType": "popup",
		"error": obj{
			"errorCode":     "user_cancelled",
			"errorMessage":  "User cancelled the flow.",
			"correlationId": "corr-2",
		},
	}
}

// field returns the nested object at path, creating nothing.
func field(m obj, path ...string) obj {
	for _, p := range path {
		m = m[p].(obj)
	}
	return m
}

func encode(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("could not encode test message: %s", err)
	}
	return b
}

func event(t *testing.T, v any) Event {
	t.Helper()
	return Event{Origin: "https://broker.example.com", Data: encode(t, v)}
}

func signedIDToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("not-a-real-key"))
	if err != nil {
		t.Fatalf("could not sign id token: %s", err)
	}
	return s
}
