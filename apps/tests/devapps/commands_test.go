// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/AzureAD/msal-broker-go/apps/broker"
	"github.com/AzureAD/msal-broker-go/apps/cache/rediscache"
	"github.com/AzureAD/msal-broker-go/apps/internal/local"
)

const testHID = "uid.utid"

func successMessage() string {
	return accountMessage(testHID)
}

// accountMessage is a successful broker response for the account hid.
func accountMessage(hid string) string {
	now := time.Now()
	return fmt.Sprintf(`{
	"messageType": "BrokerAuthResult",
	"interactionType": "redirect",
	"result": {
		"accessToken": "tok-1",
		"correlationId": "corr-1",
		"tokensToCache": {
			"accessToken": {
				"homeAccountId": %[1]q,
				"environment": "login.microsoftonline.com",
				"credentialType": "AccessToken",
				"clientId": "my_client_id",
				"secret": "tok-1",
				"realm": "contoso",
				"target": "user.read",
				"cachedAt": "%[2]d",
				"expiresOn": "%[3]d",
				"extendedExpiresOn": "%[3]d"
			},
			"idToken": {"homeAccountId": %[1]q, "environment": "login.microsoftonline.com", "credentialType": "IdToken", "clientId": "my_client_id", "secret": "x.e30.", "realm": "contoso"},
			"account": {"homeAccountId": %[1]q, "environment": "login.microsoftonline.com", "realm": "contoso", "username": "john@contoso.com", "authorityType": "MSSTS"}
		}
	}
}`, hid, now.Unix(), now.Add(time.Hour).Unix())
}

// fileBackedConfig writes a config that persists the cache in a temp file.
func fileBackedConfig(t *testing.T) string {
	t.Helper()
	cacheFile := filepath.Join(t.TempDir(), "cache.json")
	return writeFile(t, "msalbroker.toml", fmt.Sprintf("log_level = \"error\"\n\n[cache]\nbackend = \"file\"\nfile = %q\n", cacheFile))
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestProcessAndReadBack(t *testing.T) {
	cfg := fileBackedConfig(t)
	msg := writeFile(t, "message.json", successMessage())

	out, err := run(t, "", "process", "--config", cfg, msg)
	require.NoError(t, err)
	require.Contains(t, out, `"accessToken": "tok-1"`)
	require.NotContains(t, out, "tokensToCache")

	out, err = run(t, "", "accounts", "--config", cfg)
	require.NoError(t, err)
	require.Contains(t, out, testHID)

	out, err = run(t, "", "token", "--config", cfg, "--account", testHID, "--client", "my_client_id", "--scopes", "user.read")
	require.NoError(t, err)
	require.Contains(t, out, `"secret": "tok-1"`)
}

func TestProcessAndReadBackRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := writeFile(t, "msalbroker.toml", fmt.Sprintf("log_level = \"error\"\n\n[cache]\nbackend = \"redis\"\n\n[cache.redis]\naddr = %q\n", mr.Addr()))

	const other = "other.utid"
	for _, hid := range []string{testHID, other} {
		_, err := run(t, "", "process", "--config", cfg, writeFile(t, hid+".json", accountMessage(hid)))
		require.NoError(t, err)
	}

	out, err := run(t, "", "accounts", "--config", cfg)
	require.NoError(t, err)
	require.Contains(t, out, testHID)
	require.Contains(t, out, other)

	out, err = run(t, "", "token", "--config", cfg, "--account", other, "--client", "my_client_id", "--scopes", "user.read")
	require.NoError(t, err)
	require.Contains(t, out, `"secret": "tok-1"`)

	partition, err := mr.Get(rediscache.DefaultPrefix + ":" + testHID)
	require.NoError(t, err)
	require.NotContains(t, partition, other, "an account partition holds another account")
}

func TestProcessStdin(t *testing.T) {
	out, err := run(t, successMessage(), "process", "--config", fileBackedConfig(t), "-")
	require.NoError(t, err)
	require.Contains(t, out, "tok-1")
}

func TestProcessRejects(t *testing.T) {
	cfg := fileBackedConfig(t)

	_, err := run(t, `{"messageType":"BrokerHandshakeResponse"}`, "process", "--config", cfg)
	require.ErrorContains(t, err, "not applicable")

	_, err = run(t, `{"messageType":"BrokerAuthResult","result":{}}`, "process", "--config", cfg)
	require.ErrorContains(t, err, "malformed")

	_, err = run(t, `{"messageType":"BrokerAuthResult","interactionType":"popup","error":{"errorCode":"user_cancelled"}}`, "process", "--config", cfg)
	require.ErrorContains(t, err, "user_cancelled")
}

func TestBrokerURL(t *testing.T) {
	u, err := brokerURL("https://broker.example.com/authorize?client_id=abc", "http://localhost:8400")
	require.NoError(t, err)
	parsed, err := url.Parse(u)
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8400", parsed.Query().Get("reply_to"))
	require.Equal(t, "abc", parsed.Query().Get("client_id"))

	_, err = brokerURL("", "http://localhost:8400")
	require.Error(t, err)
	_, err = brokerURL("http://broker.example.com", "http://localhost:8400")
	require.Error(t, err)
}

func postMessage(addr, body string) error {
	resp, err := http.Post(addr, "application/json", strings.NewReader(body))
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}
	return nil
}

func TestListenSkipsOtherMessages(t *testing.T) {
	client, err := broker.New()
	require.NoError(t, err)
	a := &app{client: client}

	serv, err := local.New(0, "", nil)
	require.NoError(t, err)
	defer serv.Shutdown()

	go func() {
		for _, body := range []string{"ping", `{"messageType":"BrokerHandshakeRequest"}`, successMessage()} {
			if err := postMessage(serv.Addr, body); err != nil {
				t.Error(err)
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var out bytes.Buffer
	require.NoError(t, listen(ctx, a, serv, &out, 1))
	require.Contains(t, out.String(), "tok-1")
}

// fakeBrowserOpenURL plays the broker: it posts a response to the reply_to channel.
func fakeBrowserOpenURL(authURL string) error {
	u, err := url.Parse(authURL)
	if err != nil {
		return err
	}
	replyTo := u.Query().Get("reply_to")
	if replyTo == "" {
		return fmt.Errorf("no reply_to in %s", authURL)
	}
	go func() { _ = postMessage(replyTo, successMessage()) }()
	return nil
}

func TestListenOpen(t *testing.T) {
	realBrowserOpenURL := browserOpenURL
	defer func() { browserOpenURL = realBrowserOpenURL }()
	browserOpenURL = fakeBrowserOpenURL

	cfg := writeFile(t, "msalbroker.toml", "log_level = \"error\"\n\n[listen]\nbroker_url = \"https://broker.example.com/authorize\"\n")
	out, err := run(t, "", "listen", "--config", cfg, "--open", "--count", "1")
	require.NoError(t, err)

	lines := strings.SplitN(out, "\n", 2)
	require.True(t, strings.HasPrefix(lines[0], "http://localhost:"), "the channel address is printed first")
	require.Contains(t, out, "tok-1")
}
