// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package mock provides a fake HTTP transport that replays a queue of responses, plus canned
// Key Vault bodies for driving the secrets client without a vault.
package mock

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

type response struct {
	body     []byte
	callback func(*http.Request)
	code     int
	headers  http.Header
}

type responseOption interface {
	apply(*response)
}

type respOpt func(*response)

func (fn respOpt) apply(r *response) {
	fn(r)
}

// WithBody sets the HTTP response's body to the specified value.
func WithBody(b []byte) responseOption {
	return respOpt(func(r *response) {
		r.body = b
	})
}

// WithCallback sets a callback to invoke before returning the response.
func WithCallback(callback func(*http.Request)) responseOption {
	return respOpt(func(r *response) {
		r.callback = callback
	})
}

// WithHTTPHeader sets the HTTP headers of the response to the specified value.
func WithHTTPHeader(header http.Header) responseOption {
	return respOpt(func(r *response) {
		r.headers = header
	})
}

// WithHTTPStatusCode sets the HTTP statusCode of response to the specified value.
func WithHTTPStatusCode(statusCode int) responseOption {
	return respOpt(func(r *response) {
		r.code = statusCode
	})
}

// Client is a mock HTTP client that returns a sequence of responses. Use AppendResponse to specify the sequence.
type Client struct {
	mu   sync.Mutex
	resp []response
	reqs []*http.Request
}

func NewClient() *Client {
	return &Client{}
}

func (c *Client) AppendResponse(opts ...responseOption) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := response{code: http.StatusOK, headers: http.Header{}}
	for _, o := range opts {
		o.apply(&r)
	}
	c.resp = append(c.resp, r)
}

// Do implements the azcore policy.Transporter interface.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.resp) == 0 {
		panic(fmt.Sprintf(`no response for "%s %s"`, req.Method, req.URL.String()))
	}
	resp := c.resp[0]
	c.resp = c.resp[1:]
	c.reqs = append(c.reqs, req)
	if resp.callback != nil {
		resp.callback(req)
	}
	res := http.Response{Header: resp.headers, StatusCode: resp.code, Request: req}
	res.Body = io.NopCloser(bytes.NewReader(resp.body))
	return &res, nil
}

// Requests returns the requests served so far.
func (c *Client) Requests() []*http.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*http.Request(nil), c.reqs...)
}

// Pending reports how many queued responses have not been served.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.resp)
}

// KeyVaultChallenge is the header of the 401 a vault answers an unauthenticated request with.
func KeyVaultChallenge(tenant string) http.Header {
	h := http.Header{}
	h.Set("WWW-Authenticate", fmt.Sprintf(`Bearer authorization="https://login.microsoftonline.com/%s", resource="https://vault.azure.net"`, tenant))
	return h
}

// GetSecretBody is the body of a secret read or write.
func GetSecretBody(vaultURL, name, value, contentType string) []byte {
	body, err := json.Marshal(map[string]any{
		"id":          fmt.Sprintf("%s/secrets/%s/0123456789abcdef", strings.TrimSuffix(vaultURL, "/"), name),
		"value":       value,
		"contentType": contentType,
		"attributes":  map[string]any{"enabled": true},
	})
	if err != nil {
		panic(err)
	}
	return body
}

// GetKeyVaultErrorBody is the body of a failed vault call.
func GetKeyVaultErrorBody(code, message string) []byte {
	return []byte(fmt.Sprintf(`{"error": {"code": %q, "message": %q}}`, code, message))
}

// JSONHeader is the header of a JSON response.
func JSONHeader() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json; charset=utf-8")
	return h
}
