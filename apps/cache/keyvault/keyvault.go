// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package keyvault persists the broker token cache as Azure Key Vault secrets, one secret
// per cache partition. Secret values are the base64 encoded, optionally sealed, cache.
package keyvault

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"

	"github.com/AzureAD/msal-broker-go/apps/cache"
	"github.com/AzureAD/msal-broker-go/apps/internal/seal"
)

const (
	// DefaultPrefix starts every secret name.
	DefaultPrefix = "msal-cache"
	// DefaultTimeout bounds calls whose Context has no deadline.
	DefaultTimeout = 30 * time.Second
	contentType    = "application/vnd.msal.cache+base64"
)

// secretClient is the part of *azsecrets.Client the accessor uses.
type secretClient interface {
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
	SetSecret(ctx context.Context, name string, parameters azsecrets.SetSecretParameters, options *azsecrets.SetSecretOptions) (azsecrets.SetSecretResponse, error)
}

// Accessor implements cache.ExportReplaceCtx on top of a Key Vault.
type Accessor struct {
	client  secretClient
	prefix  string
	timeout time.Duration
	sealer  *seal.Sealer

	clientOptions *azsecrets.ClientOptions
}

// Option is an optional argument to New.
type Option func(a *Accessor)

// WithPrefix sets the secret name prefix. It must only contain letters, digits and dashes.
func WithPrefix(prefix string) Option {
	return func(a *Accessor) {
		a.prefix = prefix
	}
}

// WithTimeout sets the timeout used when a Context has no deadline.
func WithTimeout(timeout time.Duration) Option {
	return func(a *Accessor) {
		a.timeout = timeout
	}
}

// WithSealer encrypts partitions with s before they are stored.
func WithSealer(s *seal.Sealer) Option {
	return func(a *Accessor) {
		a.sealer = s
	}
}

// WithClientOptions configures the underlying azsecrets client, for example its transport or
// retry policy. It only applies to New.
func WithClientOptions(o *azsecrets.ClientOptions) Option {
	return func(a *Accessor) {
		a.clientOptions = o
	}
}

// New creates an Accessor for the vault at vaultURL, authenticating with cred.
func New(vaultURL string, cred azcore.TokenCredential, options ...Option) (*Accessor, error) {
	a := newAccessor(nil, options...)
	client, err := azsecrets.NewClient(vaultURL, cred, a.clientOptions)
	if err != nil {
		return nil, fmt.Errorf("creating key vault client for %s: %w", vaultURL, err)
	}
	a.client = client
	return a, nil
}

func newAccessor(client secretClient, options ...Option) *Accessor {
	a := &Accessor{client: client, prefix: DefaultPrefix, timeout: DefaultTimeout}
	for _, o := range options {
		o(a)
	}
	return a
}

var _ cache.ExportReplaceCtx = (*Accessor)(nil)

// secretName maps a partition key onto the secret name alphabet. Partition keys contain dots
// and other characters Key Vault does not allow, so they are hashed.
func (a *Accessor) secretName(key string) string {
	sum := sha256.Sum256([]byte(key))
	return a.prefix + "-" + hex.EncodeToString(sum[:16])
}

func (a *Accessor) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || a.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.timeout)
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}

// ReplaceCtx implements cache.ExportReplaceCtx. A partition without a secret leaves the cache
// untouched.
func (a *Accessor) ReplaceCtx(ctx context.Context, c cache.Unmarshaler, key string) error {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	name := a.secretName(key)
	resp, err := a.client.GetSecret(ctx, name, "", nil)
	switch {
	case isNotFound(err):
		return nil
	case err != nil:
		return fmt.Errorf("reading secret %s: %w", name, err)
	case resp.Value == nil || *resp.Value == "":
		return nil
	}

	sealed, err := base64.StdEncoding.DecodeString(*resp.Value)
	if err != nil {
		return fmt.Errorf("secret %s is not a cache: %w", name, err)
	}
	data, err := a.sealer.Open(sealed, key)
	if err != nil {
		return fmt.Errorf("secret %s: %w", name, err)
	}
	return c.Unmarshal(data)
}

// ExportCtx implements cache.ExportReplaceCtx. Every export creates a new secret version.
func (a *Accessor) ExportCtx(ctx context.Context, c cache.Marshaler, key string) error {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	data, err := c.Marshal()
	if err != nil {
		return err
	}
	sealed, err := a.sealer.Seal(data, key)
	if err != nil {
		return err
	}

	name := a.secretName(key)
	value, ct := base64.StdEncoding.EncodeToString(sealed), contentType
	params := azsecrets.SetSecretParameters{Value: &value, ContentType: &ct}
	if _, err := a.client.SetSecret(ctx, name, params, nil); err != nil {
		return fmt.Errorf("writing secret %s: %w", name, err)
	}
	return nil
}

// StaticCredential is an azcore.TokenCredential that always returns the same bearer token,
// for callers that obtained a Key Vault token out of band.
type StaticCredential struct {
	Token     string
	ExpiresOn time.Time
}

// GetToken implements azcore.TokenCredential.
func (s StaticCredential) GetToken(ctx context.Context, options policy.TokenRequestOptions) (azcore.AccessToken, error) {
	if s.Token == "" {
		return azcore.AccessToken{}, errors.New("no key vault token was configured")
	}
	expires := s.ExpiresOn
	if expires.IsZero() {
		expires = time.Now().Add(time.Hour)
	}
	return azcore.AccessToken{Token: s.Token, ExpiresOn: expires}, nil
}
