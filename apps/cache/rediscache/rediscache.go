// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package rediscache persists the broker token cache in Redis. Each cache partition is stored
// under its own key, optionally sealed with a symmetric key before it leaves the process.
package rediscache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AzureAD/msal-broker-go/apps/cache"
	"github.com/AzureAD/msal-broker-go/apps/internal/seal"
)

const (
	// DefaultPrefix is prepended to every partition key.
	DefaultPrefix = "msal:cache"
	// DefaultTimeout bounds calls whose Context has no deadline.
	DefaultTimeout = 5 * time.Second
	// emptyPartition names the partition used when no key is suggested.
	emptyPartition = "default"
)

// Accessor implements cache.ExportReplaceCtx on top of a Redis client.
type Accessor struct {
	redis   redis.UniversalClient
	prefix  string
	ttl     time.Duration
	timeout time.Duration
	sealer  *seal.Sealer
}

// Option is an optional argument to New.
type Option func(a *Accessor)

// WithPrefix sets the key prefix. The default is DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(a *Accessor) {
		a.prefix = prefix
	}
}

// WithTTL expires stored partitions after ttl. The default keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(a *Accessor) {
		a.ttl = ttl
	}
}

// WithTimeout sets the timeout used when a Context has no deadline.
func WithTimeout(timeout time.Duration) Option {
	return func(a *Accessor) {
		a.timeout = timeout
	}
}

// WithSealer encrypts partitions with s.
func WithSealer(s *seal.Sealer) Option {
	return func(a *Accessor) {
		a.sealer = s
	}
}

// New creates an Accessor using client.
func New(client redis.UniversalClient, options ...Option) *Accessor {
	a := &Accessor{redis: client, prefix: DefaultPrefix, timeout: DefaultTimeout}
	for _, o := range options {
		o(a)
	}
	return a
}

var _ cache.ExportReplaceCtx = (*Accessor)(nil)

func (a *Accessor) key(partition string) string {
	if partition == "" {
		partition = emptyPartition
	}
	return a.prefix + ":" + partition
}

func (a *Accessor) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || a.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.timeout)
}

// ReplaceCtx implements cache.ExportReplaceCtx. A partition that is not stored leaves the
// cache untouched.
func (a *Accessor) ReplaceCtx(ctx context.Context, c cache.Unmarshaler, key string) error {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	data, err := a.redis.Get(ctx, a.key(key)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil
	case err != nil:
		return fmt.Errorf("reading cache partition %q from redis: %w", key, err)
	}

	plaintext, err := a.sealer.Open(data, key)
	if err != nil {
		return fmt.Errorf("cache partition %q: %w", key, err)
	}
	return c.Unmarshal(plaintext)
}

// ExportCtx implements cache.ExportReplaceCtx.
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
	if err := a.redis.Set(ctx, a.key(key), sealed, a.ttl).Err(); err != nil {
		return fmt.Errorf("writing cache partition %q to redis: %w", key, err)
	}
	return nil
}
