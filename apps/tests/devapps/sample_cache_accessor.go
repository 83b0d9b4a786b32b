// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/AzureAD/msal-broker-go/apps/cache"
	"github.com/AzureAD/msal-broker-go/apps/cache/keyvault"
	"github.com/AzureAD/msal-broker-go/apps/cache/rediscache"
	"github.com/AzureAD/msal-broker-go/apps/internal/seal"
)

// TokenCache keeps the whole serialized cache in one file, ignoring partition keys.
type TokenCache struct {
	file   string
	sealer *seal.Sealer
}

func (t *TokenCache) ReplaceCtx(ctx context.Context, cache cache.Unmarshaler, key string) error {
	data, err := os.ReadFile(t.file)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil
	case err != nil:
		return err
	}
	data, err = t.sealer.Open(data, "")
	if err != nil {
		return fmt.Errorf("%s: %w", t.file, err)
	}
	return cache.Unmarshal(data)
}

func (t *TokenCache) ExportCtx(ctx context.Context, cache cache.Marshaler, key string) error {
	data, err := cache.Marshal()
	if err != nil {
		return err
	}
	data, err = t.sealer.Seal(data, "")
	if err != nil {
		return err
	}
	return os.WriteFile(t.file, data, 0600)
}

// newCacheAccessor builds the accessor for the configured backend. The memory backend has none.
// The returned func releases the backend's resources.
func newCacheAccessor(cfg CacheConfig) (cache.ExportReplaceCtx, func(), error) {
	noop := func() {}
	sealer, err := seal.FromBase64(cfg.EncryptionKey)
	if err != nil {
		return nil, noop, err
	}

	switch cfg.Backend {
	case "file":
		return &TokenCache{file: cfg.File, sealer: sealer}, noop, nil
	case "redis":
		ttl, err := cfg.Redis.ttl()
		if err != nil {
			return nil, noop, err
		}
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		options := []rediscache.Option{rediscache.WithTTL(ttl), rediscache.WithSealer(sealer)}
		if cfg.Redis.Prefix != "" {
			options = append(options, rediscache.WithPrefix(cfg.Redis.Prefix))
		}
		return rediscache.New(client, options...), func() { _ = client.Close() }, nil
	case "keyvault":
		options := []keyvault.Option{keyvault.WithSealer(sealer)}
		if cfg.KeyVault.Prefix != "" {
			options = append(options, keyvault.WithPrefix(cfg.KeyVault.Prefix))
		}
		a, err := keyvault.New(cfg.KeyVault.URL, keyvault.StaticCredential{Token: cfg.KeyVault.Token}, options...)
		if err != nil {
			return nil, noop, err
		}
		return a, noop, nil
	}
	return nil, noop, nil
}
