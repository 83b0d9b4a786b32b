// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// keyVaultTokenEnv overrides cache.keyvault.token.
const keyVaultTokenEnv = "MSAL_BROKER_KEYVAULT_TOKEN"

// Config represents the msalbroker.toml used to run the samples.
type Config struct {
	ProtocolVersion string       `toml:"protocol_version"`
	LogLevel        string       `toml:"log_level"`
	Cache           CacheConfig  `toml:"cache"`
	Listen          ListenConfig `toml:"listen"`
}

// CacheConfig selects where the token cache is persisted.
type CacheConfig struct {
	// Backend is one of "memory", "file", "redis" or "keyvault".
	Backend string `toml:"backend"`
	// File is the cache file of the file backend.
	File string `toml:"file"`
	// EncryptionKey is a base64 32 byte key sealing the persisted cache. Empty disables it.
	EncryptionKey string         `toml:"encryption_key"`
	Redis         RedisConfig    `toml:"redis"`
	KeyVault      KeyVaultConfig `toml:"keyvault"`
}

// RedisConfig configures the redis backend.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Prefix   string `toml:"prefix"`
	TTL      string `toml:"ttl"`
}

// KeyVaultConfig configures the keyvault backend.
type KeyVaultConfig struct {
	URL    string `toml:"url"`
	Prefix string `toml:"prefix"`
	Token  string `toml:"token"`
}

// ListenConfig configures the local broker channel.
type ListenConfig struct {
	Port          int    `toml:"port"`
	BrokerURL     string `toml:"broker_url"`
	AllowedOrigin string `toml:"allowed_origin"`
}

func defaultConfig() Config {
	return Config{
		LogLevel: "info",
		Cache: CacheConfig{
			Backend: "memory",
			File:    "serialized_cache.json",
			Redis:   RedisConfig{Addr: "localhost:6379"},
		},
	}
}

// LoadConfig reads the config at path over the defaults. A missing file is only an error
// when required is set.
func LoadConfig(path string, required bool) (Config, error) {
	cfg := defaultConfig()

	meta, err := toml.DecodeFile(path, &cfg)
	switch {
	case errors.Is(err, os.ErrNotExist) && !required:
		cfg = defaultConfig()
	case err != nil:
		return Config{}, fmt.Errorf("load config: %w", err)
	default:
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			return Config{}, fmt.Errorf("load config: unknown keys %s", strings.Join(keys, ", "))
		}
	}

	if token := os.Getenv(keyVaultTokenEnv); token != "" {
		cfg.Cache.KeyVault.Token = token
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.Cache.Backend {
	case "memory", "file", "redis", "keyvault":
	default:
		return fmt.Errorf("cache.backend %q is not one of memory, file, redis, keyvault", c.Cache.Backend)
	}
	if c.Cache.Backend == "file" && strings.TrimSpace(c.Cache.File) == "" {
		return errors.New("cache.file is required by the file backend")
	}
	if c.Cache.Backend == "keyvault" && c.Cache.KeyVault.URL == "" {
		return errors.New("cache.keyvault.url is required by the keyvault backend")
	}
	if _, err := c.Cache.Redis.ttl(); err != nil {
		return err
	}
	if c.Listen.Port < 0 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen.port %d is out of range", c.Listen.Port)
	}
	return nil
}

func (r RedisConfig) ttl() (time.Duration, error) {
	if strings.TrimSpace(r.TTL) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(r.TTL))
	if err != nil {
		return 0, fmt.Errorf("parse cache.redis.ttl: %w", err)
	}
	return d, nil
}
