// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Command msalbroker exercises broker response processing end to end: it receives broker
// messages on a loopback channel or from files, caches the relayed tokens and prints results.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/AzureAD/msal-broker-go/apps/broker"
	"github.com/AzureAD/msal-broker-go/apps/internal/logger"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "msalbroker",
	Short:         "Process authentication broker responses",
	Long:          "msalbroker validates broker authentication responses, writes the relayed tokens to the configured cache and prints the results.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "msalbroker.toml", "path to the TOML config")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides the config")
}

// app is what every command needs: the loaded config and a client over the configured cache.
type app struct {
	cfg    Config
	log    *slog.Logger
	client *broker.Client
	close  func()
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := LoadConfig(configPath, cmd.Flags().Changed("config"))
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	log := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: logger.ParseLevel(cfg.LogLevel)}))

	accessor, closeAccessor, err := newCacheAccessor(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("configure %s cache: %w", cfg.Cache.Backend, err)
	}
	options := []broker.Option{broker.WithLogger(log)}
	if accessor != nil {
		options = append(options, broker.WithCache(accessor))
	}
	if cfg.ProtocolVersion != "" {
		options = append(options, broker.WithProtocolVersion(cfg.ProtocolVersion))
	}
	client, err := broker.New(options...)
	if err != nil {
		closeAccessor()
		return nil, err
	}
	return &app{cfg: cfg, log: log, client: client, close: closeAccessor}, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "msalbroker:", err)
		os.Exit(1)
	}
}
