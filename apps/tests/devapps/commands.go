// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/AzureAD/msal-broker-go/apps/broker"
	msalerrors "github.com/AzureAD/msal-broker-go/apps/errors"
	"github.com/AzureAD/msal-broker-go/apps/internal/local"
)

// browserOpenURL is a variable so tests can replace it.
var browserOpenURL = func(u string) error {
	return browser.OpenURL(u)
}

var processCmd = &cobra.Command{
	Use:   "process [FILE]",
	Short: "Process one broker message",
	Long:  "Reads one broker message from FILE, or stdin when FILE is omitted or \"-\", and prints the authentication result.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		data, origin, err := readMessage(cmd, args)
		if err != nil {
			return err
		}
		out := a.client.Classify(broker.Event{Origin: origin, Data: data})
		if out.Kind != broker.Accepted {
			return fmt.Errorf("%s is %s: %s", origin, out.Kind, out.Reason)
		}
		ar, err := a.client.Process(cmd.Context(), out.Response)
		if err != nil {
			return fmt.Errorf("process %s: %s", origin, msalerrors.Verbose(err))
		}
		return printJSON(cmd.OutOrStdout(), ar)
	},
}

func readMessage(cmd *cobra.Command, args []string) ([]byte, string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		return data, "stdin", err
	}
	data, err := os.ReadFile(args[0])
	return data, args[0], err
}

var (
	listenCount int
	listenOpen  bool
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Receive broker messages on a loopback channel",
	Long:  "Starts a loopback HTTP channel that brokers POST messages to, and prints each authentication result. Other messages on the channel are ignored.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		serv, err := local.New(a.cfg.Listen.Port, a.cfg.Listen.AllowedOrigin, nil)
		if err != nil {
			return fmt.Errorf("start local channel: %w", err)
		}
		defer serv.Shutdown()
		a.log.Info("listening for broker messages", "addr", serv.Addr)
		fmt.Fprintln(cmd.OutOrStdout(), serv.Addr)

		if listenOpen {
			u, err := brokerURL(a.cfg.Listen.BrokerURL, serv.Addr)
			if err != nil {
				return err
			}
			if err := browserOpenURL(u); err != nil {
				return fmt.Errorf("open broker: %w", err)
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return listen(ctx, a, serv, cmd.OutOrStdout(), listenCount)
	},
}

// listen processes messages from serv until count responses were handled, or forever when
// count is not positive. Broker failures are printed and count as handled.
func listen(ctx context.Context, a *app, serv *local.Server, out io.Writer, count int) error {
	for handled := 0; count <= 0 || handled < count; {
		ev, err := serv.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		ar, err := a.client.ProcessResponse(ctx, ev)
		switch {
		case errors.Is(err, msalerrors.ErrNotApplicable):
			continue
		case err != nil:
			fmt.Fprintln(out, "error:", err)
		default:
			if err := printJSON(out, ar); err != nil {
				return err
			}
		}
		handled++
	}
	return nil
}

// brokerURL adds the reply_to parameter brokers post their response to.
func brokerURL(base, replyTo string) (string, error) {
	if base == "" {
		return "", errors.New("listen.broker_url must be set to open the broker")
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("listen.broker_url: %w", err)
	}
	if u.Scheme != "https" && u.Hostname() != "localhost" {
		return "", fmt.Errorf("listen.broker_url(%s) did not start with https://", base)
	}
	q := u.Query()
	q.Set("reply_to", replyTo)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List accounts in the cache",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		accounts, err := a.client.Accounts(cmd.Context())
		if err != nil {
			return err
		}
		for _, acc := range accounts {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", acc.HomeAccountID, acc.Environment, acc.Username)
		}
		return nil
	},
}

var (
	tokenAccount string
	tokenClient  string
	tokenScopes  string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print a cached access token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		at, err := a.client.CachedAccessToken(cmd.Context(), tokenAccount, tokenClient, strings.Fields(tokenScopes))
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), at)
	},
}

func init() {
	listenCmd.Flags().IntVarP(&listenCount, "count", "n", 1, "stop after this many responses; 0 listens until interrupted")
	listenCmd.Flags().BoolVar(&listenOpen, "open", false, "open listen.broker_url in a browser with this channel as reply_to")

	tokenCmd.Flags().StringVar(&tokenAccount, "account", "", "home account ID")
	tokenCmd.Flags().StringVar(&tokenClient, "client", "", "client ID")
	tokenCmd.Flags().StringVar(&tokenScopes, "scopes", "", "space separated scopes")
	_ = tokenCmd.MarkFlagRequired("account")
	_ = tokenCmd.MarkFlagRequired("client")

	rootCmd.AddCommand(processCmd, listenCmd, accountsCmd, tokenCmd)
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
