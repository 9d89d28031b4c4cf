package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/jrsteele09/go-auth-gateway/internal/config"
	"github.com/jrsteele09/go-auth-gateway/internal/metrics"
	"github.com/jrsteele09/go-auth-gateway/mfa"
	"github.com/spf13/cobra"
)

func mfaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mfa",
		Short: "Query the account service for MFA enrollment",
	}
	cmd.AddCommand(mfaStatusCmd(), mfaWatchCmd())
	return cmd
}

func mfaStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <identifier>",
		Short: "Print the TOTP enrollment of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newMFAClient()
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "identifier:  %s\n", strings.ToLower(strings.TrimSpace(args[0])))
			fmt.Fprintf(out, "enabled:     %t\n", status.TOTPEnabled)
			fmt.Fprintf(out, "pending:     %t\n", status.TOTPPending)
			if status.TOTPConfirmedAt != "" {
				fmt.Fprintf(out, "confirmed:   %s\n", status.TOTPConfirmedAt)
			}
			if status.TOTPLockedUntil != "" {
				fmt.Fprintf(out, "locked until: %s\n", status.TOTPLockedUntil)
			}
			return nil
		},
	}
}

func mfaWatchCmd() *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Resolve the login MFA mode for identifiers read from stdin",
		Long: `Read one identifier per line, as a login form would while the user types,
and print the MFA mode each settled identifier resolves to. Lines that
arrive within the debounce window supersede each other.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newMFAClient()
			if err != nil {
				return err
			}
			return watchIdentifiers(cmd.Context(), client, cmd.InOrStdin(), cmd.OutOrStdout(), debounce)
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", mfa.DefaultDebounce, "Quiet period before a lookup starts")

	return cmd
}

// watchIdentifiers feeds lines from in to a Lookup and writes every
// settled mode to out. At end of input it waits for the last identifier
// to settle.
func watchIdentifiers(ctx context.Context, fetcher mfa.StatusFetcher, in io.Reader, out io.Writer, debounce time.Duration) error {
	var (
		mu      sync.Mutex
		last    string
		settled = make(chan struct{}, 1)
	)

	lookup, err := mfa.NewLookup(fetcher,
		mfa.WithDebounce(debounce),
		mfa.WithMetrics(metrics.Default()),
		mfa.WithOnChange(func(identifier string, mode mfa.Mode) {
			mu.Lock()
			fmt.Fprintf(out, "%s\t%s\n", orNone(identifier), mode)
			isLast := identifier == last
			mu.Unlock()
			if isLast {
				select {
				case settled <- struct{}{}:
				default:
				}
			}
		}),
	)
	if err != nil {
		return err
	}
	defer lookup.Close()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		identifier := strings.ToLower(strings.TrimSpace(scanner.Text()))
		mu.Lock()
		last = identifier
		mu.Unlock()
		lookup.Submit(identifier)
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	mu.Lock()
	pending := last != ""
	mu.Unlock()
	if !pending {
		return nil
	}

	wait := time.NewTimer(debounce + config.New().GetUpstreamTimeout())
	defer wait.Stop()
	select {
	case <-settled:
	case <-wait.C:
	case <-ctx.Done():
	}
	return nil
}

func newMFAClient() (*mfa.Client, error) {
	client, err := newUpstream(config.New(), metrics.Default())
	if err != nil {
		return nil, err
	}
	return mfa.NewClient(client)
}
