package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jrsteele09/go-auth-gateway/internal/config"
	"github.com/jrsteele09/go-auth-gateway/internal/logging"
	"github.com/jrsteele09/go-auth-gateway/internal/metrics"
	"github.com/jrsteele09/go-auth-gateway/token"
	"github.com/jrsteele09/go-auth-gateway/token/redisstore"
	"github.com/jrsteele09/go-auth-gateway/token/sqlitestore"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func tokenCmd() *cobra.Command {
	var namespace string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Inspect and manage a client's stored token set",
		Long: `Work with the token set held for one client context in the durable
store selected by TOKEN_STORE (memory, sqlite or redis) and TOKEN_STORE_DSN.
Secrets are only ever printed as fingerprints.`,
	}
	cmd.PersistentFlags().StringVarP(&namespace, "client", "c", "", "Client context (default \"default\")")

	cmd.AddCommand(
		tokenShowCmd(&namespace),
		tokenSetCmd(&namespace),
		tokenClearCmd(&namespace),
		tokenRefreshCmd(&namespace),
	)
	return cmd
}

func tokenShowCmd(namespace *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the stored token set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(cmd.Context(), *namespace, func(m *token.Manager) error {
				return printSet(cmd.OutOrStdout(), m.Tokens(), m.IsExpired(""))
			})
		},
	}
}

func tokenSetCmd(namespace *string) *cobra.Command {
	var set token.Set

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Replace the stored token set",
		Long: `Replace every stored credential at once. A credential left empty is
removed from the store.

Example:
  gateway token set --access eyJhbGciOi... --refresh r-123`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if set.AccessToken == "" && set.RefreshToken == "" {
				return fmt.Errorf("--access or --refresh is required")
			}
			if set.AccessToken != "" {
				if _, err := token.DecodeClaims(set.AccessToken); err != nil {
					return err
				}
			}
			return withManager(cmd.Context(), *namespace, func(m *token.Manager) error {
				if set.PublicToken == "" {
					set.PublicToken = m.Tokens().PublicToken
				}
				if err := m.SetTokens(cmd.Context(), set); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "token set stored")
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&set.AccessToken, "access", "", "Access token (JWT)")
	cmd.Flags().StringVar(&set.RefreshToken, "refresh", "", "Refresh token")
	cmd.Flags().StringVar(&set.PublicToken, "public", "", "Public token (default PUBLIC_TOKEN)")

	return cmd
}

func tokenClearCmd(namespace *string) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Forget every stored credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(cmd.Context(), *namespace, func(m *token.Manager) error {
				if err := m.ClearTokens(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "token set cleared")
				return nil
			})
		},
	}
}

func tokenRefreshCmd(namespace *string) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Exchange the refresh token for a new access token",
		Long: `Call the account service refresh endpoint with the stored refresh token.
On failure the stored set is cleared.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(cmd.Context(), *namespace, func(m *token.Manager) error {
				if _, err := m.Refresh(cmd.Context()); err != nil {
					return err
				}
				return printSet(cmd.OutOrStdout(), m.Tokens(), m.IsExpired(""))
			})
		},
	}
}

// withManager opens the configured store, loads the set for namespace and
// hands a Manager over it to fn.
func withManager(ctx context.Context, namespace string, fn func(m *token.Manager) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c := config.New()

	store, closeStore, err := openStore(ctx, c, namespace)
	if err != nil {
		return err
	}
	defer closeStore()

	client, err := newUpstream(c, metrics.Default())
	if err != nil {
		return err
	}
	m, err := token.NewManager(store, client,
		token.WithPublicToken(c.GetPublicToken()),
		token.WithMetrics(metrics.Default()),
	)
	if err != nil {
		return err
	}
	if err := m.LoadTokens(ctx); err != nil {
		return err
	}
	return fn(m)
}

// openStore builds the durable token store named by TOKEN_STORE. The
// returned func releases whatever connection the store holds.
func openStore(ctx context.Context, c config.TokenConfig, namespace string) (token.Store, func(), error) {
	var (
		store     token.Store
		closeFunc = func() {}
	)

	switch kind := strings.ToLower(c.GetTokenStore()); kind {
	case "memory", "sqlite":
		dsn := c.GetTokenStoreDSN()
		if kind == "memory" {
			dsn = ":memory:"
		}
		db, err := sqlitestore.Open(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		store = sqlitestore.New(db, namespace)
		closeFunc = closeWith(db)

	case "redis":
		opts, err := redis.ParseURL(c.GetTokenStoreDSN())
		if err != nil {
			return nil, nil, fmt.Errorf("[openStore] parse redis url: %w", err)
		}
		rdb := redis.NewClient(opts)
		rs, err := redisstore.New(rdb, namespace)
		if err != nil {
			rdb.Close()
			return nil, nil, err
		}
		store = rs
		closeFunc = closeWith(rdb)

	default:
		return nil, nil, fmt.Errorf("[openStore] unknown token store %q", kind)
	}

	if hexKey := c.GetTokenSealKey(); hexKey != "" {
		key, err := token.ParseSealKey(hexKey)
		if err != nil {
			closeFunc()
			return nil, nil, err
		}
		sealed, err := token.NewSealedStore(store, key)
		if err != nil {
			closeFunc()
			return nil, nil, err
		}
		store = sealed
	}
	return store, closeFunc, nil
}

func closeWith(c io.Closer) func() {
	return func() {
		c.Close()
	}
}

func printSet(out io.Writer, set token.Set, expired bool) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "public_token\t%s\n", orNone(set.PublicToken))
	fmt.Fprintf(tw, "access_token\t%s\n", orNone(logging.Fingerprint(set.AccessToken)))
	fmt.Fprintf(tw, "refresh_token\t%s\n", orNone(logging.Fingerprint(set.RefreshToken)))

	if set.AccessToken != "" {
		if claims, err := token.DecodeClaims(set.AccessToken); err == nil {
			fmt.Fprintf(tw, "user_id\t%s\n", orNone(claims.UserID))
			fmt.Fprintf(tw, "email\t%s\n", orNone(claims.Email))
			fmt.Fprintf(tw, "roles\t%s\n", orNone(strings.Join(claims.Roles, ",")))
			if service := claims.ServiceName(); service != "" {
				fmt.Fprintf(tw, "service\t%s\n", service)
			}
			if exp := claims.Expiry(); !exp.IsZero() {
				fmt.Fprintf(tw, "expires_at\t%s\n", exp.UTC().Format(time.RFC3339))
			}
		}
		fmt.Fprintf(tw, "expired\t%t\n", expired)
	}
	return tw.Flush()
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
