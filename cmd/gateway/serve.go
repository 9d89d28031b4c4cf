package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/jrsteele09/go-auth-gateway/internal/config"
	"github.com/jrsteele09/go-auth-gateway/internal/metrics"
	"github.com/jrsteele09/go-auth-gateway/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

func serveCmd() *cobra.Command {
	var noBanner bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway",
		Long: `Run the gateway HTTP server until SIGINT or SIGTERM.

When POLICY_FILE is set the route guards are loaded from it and reloaded
whenever it changes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := config.New()
			if !noBanner {
				displayAppname(c.GetAppName())
			}
			return run(cmd.Context(), c)
		},
	}

	cmd.Flags().BoolVar(&noBanner, "no-banner", false, "Skip the startup banner")

	return cmd
}

func run(parent context.Context, c config.Config) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	m := metrics.Default()
	client, err := newUpstream(c, m)
	if err != nil {
		return err
	}
	s, err := server.New(c, client, server.WithMetrics(m, prometheus.DefaultGatherer))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if path := c.GetPolicyFile(); path != "" {
		if err := s.Gate().LoadPolicyFile(path); err != nil {
			return err
		}
		go func() {
			if err := s.Gate().WatchPolicyChanges(ctx, path); err != nil {
				log.Err(err).Str("path", path).Msg("policy watcher stopped")
			}
		}()
	}

	httpServer := &http.Server{
		Addr:              c.GetPort(),
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- listenAndServe(httpServer)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("stop signal received")
	return shutdown(httpServer)
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	log.Info().Msg("server stopped")
	return nil
}
