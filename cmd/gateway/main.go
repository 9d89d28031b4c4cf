package main

import (
	"fmt"
	"os"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-auth-gateway/internal/config"
	"github.com/jrsteele09/go-auth-gateway/internal/logging"
	"github.com/jrsteele09/go-auth-gateway/internal/metrics"
	"github.com/jrsteele09/go-auth-gateway/upstream"
	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gateway",
		Short: "Edge session and MFA gateway",
		Long: `gateway sits in front of the dashboard app. It proves every protected
request's session with the account service, holds users at MFA enrollment
and relays the login and MFA endpoints.

Configuration is read from the environment (see internal/config).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			c := config.New()
			logging.Setup(c.GetEnv(), c.GetLogLevel())
		},
	}

	rootCmd.AddCommand(
		serveCmd(),
		classifyCmd(),
		tokenCmd(),
		mfaCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		os.Exit(1)
	}
}

// newUpstream builds the account service client from config.
func newUpstream(c config.Config, m *metrics.Metrics) (*upstream.Client, error) {
	rps := c.GetUpstreamRateLimit()
	return upstream.New(c.GetUpstreamBaseURLs(),
		upstream.WithTimeout(c.GetUpstreamTimeout()),
		upstream.WithRateLimit(rps, int(rps)+1),
		upstream.WithMetrics(m),
	)
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
