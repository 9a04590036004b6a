package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/straye-as/finance-dashboard/internal/apiclient"
	"github.com/straye-as/finance-dashboard/internal/config"
	"github.com/straye-as/finance-dashboard/internal/logger"
	"github.com/straye-as/finance-dashboard/internal/workflow"
	"go.uber.org/zap"
)

var version = "1.0.0"

type globalOptions struct {
	baseURL string
	token   string
	timeout time.Duration
	output  string
	verbose bool
}

var opts globalOptions

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "financectl",
		Short: "Command-line client for the finance invoice workflow",
		Long: `financectl talks to the remote finance API directly. Invoice commands act with the
permissions of the user behind --token, exactly like the dashboard does: an action
the user may not perform, or one the invoice's status does not allow, is refused
locally and never sent.

The API token is read from --token or FINANCECTL_TOKEN. The base URL defaults to
the UPSTREAM_BASEURL setting of the dashboard configuration.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.baseURL, "api-url", "", "base URL of the finance API")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("FINANCECTL_TOKEN"), "bearer token of the finance API")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "timeout of the whole command")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "text", "output format: text or json")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log requests to stderr")

	root.AddCommand(newInvoiceCmd())
	root.AddCommand(newPasswordResetCmd())
	return root
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", describeError(err))
		os.Exit(1)
	}
}

// env holds what every subcommand needs to reach the API
type env struct {
	client *apiclient.Client
	logger *zap.Logger
	out    *printer
}

func newEnv(cmd *cobra.Command, requireToken bool) (*env, error) {
	if opts.output != "text" && opts.output != "json" {
		return nil, fmt.Errorf("unknown output format %q", opts.output)
	}
	if requireToken && opts.token == "" {
		return nil, fmt.Errorf("an API token is required: pass --token or set FINANCECTL_TOKEN")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Logging.Level = "warn"
	if opts.verbose {
		cfg.Logging.Level = "debug"
	}
	log, err := logger.NewLogger(&cfg.Logging, &cfg.App)
	if err != nil {
		return nil, err
	}

	baseURL := opts.baseURL
	if baseURL == "" {
		baseURL = cfg.Upstream.BaseURL
	}
	client, err := apiclient.New(apiclient.Config{
		BaseURL:   baseURL,
		Timeout:   cfg.Upstream.TimeoutDuration(),
		UserAgent: "financectl/" + version,
	}, apiclient.StaticToken(opts.token), log.Named("financectl"))
	if err != nil {
		return nil, err
	}

	return &env{
		client: client,
		logger: log,
		out:    newPrinter(cmd.OutOrStdout(), opts.output == "json"),
	}, nil
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), opts.timeout)
}

// describeError renders errors the way the dashboard shows them
func describeError(err error) string {
	var verr *workflow.ValidationError
	var terr *apiclient.TransportError
	switch {
	case errors.As(err, &verr):
		return verr.Error()
	case errors.As(err, &terr):
		return apiclient.GenericTransportMessage
	}
	if apiErr, ok := apiclient.AsAPIError(err); ok {
		return apiErr.Message
	}
	return err.Error()
}
