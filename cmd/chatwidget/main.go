package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"ChatWidget/internal/config"
	"ChatWidget/internal/telemetry"
)

const version = "0.1.0"

// errOffline makes the health command exit non-zero without extra output
var errOffline = errors.New("backend offline")

type rootOptions struct {
	configPath string
	apiURL     string
	debug      bool
}

// app holds what every subcommand needs once configuration is loaded
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	telemetry telemetry.Providers
	closers   []io.Closer
}

func (a *app) Close() {
	a.telemetry.Shutdown()
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i].Close()
	}
}

// setup loads configuration, applies flag overrides and starts logging
func setup(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.apiURL != "" {
		cfg.API.URL = opts.apiURL
	}
	if opts.debug {
		cfg.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, logFile, err := telemetry.InitLogger(cfg.Logging, cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	a := &app{cfg: cfg, logger: logger, closers: []io.Closer{logFile}}

	a.telemetry = telemetry.Noop()
	if cfg.Logging.Telemetry {
		p, err := telemetry.InitTelemetry(ctx, cfg.Logging, version)
		if err != nil {
			logger.Warn("telemetry disabled", "error", err)
		} else {
			a.telemetry = p
		}
	}

	logger.Debug("configuration loaded", "api_url", cfg.API.URL, "database", cfg.Storage.DatabasePath)
	return a, nil
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	chat := newChatCmd(opts)

	root := &cobra.Command{
		Use:           "chatwidget",
		Short:         "Terminal chat client for a model-serving chatbot API",
		Long:          "chatwidget talks to a chatbot backend exposing GET /health and POST /chat.\n\nRun without a subcommand to start an interactive session.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          chat.RunE,
	}
	root.Flags().AddFlagSet(chat.Flags())

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (default ~/.chatwidget/config.toml)")
	root.PersistentFlags().StringVar(&opts.apiURL, "api-url", "", "Chatbot API base URL")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	root.AddCommand(chat, newHealthCmd(opts), newHistoryCmd(opts), newEnvCmd(opts))
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errOffline) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
