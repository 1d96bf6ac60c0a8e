package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"ChatWidget/internal/backend"
	"ChatWidget/internal/chatbot"
	"ChatWidget/internal/session"
	"ChatWidget/internal/storage"
	"ChatWidget/internal/ui"
)

func newChatCmd(opts *rootOptions) *cobra.Command {
	var plain bool

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := setup(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if plain {
				a.cfg.Chat.Plain = true
			}
			return runChat(ctx, cmd, a)
		},
	}

	cmd.Flags().BoolVar(&plain, "plain", false, "Use the line-mode console instead of the full-screen interface")
	return cmd
}

func runChat(ctx context.Context, cmd *cobra.Command, a *app) error {
	cfg := a.cfg

	store, err := storage.Open(cfg.Storage.DatabasePath, a.logger)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, store)

	client, err := backend.NewClient(cfg.API.URL, cfg.API.Timeout.Duration, a.logger, a.telemetry.Tracer, a.telemetry.Meter)
	if err != nil {
		return fmt.Errorf("failed to create backend client: %w", err)
	}
	defer client.CloseIdleConnections()
	client.SetRateLimit(cfg.API.RateLimitPerMinute)

	opts := chatbot.Options{
		API:              client,
		Preferences:      store,
		BackendName:      client.BaseURL(),
		MaxLength:        cfg.API.MaxLength,
		Temperature:      cfg.API.Temperature,
		MaxMessageLength: cfg.Chat.MaxMessageLength,
		WelcomeMessage:   cfg.Chat.WelcomeMessage,
		FallbackMessage:  cfg.Chat.FallbackMessage,
		TypingDelay:      cfg.Chat.TypingDelay.Duration,
		MaxTypingDelay:   cfg.Chat.MaxTypingDelay.Duration,
		NotificationTTL:  cfg.Chat.NotificationTTL.Duration,
		DefaultTheme:     defaultTheme(cfg.Chat.DefaultTheme, cfg.Chat.Plain),
		Logger:           a.logger,
		Tracer:           a.telemetry.Tracer,
		Meter:            a.telemetry.Meter,
	}
	if cfg.Storage.Archive {
		opts.Archive = store
	}

	ctrl, err := chatbot.New(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to initialize chat session: %w", err)
	}
	// archive with a fresh context: ctx is usually cancelled by now
	defer ctrl.Close(context.Background())

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		ctrl.WatchHealth(gctx, cfg.Chat.HealthInterval.Duration)
		return nil
	})
	g.Go(func() error {
		// the session ending stops the watcher
		defer cancel()
		if cfg.Chat.Plain {
			return chatbot.NewConsole(cmd.OutOrStdout()).Run(gctx, ctrl, cmd.InOrStdin())
		}
		return ui.Run(gctx, ctrl, cfg.Chat.MaxMessageLength)
	})
	return g.Wait()
}

// defaultTheme resolves the theme used when no preference is stored
func defaultTheme(configured string, plain bool) session.Theme {
	if theme, err := session.ParseTheme(configured); err == nil {
		return theme
	}
	if plain {
		return session.ThemeLight
	}
	return ui.DetectTheme()
}
