package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/talent-search/internal/config"
	"github.com/jonathan/talent-search/internal/intake"
	"github.com/jonathan/talent-search/internal/lifecycle"
	"github.com/jonathan/talent-search/internal/logger"
	"github.com/jonathan/talent-search/internal/notify"
	"github.com/jonathan/talent-search/internal/replay"
	"github.com/jonathan/talent-search/internal/server"
	"github.com/jonathan/talent-search/internal/server/ratelimit"
	"github.com/jonathan/talent-search/internal/signature"
	"github.com/jonathan/talent-search/internal/webhook"
)

var (
	serveConfigPath string
	servePort       int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long:  `Start an HTTP server that accepts briefs, grading confirmations and automation callbacks.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "Path to a YAML config file (optional)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(serveConfigPath)
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.HTTP.Port = servePort
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Pretty)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, cleanup, err := buildServer(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	return srv.Run(ctx)
}

// buildServer wires every component from cfg. cleanup releases connections
// and must run after the server has stopped.
func buildServer(ctx context.Context, cfg *config.Config, log logger.Logger) (*server.Server, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*server.Server, func(), error) {
		cleanup()
		return nil, nil, err
	}

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, closeStore)

	blobs, err := openBlobs(ctx, cfg)
	if err != nil {
		return fail(fmt.Errorf("failed to open blob store: %w", err))
	}

	checks := map[string]server.Pinger{"database": store, "blob": blobs}

	var signer *signature.Signer
	if cfg.Webhook.Secret != "" {
		if signer, err = signature.NewSigner(cfg.Webhook.Secret); err != nil {
			return fail(err)
		}
	} else {
		log.Warn("WEBHOOK_SECRET not set: callbacks will be refused and notifications disabled")
	}

	var notifier interface {
		lifecycle.Notifier
		server.Drainer
	} = notify.Noop{}
	if cfg.NotificationsEnabled() {
		notifier = notify.New(cfg.Automation.StartURL, signer, log, notify.WithTimeout(cfg.AutomationTimeout()))
		log.Info("automation notifications enabled", logger.String("url", cfg.Automation.StartURL))
	} else {
		log.Info("automation notifications disabled: start URL or secret missing")
	}

	var hookOpts []webhook.Option
	if cfg.Replay.RedisURL != "" {
		client, err := replay.Connect(ctx, cfg.Replay.RedisURL)
		if err != nil {
			return fail(err)
		}
		cache := replay.NewRedisCache(client, cfg.ReplayTTL())
		closers = append(closers, func() { _ = cache.Close() })
		checks["replay"] = cache
		hookOpts = append(hookOpts, webhook.WithReplayCache(cache))
	}

	machine := lifecycle.New(store, notifier, log)
	hooks, err := webhook.NewHandler(signer, machine, log, hookOpts...)
	if err != nil {
		return fail(err)
	}

	srv, err := server.New(server.Config{
		Port:            cfg.HTTP.Port,
		ReadTimeout:     time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout:    time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
		ShutdownTimeout: cfg.ShutdownTimeout(),
		MaxUploadBytes:  int64(cfg.HTTP.MaxUploadMB) << 20,
		CORSOrigins:     cfg.HTTP.CORSOrigins,
		RateLimit:       ratelimit.LoadConfig(cfg.RateLimitEnabled()),
	}, server.Deps{
		Searches: store,
		Grading:  machine,
		Intake:   intake.NewService(store, blobs, log),
		Webhooks: hooks,
		Checks:   checks,
		Notifier: notifier,
		Logger:   log,
	})
	if err != nil {
		return fail(fmt.Errorf("failed to create server: %w", err))
	}
	return srv, cleanup, nil
}
