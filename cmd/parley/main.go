package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/parley-sh/parley/internal/api"
	"github.com/parley-sh/parley/internal/config"
	"github.com/parley-sh/parley/internal/convergence"
	"github.com/parley-sh/parley/internal/events"
	"github.com/parley-sh/parley/internal/llm"
	"github.com/parley-sh/parley/internal/pricing"
	"github.com/parley-sh/parley/internal/sandbox"
	"github.com/parley-sh/parley/internal/store"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("parley starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database connected")

	// Turn service client
	if cfg.AnthropicAPIKey == "" {
		slog.Error("ANTHROPIC_API_KEY is required")
		os.Exit(1)
	}
	turnSvc := llm.NewClient(cfg.AnthropicAPIKey)
	slog.Info("turn service client ready", "model", cfg.Model)

	// Convergence loop
	executor := convergence.NewExecutor(turnSvc, slog.Default())
	loop := convergence.NewLoop(executor, pricing.Default(), slog.Default())

	// Event bus
	bus, err := events.NewClient(cfg.NatsURL, cfg.NatsToken, slog.Default())
	if err != nil {
		slog.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer bus.Close()
	slog.Info("NATS connected", "url", cfg.NatsURL)

	// Sandbox manager
	mgr := sandbox.NewManager(db, sandbox.ComposeRunner{}, bus,
		cfg.SandboxDataDir, cfg.CallbackURL, cfg.APIToken, slog.Default())
	if err := bus.Subscribe(events.SubjectSandboxHeartbeat, mgr.HandleHeartbeat); err != nil {
		slog.Error("failed to subscribe to heartbeats", "error", err)
		os.Exit(1)
	}

	// HTTP API
	srv := api.NewServer(cfg.Port, cfg.APIToken, loop, db, mgr, bus, slog.Default())
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	// Announce registration
	if err := bus.Publish(events.SubjectRegistered, map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"port":      cfg.Port,
	}); err != nil {
		slog.Warn("failed to publish registration", "error", err)
	}

	slog.Info("parley ready", "port", cfg.Port)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	cancel()
	slog.Info("parley stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
