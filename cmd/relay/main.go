package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"chainhook-relay/internal/api"
	"chainhook-relay/internal/chainhook"
	"chainhook-relay/internal/config"
	"chainhook-relay/internal/retry"
	"chainhook-relay/internal/services"
	"chainhook-relay/internal/storage"

	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Relay exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration
	_ = godotenv.Load()
	cfg := config.Load()

	// 2. Configure logger
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var handler slog.Handler = slog.NewTextHandler(os.Stdout, handlerOpts)
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, handlerOpts)
	}
	slog.SetDefault(slog.New(handler))

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	slog.Info("Configuration loaded",
		"port", cfg.Port,
		"event_store", cfg.EventStore,
		"event_retention", cfg.EventRetention,
		"signature_verification", cfg.ChainhookSecret != "",
		"log_level", cfg.LogLevel,
	)

	if cfg.ChainhookSecret == "" {
		slog.Warn("CHAINHOOK_ALLOW_UNSIGNED is set, chainhook signatures are NOT verified")
	}

	// 3. Initialize event store
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repository, err := openRepository(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open event store: %w", err)
	}
	defer repository.Close()

	// 4. Wire ingestion and query API
	service := services.NewChainhookService(repository)
	verifier := chainhook.NewVerifier(cfg.ChainhookSecret)
	server := api.NewServer(api.Options{
		Port:              cfg.Port,
		MaxBodyBytes:      cfg.MaxBodyBytes,
		DefaultQueryLimit: cfg.DefaultQueryLimit,
		MaxQueryLimit:     cfg.MaxQueryLimit,
	}, repository, service, verifier)

	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	// 5. Wait for interrupt, then drain in-flight requests
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	slog.Warn("Interrupt received, shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Error stopping API server", "error", err)
	}

	slog.Info("Relay stopped")
	return nil
}

func openRepository(ctx context.Context, cfg *config.Config) (storage.Repository, error) {
	switch cfg.EventStore {
	case config.StorePostgres:
		return storage.NewPostgresRepository(ctx, cfg.DatabaseURL, retry.NewStrategy(cfg.Retry))
	default:
		return storage.NewMemoryRepository(cfg.EventRetention), nil
	}
}
