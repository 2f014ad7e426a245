package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sola-scriptura-retrieval/internal/app"
	"github.com/sola-scriptura-retrieval/internal/config"
	"github.com/sola-scriptura-retrieval/internal/metrics"
	"github.com/sola-scriptura-retrieval/pkg/embeddings"
	"go.uber.org/zap"
)

func main() {
	// Load .env file if present
	_ = godotenv.Load()

	// Get configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := app.NewLogger(cfg.Debug)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("Startup failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx := context.Background()
	m := metrics.New()

	// Create services
	embeddingsSvc, err := embeddings.NewFromConfig(ctx, app.EmbeddingsConfig(cfg))
	if err != nil {
		return fmt.Errorf("initialize embeddings service: %w", err)
	}
	defer func() {
		if err := embeddingsSvc.Close(); err != nil {
			logger.Warn("Error closing embeddings client", zap.Error(err))
		}
	}()

	loader, err := app.NewLoader(cfg, logger, m)
	if err != nil {
		return err
	}

	// Corpus and index are built before the listener starts
	retrieval, err := app.Bootstrap(ctx, cfg, logger, embeddingsSvc, loader, m)
	if err != nil {
		return err
	}

	e := app.NewServer(cfg, logger, m, retrieval)

	// Start server
	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		logger.Info("Starting server",
			zap.String("name", cfg.APITitle),
			zap.String("version", cfg.APIVersion),
			zap.String("addr", addr),
			zap.Bool("ready", retrieval.Ready()),
		)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server stopped: %w", err)
	}

	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Error shutting down server", zap.Error(err))
	}

	logger.Info("Server stopped")
	return nil
}
