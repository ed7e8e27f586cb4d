// Package main provides the speechkit pipeline server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/speechkit-go/internal/api"
	"github.com/raphaelgruber/speechkit-go/internal/app"
	"github.com/raphaelgruber/speechkit-go/internal/config"
)

const version = "0.1.0"

func main() {
	wipeDB := flag.Bool("wipe", false, "wipe all pipeline runs on startup (testing only)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Setup logger (dual output: stderr text + file JSON)
	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer cleanup()
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger.Info("speechkit-server starting",
		"version", version,
		"port", cfg.Port,
		"storage", cfg.StorageBackend,
		"stt_providers", cfg.STTProviders,
		"llm_provider", cfg.LLMProvider,
		"run_store", cfg.RunStore,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	application, err := app.New(ctx, cfg)
	cancel()
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := application.Close(context.Background()); err != nil {
			logger.Error("failed to close", "error", err)
		}
	}()

	if *wipeDB || os.Getenv("SPEECHKIT_WIPE_DB") == "true" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := application.WipeData(ctx)
		cancel()
		if err != nil {
			logger.Error("failed to wipe runs", "error", err)
			os.Exit(1)
		}
	}

	// Resume runs interrupted by the previous shutdown
	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	resumed, err := application.Engine.Resume(ctx)
	cancel()
	if err != nil {
		// Log warning but don't fail startup
		logger.Warn("failed to resume incomplete runs", "error", err)
	} else if resumed > 0 {
		logger.Info("resumed incomplete runs", "count", resumed)
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.New(application.Engine, application.Metrics, logger).Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("API available", "url", fmt.Sprintf("http://localhost:%s/jobs", cfg.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("shutting down server...", "signal", sig)

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	// Runs still executing stay running in the store and resume on next boot.
	if err := application.Engine.Shutdown(ctx); err != nil {
		logger.Warn("workflow engine did not stop in time", "error", err)
	}

	logger.Info("server stopped")
}
