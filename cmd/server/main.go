package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/xlimport/internal/config"
	"github.com/JonMunkholm/xlimport/internal/core"
	_ "github.com/JonMunkholm/xlimport/internal/core/profiles" // Register all profiles
	"github.com/JonMunkholm/xlimport/internal/logging"
	"github.com/JonMunkholm/xlimport/internal/pgstore"
	"github.com/JonMunkholm/xlimport/internal/web"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"memory_store", cfg.Database.Memory,
		"import_max_concurrent", cfg.Import.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
		"api_key_required", cfg.Security.RequireAPIKey,
	)

	ctx := context.Background()

	var store core.Store
	if cfg.Database.Memory {
		slog.Warn("using in-memory store, imported records are lost on exit")
		store = core.NewMemoryStore()
	} else {
		pg, err := pgstore.Connect(ctx, cfg.Database)
		if err != nil {
			slog.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		store = pg
	}

	service := core.NewService(store, core.ServiceConfig{
		MaxFileSize:   cfg.Import.MaxFileSize,
		MaxConcurrent: cfg.Import.MaxConcurrent,
		MaxWaitTime:   cfg.Import.MaxWaitTime,
		Timeout:       cfg.Import.Timeout,
		RunRetention:  cfg.Import.RunRetention,
	}, logger)

	profiles := service.Profiles()
	slog.Info("profiles registered", "count", len(profiles))
	for _, p := range profiles {
		slog.Debug("profile", "key", p.Key, "columns", len(p.Columns), "registries", len(p.Registries))
	}

	server, err := web.NewServer(service, cfg)
	if err != nil {
		slog.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Wait for running imports to commit (with timeout)
		if status := service.LimiterStatus(); status.Active > 0 {
			slog.Info("waiting for imports to complete", "active", status.Active)
			if err := service.WaitForImports(shutdownCtx); err != nil {
				slog.Warn("imports did not complete in time", "error", err)
			} else {
				slog.Info("all imports completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	<-done
}
