package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/charimport/internal/config"
	"github.com/JonMunkholm/charimport/internal/core"
	"github.com/JonMunkholm/charimport/internal/logging"
	"github.com/JonMunkholm/charimport/internal/metrics"
	"github.com/JonMunkholm/charimport/internal/store"
	"github.com/JonMunkholm/charimport/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"import_max_concurrent", cfg.Import.MaxConcurrent,
		"standardize", cfg.Import.Standardize,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	names, err := config.RegisterDialects(cfg.Import.DialectsFile)
	if err != nil {
		slog.Error("failed to register dialects", "file", cfg.Import.DialectsFile, "error", err)
		os.Exit(1)
	}
	if len(names) > 0 {
		slog.Info("dialects registered", "dialects", names)
	}

	ctx := context.Background()
	st, err := store.Open(ctx, cfg.Database.URL,
		store.WithLogger(slog.Default()),
		store.WithPool(store.PoolConfig{
			MaxConns:        int32(cfg.Database.MaxConns),
			MinConns:        int32(cfg.Database.MinConns),
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		}),
	)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	reg := metrics.New()
	service := core.NewService(st, core.Options{
		Metrics:            reg,
		MaxConcurrent:      cfg.Import.MaxConcurrent,
		MaxWaitTime:        cfg.Import.MaxWaitTime,
		Timeout:            cfg.Import.Timeout,
		MaxFileSize:        cfg.Import.MaxFileSize,
		DisableStandardize: !cfg.Import.Standardize,
		LowYieldRatio:      cfg.Import.LowYieldRatio,
		MaxSkipDetails:     cfg.Import.MaxSkipDetails,
		ImageSeed:          cfg.Import.ImageSeed,
	})

	server := web.NewServer(service, cfg, reg)

	// Create cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())

	go service.StartRetentionScheduler(jobCtx, core.RetentionConfig{
		Window:        cfg.Retention.Window(),
		CheckInterval: cfg.Retention.CheckInterval,
	})

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

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

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil {
		slog.Info("server stopped", "error", err)
	}
}
