package core

// retention.go runs the background purge of old import history.
//
// The scheduler runs once on start and then every CheckInterval until its
// context is cancelled. A failed purge is logged and retried on the next
// tick; it never stops the service.

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetentionConfig controls the retention scheduler.
type RetentionConfig struct {
	// Window is how long import runs are kept.
	Window        time.Duration
	CheckInterval time.Duration
}

// DefaultRetentionInterval is used when CheckInterval is zero.
const DefaultRetentionInterval = 24 * time.Hour

// StartRetentionScheduler purges import runs older than cfg.Window, once
// immediately and then every cfg.CheckInterval. It blocks until ctx is
// cancelled, so run it in its own goroutine.
func (s *Service) StartRetentionScheduler(ctx context.Context, cfg RetentionConfig) {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultRetentionInterval
	}
	slog.Info("retention scheduler started",
		"window", cfg.Window.String(),
		"interval", cfg.CheckInterval.String(),
	)

	s.runRetentionJob(ctx, cfg.Window)

	ticker := time.NewTicker(cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("retention scheduler stopped")
			return
		case <-ticker.C:
			s.runRetentionJob(ctx, cfg.Window)
		}
	}
}

func (s *Service) runRetentionJob(ctx context.Context, window time.Duration) {
	start := time.Now()
	purged, err := s.PurgeExpired(ctx, window)
	if err != nil {
		slog.Error("retention purge failed", "error", err)
		return
	}
	slog.Info("retention purge completed",
		"runs_purged", purged,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// PurgeExpired deletes import runs created more than window ago.
func (s *Service) PurgeExpired(ctx context.Context, window time.Duration) (int64, error) {
	if window <= 0 {
		return 0, fmt.Errorf("retention window must be positive, got %v", window)
	}
	purged, err := s.store.PurgeImports(ctx, s.now().Add(-window))
	if err != nil {
		return 0, fmt.Errorf("purge imports: %w", err)
	}
	s.metrics.ObservePurge(purged)
	return purged, nil
}
