package store

import (
	"context"
	"log/slog"
	"time"
)

// CleanupCallback is called after the retention worker removed sessions.
type CleanupCallback func(deleted int64)

// StartRetentionWorker runs a background goroutine that periodically removes
// sessions idle for longer than ttl. It stops when ctx is cancelled.
func StartRetentionWorker(ctx context.Context, repo Repository, interval, ttl time.Duration, onCleanup CleanupCallback) {
	if interval <= 0 || ttl <= 0 {
		slog.Info("retention worker disabled", "interval", interval, "ttl", ttl)
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("retention worker started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				sweepExpired(ctx, repo, ttl, onCleanup)
			case <-ctx.Done():
				slog.Info("retention worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweepExpired(ctx context.Context, repo Repository, ttl time.Duration, onCleanup CleanupCallback) {
	deleted, err := repo.CleanupExpired(ctx, ttl)
	if err != nil {
		if ctx.Err() != nil {
			slog.Debug("retention sweep interrupted", "error", err)
			return
		}
		slog.Error("retention worker failed to cleanup sessions", "error", err)
		return
	}
	if deleted == 0 {
		return
	}
	slog.Info("retention worker removed expired sessions", "count", deleted)
	if onCleanup != nil {
		onCleanup(deleted)
	}
}
