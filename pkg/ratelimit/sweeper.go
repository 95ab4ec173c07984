package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper removes keys that have been idle for at least the idle threshold.
//
// Lazy pruning only runs when a key is accessed, so abandoned keys are
// reclaimed here. The schedule is owned by the caller.
type Sweeper struct {
	store   QuotaStore
	idle    time.Duration
	metrics Metrics
}

// NewSweeper creates a sweeper for store.
func NewSweeper(store QuotaStore, idle time.Duration, metrics Metrics) *Sweeper {
	if metrics == nil {
		metrics = NewNoOpMetrics()
	}
	return &Sweeper{store: store, idle: idle, metrics: metrics}
}

// Sweep runs one pass and returns the number of keys removed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	start := time.Now()

	removed, err := s.store.Sweep(ctx, s.idle)
	if removed > 0 {
		s.metrics.RecordEviction(removed)
	}
	if err != nil {
		s.metrics.RecordStoreError("sweep")
		slog.Warn("rate limit sweep interrupted",
			slog.Int("removed", removed),
			slog.Any("error", err))
		return removed, err
	}

	if kc, ok := s.store.(KeyCounter); ok {
		if count, err := kc.KeyCount(ctx); err == nil {
			s.metrics.SetActiveKeys(count)
		}
	}

	slog.Debug("rate limit sweep completed",
		slog.Int("removed", removed),
		slog.Duration("idle_threshold", s.idle),
		slog.Duration("duration", time.Since(start)))

	return removed, nil
}
