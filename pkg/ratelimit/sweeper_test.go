package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSweeper_Sweep(t *testing.T) {
	ctx := context.Background()
	clock := NewMockClock(testEpoch)
	store := NewMemoryStore(MemoryStoreConfig{Clock: clock})
	metrics := NewPrometheusMetrics()
	sweeper := NewSweeper(store, time.Hour, metrics)
	category := Category{Name: "public-read", Window: time.Minute, MaxRequests: 10}

	mustRecord(t, store, Key{Client: "old-1", Category: category.Name}, category, true)
	mustRecord(t, store, Key{Client: "old-2", Category: category.Name}, category, true)
	clock.Advance(time.Hour)
	mustRecord(t, store, Key{Client: "new", Category: category.Name}, category, true)

	removed, err := sweeper.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if removed != 2 {
		t.Errorf("Sweep() removed %d, want 2", removed)
	}
	if got := testutil.ToFloat64(metrics.evictionsTotal); got != 2 {
		t.Errorf("evictions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.activeKeys); got != 1 {
		t.Errorf("active keys = %v, want 1", got)
	}
}

func TestSweeper_StoreError(t *testing.T) {
	storeErr := errors.New("boom")
	metrics := NewPrometheusMetrics()
	sweeper := NewSweeper(&failingStore{err: storeErr}, time.Hour, metrics)

	if _, err := sweeper.Sweep(context.Background()); !errors.Is(err, storeErr) {
		t.Errorf("Sweep() error = %v, want %v", err, storeErr)
	}
	if got := testutil.ToFloat64(metrics.storeErrorsTotal.WithLabelValues("sweep")); got != 1 {
		t.Errorf("store errors = %v, want 1", got)
	}
}
