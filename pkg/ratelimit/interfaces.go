// Package ratelimit provides framework-agnostic sliding-window rate limiting.
//
// Request timestamps are kept per (client, category) key in a QuotaStore.
// The Limiter classifies requests into categories using an ordered rule
// table and asks the store for an admit/deny decision. Stores are pluggable:
// an in-memory sharded store for single-instance deployments and a Redis
// store for deployments that share quota across instances.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrStoreUnavailable is returned when the quota store cannot be reached
	// or its circuit breaker is open. Callers must not treat it as admission.
	ErrStoreUnavailable = errors.New("ratelimit: quota store unavailable")

	// ErrUnknownCategory is returned when a category name is not configured.
	ErrUnknownCategory = errors.New("ratelimit: unknown category")

	// ErrUnclassified is returned by Classify when no rule matches a request.
	ErrUnclassified = errors.New("ratelimit: no rule matches request")
)

// QuotaStore holds per-key sliding-window logs.
//
// Implementations must make RecordAndEvaluate atomic per key: the
// prune-count-append sequence for one key must not interleave with any other
// operation on the same key. Operations on different keys must not block
// each other beyond shard granularity.
type QuotaStore interface {
	// RecordAndEvaluate prunes the key's log, then admits and records the
	// request if fewer than category.MaxRequests timestamps remain.
	// A denied request is not recorded.
	RecordAndEvaluate(ctx context.Context, key Key, category Category) (*Decision, error)

	// Peek evaluates the key without recording a request.
	Peek(ctx context.Context, key Key, category Category) (*Decision, error)

	// Clear removes all state for the key.
	Clear(ctx context.Context, key Key) error

	// Sweep removes keys that have not been touched for at least idle and
	// returns the number of keys removed.
	Sweep(ctx context.Context, idle time.Duration) (int, error)
}

// KeyCounter is implemented by stores that can report how many keys they hold.
type KeyCounter interface {
	KeyCount(ctx context.Context) (int, error)
}

// Pinger is implemented by stores backed by a remote service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Metrics records rate limiting activity.
//
// Implementations can use Prometheus or be no-ops.
type Metrics interface {
	// RecordDecision records the outcome of a check for a category.
	RecordDecision(category string, admitted bool)

	// RecordCheckDuration records how long a store evaluation took.
	RecordCheckDuration(category string, duration time.Duration)

	// RecordStoreError records a failed store operation.
	RecordStoreError(operation string)

	// SetActiveKeys records the number of keys currently tracked.
	SetActiveKeys(count int)

	// RecordEviction records keys removed by a sweep.
	RecordEviction(count int)

	// RecordCircuitState records the store circuit breaker state.
	// States: "closed", "open", "half-open".
	RecordCircuitState(state string)
}

// Clock provides an abstraction for time operations to enable testing.
type Clock interface {
	Now() time.Time
}

// SystemClock is a Clock implementation that uses the system time.
type SystemClock struct{}

// Now returns the current system time.
func (c *SystemClock) Now() time.Time {
	return time.Now()
}
