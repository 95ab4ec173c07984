package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// MemoryStore is a sharded, thread-safe in-memory QuotaStore.
//
// Keys are spread over a fixed number of shards by hash. Each shard guards
// its own map with a mutex, so the prune-then-append sequence for a key is
// atomic with respect to every other operation on that key while keys in
// different shards never contend.
//
// State does not survive a process restart.
type MemoryStore struct {
	shards []*memoryShard
	clock  Clock
}

type memoryShard struct {
	mu      sync.Mutex
	entries map[Key]*windowEntry
}

// MemoryStoreConfig holds configuration for MemoryStore.
type MemoryStoreConfig struct {
	// Shards is the number of independently locked partitions.
	// Default: 64
	Shards int

	// Clock provides time operations for testing.
	// Default: SystemClock
	Clock Clock
}

// DefaultMemoryStoreConfig returns the default configuration.
func DefaultMemoryStoreConfig() MemoryStoreConfig {
	return MemoryStoreConfig{
		Shards: 64,
		Clock:  &SystemClock{},
	}
}

// NewMemoryStore creates a new in-memory store with the given configuration.
func NewMemoryStore(config MemoryStoreConfig) *MemoryStore {
	if config.Shards <= 0 {
		config.Shards = 64
	}
	if config.Clock == nil {
		config.Clock = &SystemClock{}
	}

	shards := make([]*memoryShard, config.Shards)
	for i := range shards {
		shards[i] = &memoryShard{entries: make(map[Key]*windowEntry)}
	}

	return &MemoryStore{
		shards: shards,
		clock:  config.Clock,
	}
}

func (s *MemoryStore) shardFor(key Key) *memoryShard {
	h := xxhash.New()
	_, _ = h.WriteString(key.Category)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(key.Client)
	return s.shards[h.Sum64()%uint64(len(s.shards))]
}

// RecordAndEvaluate implements QuotaStore.
func (s *MemoryStore) RecordAndEvaluate(ctx context.Context, key Key, category Category) (*Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	shard := s.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	now := s.clock.Now()

	entry, ok := shard.entries[key]
	if !ok {
		entry = &windowEntry{timestamps: make([]time.Time, 0, min(category.MaxRequests, 16))}
		shard.entries[key] = entry
	}

	return entry.recordAndEvaluate(key, category, now), nil
}

// Peek implements QuotaStore. A key whose log is empty after pruning is
// deleted.
func (s *MemoryStore) Peek(ctx context.Context, key Key, category Category) (*Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	shard := s.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	now := s.clock.Now()

	entry, ok := shard.entries[key]
	if !ok {
		return newDecision(key, category, 0, time.Time{}, now, true), nil
	}

	d := entry.peek(key, category, now)
	if len(entry.timestamps) == 0 {
		delete(shard.entries, key)
	}
	return d, nil
}

// Clear implements QuotaStore.
func (s *MemoryStore) Clear(ctx context.Context, key Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	shard := s.shardFor(key)
	shard.mu.Lock()
	delete(shard.entries, key)
	shard.mu.Unlock()

	return nil
}

// Sweep implements QuotaStore.
//
// Each shard is locked in turn, so an entry is only removed while no request
// can be updating it. An entry touched after now-idle survives.
func (s *MemoryStore) Sweep(ctx context.Context, idle time.Duration) (int, error) {
	removed := 0

	for _, shard := range s.shards {
		if err := ctx.Err(); err != nil {
			return removed, err
		}

		cutoff := s.clock.Now().Add(-idle)

		shard.mu.Lock()
		for key, entry := range shard.entries {
			if !entry.lastTouched.After(cutoff) {
				delete(shard.entries, key)
				removed++
			}
		}
		shard.mu.Unlock()
	}

	return removed, nil
}

// KeyCount implements KeyCounter.
func (s *MemoryStore) KeyCount(ctx context.Context) (int, error) {
	count := 0
	for _, shard := range s.shards {
		shard.mu.Lock()
		count += len(shard.entries)
		shard.mu.Unlock()
	}
	return count, nil
}
