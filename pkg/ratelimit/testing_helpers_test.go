package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MockClock implements Clock interface for testing
type MockClock struct {
	mu  sync.RWMutex
	now time.Time
}

func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

func (m *MockClock) Now() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.now
}

func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// logLen returns the number of timestamps stored for key.
func (s *MemoryStore) logLen(key Key) int {
	shard := s.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry, ok := shard.entries[key]
	if !ok {
		return 0
	}
	return len(entry.timestamps)
}

func (s *MemoryStore) hasKey(key Key) bool {
	shard := s.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	_, ok := shard.entries[key]
	return ok
}

// failingStore returns err from every operation.
type failingStore struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *failingStore) RecordAndEvaluate(ctx context.Context, key Key, category Category) (*Decision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil, f.err
}

func (f *failingStore) Peek(ctx context.Context, key Key, category Category) (*Decision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil, f.err
}

func (f *failingStore) Clear(ctx context.Context, key Key) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func (f *failingStore) Sweep(ctx context.Context, idle time.Duration) (int, error) {
	return 0, f.err
}

func (f *failingStore) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
