package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// CircuitBreaker runs calls to a remote store. Do returns an error without
// calling fn while the circuit is open. Name labels failures.
type CircuitBreaker interface {
	Do(fn func() error) error
	Name() string
}

// BreakerStore guards a remote QuotaStore with a circuit breaker.
//
// Every failure, including an open circuit, surfaces as ErrStoreUnavailable.
// The limiter never turns that into an admission.
type BreakerStore struct {
	next    QuotaStore
	breaker CircuitBreaker
}

// NewBreakerStore wraps next with breaker.
func NewBreakerStore(next QuotaStore, breaker CircuitBreaker) *BreakerStore {
	return &BreakerStore{next: next, breaker: breaker}
}

// RecordAndEvaluate implements QuotaStore.
func (s *BreakerStore) RecordAndEvaluate(ctx context.Context, key Key, category Category) (*Decision, error) {
	return s.decide(func() (*Decision, error) {
		return s.next.RecordAndEvaluate(ctx, key, category)
	})
}

// Peek implements QuotaStore.
func (s *BreakerStore) Peek(ctx context.Context, key Key, category Category) (*Decision, error) {
	return s.decide(func() (*Decision, error) {
		return s.next.Peek(ctx, key, category)
	})
}

func (s *BreakerStore) decide(fn func() (*Decision, error)) (*Decision, error) {
	var d *Decision
	err := s.breaker.Do(func() error {
		var err error
		d, err = fn()
		return err
	})
	if err != nil {
		return nil, s.wrap(err)
	}
	return d, nil
}

// Clear implements QuotaStore.
func (s *BreakerStore) Clear(ctx context.Context, key Key) error {
	return s.wrap(s.breaker.Do(func() error {
		return s.next.Clear(ctx, key)
	}))
}

// Sweep implements QuotaStore. Sweeps bypass the breaker so a recovering
// store is not probed by background work.
func (s *BreakerStore) Sweep(ctx context.Context, idle time.Duration) (int, error) {
	return s.next.Sweep(ctx, idle)
}

// Ping implements Pinger when the wrapped store does.
func (s *BreakerStore) Ping(ctx context.Context) error {
	p, ok := s.next.(Pinger)
	if !ok {
		return nil
	}
	return s.wrap(s.breaker.Do(func() error {
		return p.Ping(ctx)
	}))
}

// KeyCount implements KeyCounter when the wrapped store does.
func (s *BreakerStore) KeyCount(ctx context.Context) (int, error) {
	kc, ok := s.next.(KeyCounter)
	if !ok {
		return 0, nil
	}
	return kc.KeyCount(ctx)
}

func (s *BreakerStore) wrap(err error) error {
	if err == nil || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, s.breaker.Name(), err)
}
