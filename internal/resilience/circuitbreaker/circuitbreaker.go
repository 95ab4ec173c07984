// Package circuitbreaker stops the gateway from hammering a collaborator
// that is already failing. It wraps github.com/sony/gobreaker.
package circuitbreaker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// ErrOpen is returned without calling through while the circuit is open or
// its half-open probes are used up.
var ErrOpen = errors.New("circuit breaker open")

// Config describes when a circuit trips and how it recovers.
type Config struct {
	Name string

	// HalfOpenProbes is how many calls may test a recovering collaborator.
	HalfOpenProbes uint32

	// Window is the closed-state period after which counts reset.
	Window time.Duration

	// Cooldown is how long the circuit stays open before probing.
	Cooldown time.Duration

	// TripRatio is the failure ratio that opens the circuit once at least
	// MinRequests calls were seen in the window.
	TripRatio   float64
	MinRequests uint32

	// OnStateChange is called after every transition.
	OnStateChange func(name string, from, to gobreaker.State)
}

// QuotaStoreConfig guards a remote quota store. It sits on every request,
// so the cooldown is short.
func QuotaStoreConfig() Config {
	return Config{
		Name:           "quota-store",
		HalfOpenProbes: 5,
		Window:         10 * time.Second,
		Cooldown:       5 * time.Second,
		TripRatio:      0.5,
		MinRequests:    10,
	}
}

// RoleRegistryConfig guards privileged-role lookups.
func RoleRegistryConfig() Config {
	return Config{
		Name:           "role-registry",
		HalfOpenProbes: 3,
		Window:         30 * time.Second,
		Cooldown:       15 * time.Second,
		TripRatio:      0.6,
		MinRequests:    5,
	}
}

// Breaker is a named circuit.
type Breaker struct {
	cb   *gobreaker.CircuitBreaker
	name string
}

// New creates a Breaker. Calls that fail only because the caller canceled
// its own context are counted as successes.
func New(cfg Config) *Breaker {
	return &Breaker{
		name: cfg.Name,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        cfg.Name,
			MaxRequests: cfg.HalfOpenProbes,
			Interval:    cfg.Window,
			Timeout:     cfg.Cooldown,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.Requests >= cfg.MinRequests &&
					float64(c.TotalFailures)/float64(c.Requests) >= cfg.TripRatio
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				level := slog.LevelWarn
				if to == gobreaker.StateClosed {
					level = slog.LevelInfo
				}
				slog.Log(context.Background(), level, "circuit breaker state changed",
					slog.String("circuit", name),
					slog.String("from", from.String()),
					slog.String("to", to.String()))
				if cfg.OnStateChange != nil {
					cfg.OnStateChange(name, from, to)
				}
			},
		}),
	}
}

// Call runs fn through b and returns its result. An open circuit yields an
// error wrapping ErrOpen.
func Call[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	res, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return zero, errors.Join(ErrOpen, err)
	}
	if err != nil {
		return zero, err
	}
	return res.(T), nil
}

// Do runs fn through b.
func (b *Breaker) Do(fn func() error) error {
	_, err := Call(b, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// Name returns the circuit name.
func (b *Breaker) Name() string { return b.name }

// State returns the current circuit state.
func (b *Breaker) State() gobreaker.State { return b.cb.State() }
