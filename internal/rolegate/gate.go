// Package rolegate decides whether a verified principal holds the
// privileged role.
//
// A registry that answers "no" and a registry that cannot answer are
// different outcomes: the first is ErrNotPrivileged (403), the second is
// ErrRegistryUnavailable (500, transient).
package rolegate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"usic-gateway/internal/identity"
	"usic-gateway/internal/resilience/retry"
)

var (
	// ErrNotPrivileged means the registry answered and the subject is not
	// privileged.
	ErrNotPrivileged = errors.New("principal is not privileged")

	// ErrRegistryUnavailable means the registry could not be consulted
	// within the lookup budget.
	ErrRegistryUnavailable = errors.New("role registry unavailable")

	// ErrLookupThrottled means the subject spent its own lookup budget. It
	// is always returned wrapped in ErrRegistryUnavailable.
	ErrLookupThrottled = errors.New("subject lookup budget exhausted")
)

// Config bounds registry lookups.
type Config struct {
	// Timeout covers throttling, every attempt and backoff. Default: 2s
	Timeout time.Duration

	// Retry applies to transient registry faults.
	Retry retry.Config

	// RPS caps lookups per second across all requests. Zero disables the
	// cap.
	RPS float64

	// SubjectRPS and SubjectBurst cap lookups for any one subject. They are
	// checked before the shared RPS budget and never wait. Zero SubjectRPS
	// disables the per-subject cap.
	SubjectRPS   float64
	SubjectBurst int

	// MaxSubjects bounds how many subject budgets are tracked at once.
	// Default: 10000
	MaxSubjects int
}

// DefaultConfig returns the production lookup bounds.
func DefaultConfig() Config {
	return Config{
		Timeout: 2 * time.Second,
		Retry:   retry.RoleLookupConfig(),
		RPS:     50,

		SubjectRPS:   2,
		SubjectBurst: 10,
		MaxSubjects:  10000,
	}
}

// Gate checks principals against a Registry.
type Gate struct {
	registry Registry
	cfg      Config
	limiter  *rate.Limiter
	subjects *subjectBudget
}

// New creates a Gate.
func New(registry Registry, cfg Config) *Gate {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry.MaxAttempts = 1
	}

	g := &Gate{registry: registry, cfg: cfg}
	if cfg.RPS > 0 {
		burst := int(cfg.RPS)
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}
	if cfg.SubjectRPS > 0 {
		g.subjects = newSubjectBudget(cfg.SubjectRPS, cfg.SubjectBurst, cfg.MaxSubjects)
	}
	return g
}

// IsPrivileged reports whether p holds the privileged role. A nil
// principal is never privileged. Any failure to consult the registry is
// returned wrapped in ErrRegistryUnavailable.
func (g *Gate) IsPrivileged(ctx context.Context, p *identity.Principal) (bool, error) {
	if p == nil || p.SubjectID == "" {
		return false, nil
	}

	start := time.Now()
	privileged, err := g.lookup(ctx, p.SubjectID)
	recordLookupDuration(time.Since(start))

	switch {
	case errors.Is(err, ErrLookupThrottled):
		recordLookup("throttled")
		slog.Debug("role lookup throttled for subject",
			slog.String("subject", p.SubjectID))
		return false, fmt.Errorf("%w: %w", ErrRegistryUnavailable, err)
	case err != nil:
		recordLookup("unavailable")
		slog.Error("role registry lookup failed",
			slog.String("subject", p.SubjectID),
			slog.Duration("timeout", g.cfg.Timeout),
			slog.Any("error", err))
		return false, fmt.Errorf("%w: %w", ErrRegistryUnavailable, err)
	case privileged:
		recordLookup("privileged")
	default:
		recordLookup("not_privileged")
	}
	return privileged, nil
}

// RequirePrivileged returns p when it is privileged, ErrNotPrivileged when
// it is not, and an ErrRegistryUnavailable error when that is unknown.
func (g *Gate) RequirePrivileged(ctx context.Context, p *identity.Principal) (*identity.Principal, error) {
	privileged, err := g.IsPrivileged(ctx, p)
	if err != nil {
		return nil, err
	}
	if !privileged {
		return nil, ErrNotPrivileged
	}
	return p, nil
}

// Ping checks the registry when it supports health checks.
func (g *Gate) Ping(ctx context.Context) error {
	if p, ok := g.registry.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (g *Gate) lookup(ctx context.Context, subjectID string) (bool, error) {
	if g.subjects != nil && !g.subjects.allow(subjectID) {
		return false, ErrLookupThrottled
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return false, fmt.Errorf("lookup throttled: %w", err)
		}
	}

	var privileged bool
	err := retry.Do(ctx, g.cfg.Retry, func(ctx context.Context) error {
		var err error
		privileged, err = g.registry.IsPrivileged(ctx, subjectID)
		return err
	})
	if err != nil {
		return false, err
	}
	return privileged, nil
}
