// Package retry re-runs collaborator calls that failed for transient
// reasons, within the caller's deadline.
package retry

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"usic-gateway/internal/observability/logging"
)

// ErrBudgetExhausted is returned, wrapping the last failure, when the
// deadline leaves no room for the next backoff.
var ErrBudgetExhausted = errors.New("retry budget exhausted")

// Config bounds a retried call.
type Config struct {
	// MaxAttempts counts the first call. Values below 1 mean 1.
	MaxAttempts int

	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// JitterFraction adds up to this fraction of each delay, in [0, 1].
	JitterFraction float64
}

// RoleLookupConfig bounds privileged-role registry lookups. They run inside
// a single request's admission, so delays are milliseconds.
func RoleLookupConfig() Config {
	return Config{
		MaxAttempts:    2,
		InitialDelay:   25 * time.Millisecond,
		MaxDelay:       200 * time.Millisecond,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

// Backoff returns the delay before attempt n+1 (n starting at 1), without
// jitter.
func (c Config) Backoff(n int) time.Duration {
	d := float64(c.InitialDelay)
	for i := 1; i < n; i++ {
		d *= c.Multiplier
		if c.MaxDelay > 0 && time.Duration(d) >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	return time.Duration(d)
}

// Do calls op until it succeeds, returns a non-retryable error, runs out of
// attempts, or the next backoff would overrun ctx's deadline.
func Do(ctx context.Context, cfg Config, op func(ctx context.Context) error) error {
	attempts := max(cfg.MaxAttempts, 1)
	logger := logging.FromContext(ctx)

	var err error
	for n := 1; ; n++ {
		if err = op(ctx); err == nil {
			if n > 1 {
				logger.Debug("collaborator call succeeded after retry", slog.Int("attempt", n))
			}
			return nil
		}
		if !IsRetryable(err) || n >= attempts {
			return err
		}

		delay := jitter(cfg.Backoff(n), cfg.JitterFraction)
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= delay {
			return fmt.Errorf("%w after %d attempts: %w", ErrBudgetExhausted, n, err)
		}
		logger.Warn("collaborator call failed, retrying",
			slog.Int("attempt", n),
			slog.Int("max_attempts", attempts),
			slog.Duration("delay", delay),
			slog.Any("error", err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry aborted: %w", errors.Join(ctx.Err(), err))
		case <-timer.C:
		}
	}
}

// IsRetryable reports whether err is a transient connection fault. Context
// errors are never retryable: they mean the caller's budget is spent.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, driver.ErrBadConn):
		return true
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ETIMEDOUT), errors.Is(err, syscall.ENETUNREACH):
		return true
	case pgconn.SafeToRetry(err):
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func jitter(d time.Duration, fraction float64) time.Duration {
	if fraction <= 0 || d <= 0 {
		return d
	}
	fraction = min(fraction, 1)
	// #nosec G404 -- backoff jitter needs no cryptographic randomness
	return d + time.Duration(rand.Float64()*fraction*float64(d))
}
