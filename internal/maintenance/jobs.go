package maintenance

import "context"

// Sweeper evicts idle rate-limit keys.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// TokenSweeper forgets expired CSRF tokens.
type TokenSweeper interface {
	Sweep() int
}

// Job names.
const (
	JobRateLimitSweep = "rate_limit_sweep"
	JobCSRFSweep      = "csrf_sweep"
)

// RateLimitSweep adapts a rate-limit sweeper to a Job.
func RateLimitSweep(s Sweeper) Job {
	return s.Sweep
}

// CSRFSweep adapts a CSRF ledger to a Job.
func CSRFSweep(s TokenSweeper) Job {
	return func(ctx context.Context) (int, error) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		return s.Sweep(), nil
	}
}
