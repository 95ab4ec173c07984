package ratelimit

import (
	"fmt"
	"time"
)

// Decision represents the result of a rate limit evaluation.
//
// A Decision is always computed, whether the request was admitted or not,
// so callers can surface quota information on both success and failure
// responses.
type Decision struct {
	// Key is the counter the decision was made against.
	Key Key

	// Admitted indicates whether the request is within the limit.
	Admitted bool

	// Limit is the maximum number of requests in the window.
	Limit int

	// Remaining is the number of requests left in the current window.
	// It is never negative.
	Remaining int

	// ResetAt is when the oldest counted request leaves the window, or
	// now+window when no requests are counted.
	ResetAt time.Time

	// RetryAfter is how long a denied caller must wait before one slot
	// frees up. It is zero for admitted decisions.
	RetryAfter time.Duration
}

// String returns a human-readable representation of the decision.
func (d *Decision) String() string {
	if d.Admitted {
		return fmt.Sprintf(
			"Decision{Admitted: true, Key: %s, Remaining: %d/%d, ResetAt: %s}",
			d.Key,
			d.Remaining,
			d.Limit,
			d.ResetAt.Format(time.RFC3339),
		)
	}

	return fmt.Sprintf(
		"Decision{Admitted: false, Key: %s, Limit: %d, RetryAfter: %s, ResetAt: %s}",
		d.Key,
		d.Limit,
		d.RetryAfter.String(),
		d.ResetAt.Format(time.RFC3339),
	)
}

// RetryAfterSeconds returns the retry delay rounded up to whole seconds.
//
// This is the value for the Retry-After header. Admitted decisions return 0.
func (d *Decision) RetryAfterSeconds() int64 {
	if d.Admitted || d.RetryAfter <= 0 {
		return 0
	}
	seconds := int64(d.RetryAfter / time.Second)
	if d.RetryAfter%time.Second != 0 {
		seconds++
	}
	return seconds
}

// newDecision builds a decision from the pruned log of a key.
//
// count is the number of timestamps in the window after any append, and
// oldest is the earliest of them (ignored when count is zero).
func newDecision(key Key, category Category, count int, oldest, now time.Time, admitted bool) *Decision {
	d := &Decision{
		Key:      key,
		Admitted: admitted,
		Limit:    category.MaxRequests,
	}

	d.Remaining = category.MaxRequests - count
	if d.Remaining < 0 {
		d.Remaining = 0
	}

	if count == 0 {
		d.ResetAt = now.Add(category.Window)
	} else {
		d.ResetAt = oldest.Add(category.Window)
	}

	if !admitted {
		d.RetryAfter = d.ResetAt.Sub(now)
		if d.RetryAfter < 0 {
			d.RetryAfter = 0
		}
	}

	return d
}
