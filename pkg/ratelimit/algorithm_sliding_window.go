package ratelimit

import (
	"log/slog"
	"time"
)

// windowEntry is the sliding-window log of one key.
//
// timestamps is non-decreasing. After prune(now, window) every element lies
// in (now-window, now].
type windowEntry struct {
	timestamps  []time.Time
	lastTouched time.Time
}

// validTimestamp returns now, or the newest recorded timestamp if the clock
// has moved backwards since it was recorded.
//
// Using the newest timestamp keeps the log ordered and prevents a clock
// rollback from pushing old requests out of the window early.
func (e *windowEntry) validTimestamp(key Key, now time.Time) time.Time {
	if len(e.timestamps) == 0 {
		return now
	}
	newest := e.timestamps[len(e.timestamps)-1]
	if now.Before(newest) {
		slog.Warn("clock skew detected, using last valid timestamp",
			slog.String("key", key.String()),
			slog.Time("now", now),
			slog.Time("last_seen", newest),
			slog.Duration("skew", newest.Sub(now)),
		)
		return newest
	}
	return now
}

// prune drops timestamps at or before now-window.
//
// The backing array is compacted in place so a long-lived key does not pin
// an ever-growing array.
func (e *windowEntry) prune(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)

	i := 0
	for i < len(e.timestamps) && !e.timestamps[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return
	}

	n := copy(e.timestamps, e.timestamps[i:])
	for j := n; j < len(e.timestamps); j++ {
		e.timestamps[j] = time.Time{}
	}
	e.timestamps = e.timestamps[:n]
}

// recordAndEvaluate runs the prune-then-conditionally-append step.
// Callers must hold the lock that guards e.
func (e *windowEntry) recordAndEvaluate(key Key, category Category, now time.Time) *Decision {
	now = e.validTimestamp(key, now)
	e.prune(now, category.Window)
	e.lastTouched = now

	if len(e.timestamps) >= category.MaxRequests {
		return e.decision(key, category, now, false)
	}

	e.timestamps = append(e.timestamps, now)
	return e.decision(key, category, now, true)
}

// peek prunes and evaluates without recording.
// Callers must hold the lock that guards e.
func (e *windowEntry) peek(key Key, category Category, now time.Time) *Decision {
	now = e.validTimestamp(key, now)
	e.prune(now, category.Window)
	return e.decision(key, category, now, len(e.timestamps) < category.MaxRequests)
}

func (e *windowEntry) decision(key Key, category Category, now time.Time, admitted bool) *Decision {
	var oldest time.Time
	if len(e.timestamps) > 0 {
		oldest = e.timestamps[0]
	}
	return newDecision(key, category, len(e.timestamps), oldest, now, admitted)
}
