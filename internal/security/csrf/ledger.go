package csrf

import (
	"sync"
	"time"
)

// DefaultMaxOutstanding bounds the ledger when Config.MaxOutstanding is
// unset.
const DefaultMaxOutstanding = 100_000

// ledger remembers issued tokens until they expire. It holds at most max
// tokens; a full ledger forgets the oldest issue first. Every token gets
// the same TTL, so that is also the one closest to expiry.
type ledger struct {
	max int

	mu     sync.Mutex
	tokens map[string]time.Time
	order  []string // issue order; may hold values already swept
}

func newLedger(capacity int) *ledger {
	if capacity < 1 {
		capacity = DefaultMaxOutstanding
	}
	return &ledger{max: capacity, tokens: make(map[string]time.Time)}
}

// remember records t and returns how many older tokens were evicted to
// make room.
func (l *ledger) remember(t Token) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	evicted := 0
	for len(l.tokens) >= l.max && len(l.order) > 0 {
		oldest := l.order[0]
		l.order = l.order[1:]
		if _, ok := l.tokens[oldest]; ok {
			delete(l.tokens, oldest)
			evicted++
		}
	}
	l.tokens[t.Value] = t.ExpiresAt
	l.order = append(l.order, t.Value)
	return evicted
}

// expiry returns the recorded expiry of value.
func (l *ledger) expiry(value string) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	exp, ok := l.tokens[value]
	return exp, ok
}

// sweep drops tokens expired at now and returns how many were removed.
func (l *ledger) sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for value, exp := range l.tokens {
		if !now.Before(exp) {
			delete(l.tokens, value)
			removed++
		}
	}

	live := make([]string, 0, len(l.tokens))
	for _, value := range l.order {
		if _, ok := l.tokens[value]; ok {
			live = append(live, value)
		}
	}
	l.order = live
	return removed
}

func (l *ledger) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tokens)
}
