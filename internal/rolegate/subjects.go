package rolegate

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// subjectBudget gives every subject its own lookup allowance in front of
// the shared one, so a single caller cannot starve the rest.
type subjectBudget struct {
	limit rate.Limit
	burst int
	max   int

	mu       sync.Mutex
	subjects map[string]*rate.Limiter
}

func newSubjectBudget(rps float64, burst, capacity int) *subjectBudget {
	if burst < 1 {
		burst = 1
	}
	if capacity < 1 {
		capacity = 10000
	}
	return &subjectBudget{
		limit:    rate.Limit(rps),
		burst:    burst,
		max:      capacity,
		subjects: make(map[string]*rate.Limiter),
	}
}

// allow spends one token of subject's budget without waiting.
func (b *subjectBudget) allow(subject string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	l, ok := b.subjects[subject]
	if !ok {
		if len(b.subjects) >= b.max {
			b.evictRefilled(time.Now())
		}
		l = rate.NewLimiter(b.limit, b.burst)
		b.subjects[subject] = l
	}
	return l.Allow()
}

// evictRefilled drops subjects whose budget is full again; a fresh limiter
// would behave the same. If every tracked subject is still draining, the
// table starts over.
func (b *subjectBudget) evictRefilled(now time.Time) {
	for subject, l := range b.subjects {
		if l.TokensAt(now) >= float64(b.burst) {
			delete(b.subjects, subject)
		}
	}
	if len(b.subjects) >= b.max {
		clear(b.subjects)
	}
}

func (b *subjectBudget) tracked() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subjects)
}
