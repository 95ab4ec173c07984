package identity

import (
	"context"
	"time"
)

// Principal is a verified caller. It lives for one request only.
type Principal struct {
	SubjectID string

	// Email is empty when the token carries none.
	Email string

	ExpiresAt time.Time
}

type ctxKey struct{}

// WithPrincipal attaches p to ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext returns the principal attached by WithPrincipal.
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(*Principal)
	return p, ok && p != nil
}
