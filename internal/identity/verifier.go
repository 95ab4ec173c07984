// Package identity verifies bearer identity tokens and produces a
// Principal.
//
// Cryptographic checks are delegated to a TokenVerifier. The Verifier owns
// header extraction, the timeout around the provider call, revocation and
// the mapping of every failure onto a small closed set of kinds.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Claims is what a TokenVerifier extracts from a valid token.
type Claims struct {
	Subject   string
	Email     string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenVerifier checks a raw token. Failures should be *Error values;
// anything else is treated as KindUnavailable.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, raw string) (Claims, error)
}

// RevocationChecker reports whether an otherwise valid token was revoked.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, c Claims) (bool, error)
}

// RevocationFunc adapts a function to RevocationChecker.
type RevocationFunc func(ctx context.Context, c Claims) (bool, error)

// IsRevoked calls f.
func (f RevocationFunc) IsRevoked(ctx context.Context, c Claims) (bool, error) {
	return f(ctx, c)
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithRevocationChecker consults rc after the token verifies.
func WithRevocationChecker(rc RevocationChecker) Option {
	return func(v *Verifier) { v.revocations = rc }
}

// WithTimeout bounds each verification. Default: 3s.
func WithTimeout(d time.Duration) Option {
	return func(v *Verifier) {
		if d > 0 {
			v.timeout = d
		}
	}
}

// Verifier turns bearer tokens into principals. Results are never cached.
type Verifier struct {
	provider    TokenVerifier
	revocations RevocationChecker
	timeout     time.Duration
}

// NewVerifier creates a Verifier over provider.
func NewVerifier(provider TokenVerifier, opts ...Option) *Verifier {
	v := &Verifier{provider: provider, timeout: 3 * time.Second}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

const bearerPrefix = "bearer "

// ExtractBearer returns the token from an Authorization header value.
func ExtractBearer(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrMissing
	}
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", newError(KindMalformed, errors.New("authorization scheme is not bearer"))
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", ErrMissing
	}
	return token, nil
}

// VerifyRequest verifies the bearer token in r's Authorization header.
func (v *Verifier) VerifyRequest(r *http.Request) (*Principal, error) {
	raw, err := ExtractBearer(r.Header.Get("Authorization"))
	if err != nil {
		recordVerification(err)
		return nil, err
	}
	return v.Verify(r.Context(), raw)
}

// Verify checks raw and returns the principal it identifies.
func (v *Verifier) Verify(ctx context.Context, raw string) (*Principal, error) {
	start := time.Now()
	p, err := v.verify(ctx, raw)
	recordVerificationDuration(time.Since(start))
	recordVerification(err)
	if err != nil {
		level := slog.LevelWarn
		if KindOf(err) == KindUnavailable {
			level = slog.LevelError
		}
		slog.Log(ctx, level, "identity verification failed",
			slog.String("kind", KindOf(err).String()),
			slog.Any("error", err))
	}
	return p, err
}

func (v *Verifier) verify(ctx context.Context, raw string) (*Principal, error) {
	if raw == "" {
		return nil, ErrMissing
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	claims, err := v.provider.VerifyToken(ctx, raw)
	if err != nil {
		return nil, classify(ctx, err)
	}
	if claims.Subject == "" {
		return nil, newError(KindInvalid, errors.New("token has no subject"))
	}

	if v.revocations != nil {
		revoked, err := v.revocations.IsRevoked(ctx, claims)
		if err != nil {
			return nil, newError(KindUnavailable, fmt.Errorf("revocation check: %w", err))
		}
		if revoked {
			return nil, ErrRevoked
		}
	}

	return &Principal{
		SubjectID: claims.Subject,
		Email:     claims.Email,
		ExpiresAt: claims.ExpiresAt,
	}, nil
}

func classify(ctx context.Context, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return newError(KindUnavailable, fmt.Errorf("identity provider: %w", err))
	}
	return newError(KindUnavailable, err)
}
