// Package csrf implements the double-submit CSRF protocol.
//
// The issued token travels in a script-readable cookie. Clients copy it into
// a request header on mutating requests; the guard compares the two copies
// in constant time and checks the server-side expiry it recorded at issue.
package csrf

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"usic-gateway/internal/handler/http/respond"
)

var (
	// ErrTokenMissing means the header or cookie copy is absent.
	ErrTokenMissing = errors.New("csrf token missing")
	// ErrTokenInvalid means the copies differ, or the token is unknown or
	// expired.
	ErrTokenInvalid = errors.New("csrf token invalid")
)

// Public messages for rejected requests.
const (
	MessageMissing = "CSRF token missing"
	MessageInvalid = "Invalid CSRF token"
)

// Config configures a Guard.
type Config struct {
	CookieName string
	HeaderName string
	TTL        time.Duration
	TokenBytes int

	// Secure marks the cookie Secure; enable in production.
	Secure bool

	// MaxOutstanding caps how many unexpired tokens are remembered. Once
	// reached, issuing a token forgets the oldest one. Default:
	// DefaultMaxOutstanding
	MaxOutstanding int

	// Now defaults to time.Now.
	Now func() time.Time
}

// Guard issues and validates CSRF tokens.
type Guard struct {
	cfg    Config
	issued *ledger
}

// NewGuard validates cfg and returns a Guard.
func NewGuard(cfg Config) (*Guard, error) {
	if cfg.CookieName == "" || cfg.HeaderName == "" {
		return nil, fmt.Errorf("csrf cookie and header names are required")
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("csrf token ttl must be positive, got %v", cfg.TTL)
	}
	if cfg.TokenBytes < MinTokenBytes {
		return nil, fmt.Errorf("csrf token bytes must be at least %d, got %d", MinTokenBytes, cfg.TokenBytes)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MaxOutstanding < 0 {
		return nil, fmt.Errorf("csrf max outstanding tokens must not be negative, got %d", cfg.MaxOutstanding)
	}
	return &Guard{cfg: cfg, issued: newLedger(cfg.MaxOutstanding)}, nil
}

// HeaderName returns the request header carrying the presented token.
func (g *Guard) HeaderName() string { return g.cfg.HeaderName }

// Issue creates a fresh token and records its expiry.
func (g *Guard) Issue() (Token, error) {
	value, err := generate(g.cfg.TokenBytes)
	if err != nil {
		return Token{}, err
	}
	t := Token{Value: value, ExpiresAt: g.cfg.Now().Add(g.cfg.TTL)}
	if evicted := g.issued.remember(t); evicted > 0 {
		slog.Debug("csrf ledger full, forgot oldest tokens", slog.Int("evicted", evicted))
	}
	return t, nil
}

// AttachToResponse sets the token cookie. The cookie is not HttpOnly so
// client code can mirror it into the header.
func (g *Guard) AttachToResponse(w http.ResponseWriter, t Token) {
	maxAge := int(t.ExpiresAt.Sub(g.cfg.Now()).Seconds())
	if maxAge <= 0 {
		maxAge = int(g.cfg.TTL.Seconds())
	}
	http.SetCookie(w, &http.Cookie{
		Name:     g.cfg.CookieName,
		Value:    t.Value,
		Path:     "/",
		Expires:  t.ExpiresAt,
		MaxAge:   maxAge,
		HttpOnly: false,
		Secure:   g.cfg.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// RequiresToken reports whether method changes state.
func RequiresToken(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

// Check validates the token pair carried by r. It does not look at the
// method; callers decide whether the request needs protection.
func (g *Guard) Check(r *http.Request) error {
	presented := r.Header.Get(g.cfg.HeaderName)
	cookie, err := r.Cookie(g.cfg.CookieName)
	if presented == "" || err != nil || cookie.Value == "" {
		return ErrTokenMissing
	}

	if !Validate(presented, cookie.Value) {
		return ErrTokenInvalid
	}

	exp, ok := g.issued.expiry(cookie.Value)
	if !ok {
		return fmt.Errorf("%w: not issued by this instance", ErrTokenInvalid)
	}
	if !g.cfg.Now().Before(exp) {
		return fmt.Errorf("%w: expired", ErrTokenInvalid)
	}
	return nil
}

// Protect rejects mutating requests that fail Check with 403.
func (g *Guard) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if RequiresToken(r.Method) {
			if err := g.Check(r); err != nil {
				slog.Warn("csrf validation failed",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("reason", err.Error()))
				WriteRejection(w, err)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// WriteRejection writes the 403 body for a Check error.
func WriteRejection(w http.ResponseWriter, err error) {
	body := map[string]string{"error": MessageInvalid, "code": "csrf_token_invalid"}
	if errors.Is(err, ErrTokenMissing) {
		body = map[string]string{"error": MessageMissing, "code": "csrf_token_missing"}
	}
	respond.JSON(w, http.StatusForbidden, body)
}

// Sweep forgets expired tokens and returns how many were dropped.
func (g *Guard) Sweep() int {
	return g.issued.sweep(g.cfg.Now())
}

// Outstanding returns the number of remembered tokens.
func (g *Guard) Outstanding() int {
	return g.issued.len()
}

type issueResponse struct {
	CSRFToken string    `json:"csrfToken"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// IssueHandler serves a fresh token as both cookie and JSON body.
func (g *Guard) IssueHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := g.Issue()
		if err != nil {
			respond.SafeError(w, http.StatusInternalServerError, "internal", "", err)
			return
		}
		g.AttachToResponse(w, t)
		respond.JSON(w, http.StatusOK, issueResponse{CSRFToken: t.Value, ExpiresAt: t.ExpiresAt.UTC()})
	}
}
