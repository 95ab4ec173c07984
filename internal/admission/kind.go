package admission

import (
	"errors"
	"fmt"
	"net/http"

	"usic-gateway/internal/identity"
	"usic-gateway/internal/rolegate"
	"usic-gateway/internal/security/csrf"
	"usic-gateway/pkg/ratelimit"
)

// Kind is the closed set of reasons a request can be rejected.
type Kind int

const (
	KindRateLimitExceeded Kind = iota + 1
	KindCsrfTokenMissing
	KindCsrfTokenInvalid
	KindIdentityTokenMissing
	KindIdentityTokenInvalid
	KindIdentityTokenExpired
	KindNotPrivileged
	// KindAuthorizationServiceUnavailable means a collaborator could not
	// answer. It is transient and never a policy verdict.
	KindAuthorizationServiceUnavailable
	// KindConfigurationError means the route table has no rule for the
	// request. Such requests fail closed.
	KindConfigurationError
	// KindInternal covers quota store faults.
	KindInternal
)

type kindInfo struct {
	code      string
	status    int
	message   string
	retryable bool
}

var kinds = map[Kind]kindInfo{
	KindRateLimitExceeded:               {"rate_limit_exceeded", http.StatusTooManyRequests, "Too many requests", true},
	KindCsrfTokenMissing:                {"csrf_token_missing", http.StatusForbidden, csrf.MessageMissing, false},
	KindCsrfTokenInvalid:                {"csrf_token_invalid", http.StatusForbidden, csrf.MessageInvalid, false},
	KindIdentityTokenMissing:            {"identity_token_missing", http.StatusUnauthorized, "Authentication required", false},
	KindIdentityTokenInvalid:            {"identity_token_invalid", http.StatusUnauthorized, "Invalid identity token", false},
	KindIdentityTokenExpired:            {"identity_token_expired", http.StatusUnauthorized, "Identity token expired", false},
	KindNotPrivileged:                   {"not_privileged", http.StatusForbidden, "Forbidden", false},
	KindAuthorizationServiceUnavailable: {"authorization_service_unavailable", http.StatusInternalServerError, "Authorization could not be determined, please retry", true},
	KindConfigurationError:              {"configuration_error", http.StatusInternalServerError, "Internal server error", false},
	KindInternal:                        {"internal_error", http.StatusInternalServerError, "Internal server error", true},
}

func (k Kind) info() kindInfo {
	if info, ok := kinds[k]; ok {
		return info
	}
	return kinds[KindInternal]
}

// String returns the snake_case code used in response bodies and metrics.
func (k Kind) String() string { return k.info().code }

// Status returns the HTTP status for k.
func (k Kind) Status() int { return k.info().status }

// Message returns the public message for k. It never carries detail.
func (k Kind) Message() string { return k.info().message }

// Retryable reports whether repeating the same request may succeed.
func (k Kind) Retryable() bool { return k.info().retryable }

// Stage names a step of the pipeline.
type Stage string

const (
	StageClassify  Stage = "classify"
	StageRateLimit Stage = "rate_limit"
	StageCSRF      Stage = "csrf"
	StageIdentity  Stage = "identity"
	StageRole      Stage = "role"
)

// Rejection is the terminal outcome of a refused request.
type Rejection struct {
	Kind  Kind
	Stage Stage

	// Decision is set for KindRateLimitExceeded.
	Decision *ratelimit.Decision

	// Err is the component error behind the rejection. It is logged,
	// never shown to callers.
	Err error
}

func (r *Rejection) Error() string {
	if r.Err == nil {
		return fmt.Sprintf("admission rejected at %s: %s", r.Stage, r.Kind)
	}
	return fmt.Sprintf("admission rejected at %s: %s: %v", r.Stage, r.Kind, r.Err)
}

func (r *Rejection) Unwrap() error { return r.Err }

func reject(kind Kind, stage Stage, err error) *Rejection {
	return &Rejection{Kind: kind, Stage: stage, Err: err}
}

// csrfKind maps a csrf.Guard error onto the taxonomy.
func csrfKind(err error) Kind {
	if errors.Is(err, csrf.ErrTokenMissing) {
		return KindCsrfTokenMissing
	}
	return KindCsrfTokenInvalid
}

// identityKind maps an identity verification error onto the taxonomy.
// Revoked and malformed tokens are reported as invalid.
func identityKind(err error) Kind {
	switch identity.KindOf(err) {
	case identity.KindMissing:
		return KindIdentityTokenMissing
	case identity.KindExpired:
		return KindIdentityTokenExpired
	case identity.KindUnavailable:
		return KindAuthorizationServiceUnavailable
	default:
		return KindIdentityTokenInvalid
	}
}

// roleKind maps a rolegate error onto the taxonomy.
func roleKind(err error) Kind {
	if errors.Is(err, rolegate.ErrNotPrivileged) {
		return KindNotPrivileged
	}
	return KindAuthorizationServiceUnavailable
}
