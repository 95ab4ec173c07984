package admission

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"usic-gateway/internal/handler/http/respond"
	"usic-gateway/internal/identity"
	"usic-gateway/internal/security/csrf"
	"usic-gateway/pkg/ratelimit"
)

// Rate-limit response headers.
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// RateLimitBody is the 429 response shape.
type RateLimitBody struct {
	Success    bool   `json:"success"`
	Error      string `json:"error"`
	Message    string `json:"message"`
	Limit      int    `json:"limit"`
	Remaining  int    `json:"remaining"`
	ResetTime  string `json:"resetTime"`
	RetryAfter int64  `json:"retryAfter"`
}

// SetRateLimitHeaders writes the quota headers for d. The reset instant is
// ISO-8601 in UTC.
func SetRateLimitHeaders(h http.Header, d *ratelimit.Decision) {
	h.Set(HeaderLimit, strconv.Itoa(d.Limit))
	h.Set(HeaderRemaining, strconv.Itoa(d.Remaining))
	h.Set(HeaderReset, formatReset(d.ResetAt))
}

func formatReset(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// WriteRejection writes the JSON response for rej.
func WriteRejection(w http.ResponseWriter, rej *Rejection) {
	switch rej.Kind {
	case KindRateLimitExceeded:
		writeRateLimited(w, rej)
	case KindCsrfTokenMissing, KindCsrfTokenInvalid:
		csrf.WriteRejection(w, rej.Err)
	case KindIdentityTokenMissing:
		w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
		respond.Error(w, rej.Kind.Status(), rej.Kind.String(), rej.Kind.Message())
	case KindIdentityTokenInvalid, KindIdentityTokenExpired:
		w.Header().Set("WWW-Authenticate", `Bearer realm="api", error="invalid_token"`)
		respond.Error(w, rej.Kind.Status(), rej.Kind.String(), rej.Kind.Message())
	default:
		respond.Error(w, rej.Kind.Status(), rej.Kind.String(), rej.Kind.Message())
	}
}

func writeRateLimited(w http.ResponseWriter, rej *Rejection) {
	d := rej.Decision
	if d == nil {
		respond.Error(w, rej.Kind.Status(), rej.Kind.String(), rej.Kind.Message())
		return
	}

	retryAfter := d.RetryAfterSeconds()
	SetRateLimitHeaders(w.Header(), d)
	w.Header().Set(HeaderRetryAfter, strconv.FormatInt(retryAfter, 10))
	respond.JSON(w, http.StatusTooManyRequests, RateLimitBody{
		Success:    false,
		Error:      rej.Kind.Message(),
		Message:    fmt.Sprintf("Rate limit exceeded for %s. Try again in %d seconds.", d.Key.Category, retryAfter),
		Limit:      d.Limit,
		Remaining:  d.Remaining,
		ResetTime:  formatReset(d.ResetAt),
		RetryAfter: retryAfter,
	})
}

// Middleware runs the pipeline in front of next. Admitted requests carry
// the Result and, when verified, the Principal in their context.
func (p *Pipeline) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res := p.Admit(r)
		if res.Decision != nil {
			SetRateLimitHeaders(w.Header(), res.Decision)
		}
		if res.Rejection != nil {
			WriteRejection(w, res.Rejection)
			return
		}

		ctx := WithResult(r.Context(), res)
		if res.Principal != nil {
			ctx = identity.WithPrincipal(ctx, res.Principal)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
