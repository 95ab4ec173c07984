package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

// OriginValidator decides whether a cross-origin caller is allowed.
type OriginValidator interface {
	IsAllowed(origin string) bool
}

// CORSConfig holds the configuration for CORS middleware.
type CORSConfig struct {
	Validator      OriginValidator
	AllowedMethods []string

	// AllowedHeaders must include the CSRF header, or browsers will refuse
	// to send mutating requests.
	AllowedHeaders []string

	// ExposedHeaders are readable by client scripts.
	ExposedHeaders []string

	// MaxAge is how long preflight results may be cached, in seconds.
	MaxAge int
}

// DefaultCORSConfig allows origins and the gateway's request headers,
// including csrfHeader, and exposes the rate-limit headers.
func DefaultCORSConfig(origins []string, csrfHeader string) CORSConfig {
	return CORSConfig{
		Validator:      NewWhitelistValidator(origins),
		AllowedMethods: []string{"GET", "HEAD", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-ID", csrfHeader},
		ExposedHeaders: []string{
			"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset",
			"Retry-After", "X-Request-ID", "X-Trace-Id",
		},
		MaxAge: 86400,
	}
}

// CORS returns an HTTP middleware that handles CORS for cross-origin requests.
//
// Behavior:
//   - Requests without an Origin header pass through untouched.
//   - Disallowed origins pass through without CORS headers; the browser
//     blocks the response.
//   - Allowed preflights are answered with 204 here and never reach next,
//     so they are not charged against any rate limit.
//   - Allowed actual requests get the origin echoed with credentials.
func CORS(config CORSConfig) func(http.Handler) http.Handler {
	methods := strings.Join(config.AllowedMethods, ", ")
	headers := strings.Join(config.AllowedHeaders, ", ")
	exposed := strings.Join(config.ExposedHeaders, ", ")
	maxAge := strconv.Itoa(config.MaxAge)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Add("Vary", "Origin")
			if config.Validator == nil || !config.Validator.IsAllowed(origin) {
				slog.Warn("CORS: origin not allowed",
					slog.String("origin", origin),
					slog.String("path", r.URL.Path),
					slog.String("method", r.Method))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.Header().Set("Access-Control-Allow-Methods", methods)
				w.Header().Set("Access-Control-Allow-Headers", headers)
				w.Header().Set("Access-Control-Max-Age", maxAge)
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if exposed != "" {
				w.Header().Set("Access-Control-Expose-Headers", exposed)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WhitelistValidator implements exact-match origin validation. Origins
// are compared case-insensitively without trailing slashes.
type WhitelistValidator struct {
	allowed map[string]struct{}
}

// NewWhitelistValidator creates a new WhitelistValidator with the given list of allowed origins.
func NewWhitelistValidator(origins []string) *WhitelistValidator {
	allowed := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		if origin = normalizeOrigin(origin); origin != "" {
			allowed[origin] = struct{}{}
		}
	}
	return &WhitelistValidator{allowed: allowed}
}

// IsAllowed checks if the given origin is in the whitelist.
func (v *WhitelistValidator) IsAllowed(origin string) bool {
	origin = normalizeOrigin(origin)
	if origin == "" {
		return false
	}
	_, ok := v.allowed[origin]
	return ok
}

func normalizeOrigin(origin string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(origin)), "/")
}
