package http

import (
	"net/http"

	"usic-gateway/internal/handler/http/respond"
)

// Input limits enforced before admission runs.
const (
	MaxAuthorizationHeaderBytes = 8 << 10
	MaxPathBytes                = 2 << 10
)

// InputValidation returns middleware that rejects oversized authorization
// headers and paths and caps request bodies at maxBodyBytes.
func InputValidation(maxBodyBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(r.Header.Get("Authorization")) > MaxAuthorizationHeaderBytes {
				respond.Error(w, http.StatusRequestHeaderFieldsTooLarge, "header_too_large", "authorization header too large")
				return
			}
			if len(r.URL.Path) > MaxPathBytes {
				respond.Error(w, http.StatusRequestURITooLong, "uri_too_long", "URI too long")
				return
			}
			if maxBodyBytes > 0 && r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
