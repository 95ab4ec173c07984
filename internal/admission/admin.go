package admission

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"usic-gateway/internal/handler/http/respond"
	"usic-gateway/internal/identity"
	"usic-gateway/internal/observability/logging"
	"usic-gateway/pkg/ratelimit"
)

// Admin endpoint paths. Their route rules must grant identity and
// privileged stages; the clear route must also be exempt from rate limits.
const (
	PathRateLimitClear  = "/api/admin/rate-limit/clear"
	PathRateLimitStatus = "/api/admin/rate-limit/status"
	PathCSRFToken       = "/api/csrf-token"
)

type clearRequest struct {
	ClientIdentifier string `json:"clientIdentifier"`
	Category         string `json:"category"`
}

// ClearHandler removes one rate-limit counter.
type ClearHandler struct{ Limiter *ratelimit.Limiter }

func (h ClearHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req clearRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid_request", "request body must be JSON")
		return
	}
	req.ClientIdentifier = strings.TrimSpace(req.ClientIdentifier)
	if req.ClientIdentifier == "" || req.Category == "" {
		respond.Error(w, http.StatusBadRequest, "invalid_request", "clientIdentifier and category are required")
		return
	}

	err := h.Limiter.Clear(r.Context(), req.ClientIdentifier, req.Category)
	switch {
	case errors.Is(err, ratelimit.ErrUnknownCategory):
		respond.Error(w, http.StatusBadRequest, "unknown_category", "unknown category")
		return
	case err != nil:
		respond.SafeError(w, http.StatusInternalServerError, "internal_error", "", err)
		return
	}

	operator := ""
	if p, ok := identity.FromContext(r.Context()); ok {
		operator = p.SubjectID
	}
	logging.FromContext(r.Context()).Info("rate limit cleared by operator",
		slog.String("subject", operator),
		slog.String("client_id", req.ClientIdentifier),
		slog.String("category", req.Category))

	respond.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Rate limit cleared",
	})
}

// StatusBody is the response of StatusHandler.
type StatusBody struct {
	Success          bool   `json:"success"`
	ClientIdentifier string `json:"clientIdentifier"`
	Category         string `json:"category"`
	Admitted         bool   `json:"admitted"`
	Limit            int    `json:"limit"`
	Remaining        int    `json:"remaining"`
	ResetTime        string `json:"resetTime"`
	RetryAfter       int64  `json:"retryAfter"`
}

// StatusHandler reports a counter without consuming quota.
type StatusHandler struct{ Limiter *ratelimit.Limiter }

func (h StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	client := strings.TrimSpace(q.Get("clientIdentifier"))
	name := q.Get("category")
	if client == "" || name == "" {
		respond.Error(w, http.StatusBadRequest, "invalid_request", "clientIdentifier and category are required")
		return
	}

	category, err := h.Limiter.Category(name)
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "unknown_category", "unknown category")
		return
	}

	d, err := h.Limiter.StatusOnly(r.Context(), client, category)
	if err != nil {
		respond.SafeError(w, http.StatusInternalServerError, "internal_error", "", err)
		return
	}

	// Admitted tells whether one more request would pass right now.
	respond.JSON(w, http.StatusOK, StatusBody{
		Success:          true,
		ClientIdentifier: client,
		Category:         name,
		Admitted:         d.Admitted,
		Limit:            d.Limit,
		Remaining:        d.Remaining,
		ResetTime:        formatReset(d.ResetAt),
		RetryAfter:       d.RetryAfterSeconds(),
	})
}

// CSRFIssuer serves fresh CSRF tokens.
type CSRFIssuer interface {
	IssueHandler() http.HandlerFunc
}

// Register mounts the gateway's own endpoints on mux. They sit behind the
// pipeline like every other route.
func Register(mux *http.ServeMux, limiter *ratelimit.Limiter, issuer CSRFIssuer) {
	mux.Handle("GET "+PathCSRFToken, issuer.IssueHandler())
	mux.Handle("POST "+PathRateLimitClear, ClearHandler{Limiter: limiter})
	mux.Handle("GET "+PathRateLimitStatus, StatusHandler{Limiter: limiter})
}
