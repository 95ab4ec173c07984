// Package http holds the gateway's own HTTP surface: health probes, request
// logging, panic recovery, input limits and request metrics. Admission and
// proxying live in their own packages.
package http

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"usic-gateway/internal/handler/http/respond"
	"usic-gateway/pkg/ratelimit"
)

// Check states.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthResponse represents the JSON response for health check endpoints.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Checks    map[string]CheckStatus `json:"checks"`
	Version   string                 `json:"version"`
}

// CheckStatus represents the status of a single health check.
type CheckStatus struct {
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Pinger is a dependency that can report its reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// TokenLedger reports outstanding CSRF tokens.
type TokenLedger interface {
	Outstanding() int
}

// HealthHandler reports the state of every admission dependency.
// QuotaStore is required; the rest are optional.
type HealthHandler struct {
	QuotaStore ratelimit.QuotaStore
	Roles      Pinger
	DB         *sql.DB
	CSRF       TokenLedger
	Version    string
}

// ServeHTTP returns 200 when every check passes or is only degraded, and
// 503 otherwise.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]CheckStatus{
		"quota_store": h.checkQuotaStore(ctx),
	}
	if h.Roles != nil {
		checks["role_registry"] = checkPing(ctx, h.Roles)
	}
	if h.DB != nil {
		checks["database"] = h.checkDatabase(ctx)
	}
	if h.CSRF != nil {
		checks["csrf"] = CheckStatus{
			Status:  StatusHealthy,
			Details: map[string]any{"outstanding_tokens": h.CSRF.Outstanding()},
		}
	}

	status, code := StatusHealthy, http.StatusOK
	for _, c := range checks {
		if c.Status == StatusUnhealthy {
			status, code = StatusUnhealthy, http.StatusServiceUnavailable
			break
		}
	}

	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	respond.JSON(w, code, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
		Version:   h.Version,
	})
}

func (h *HealthHandler) checkQuotaStore(ctx context.Context) CheckStatus {
	if h.QuotaStore == nil {
		return CheckStatus{Status: StatusUnhealthy, Message: "not configured"}
	}
	if p, ok := h.QuotaStore.(ratelimit.Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return CheckStatus{Status: StatusUnhealthy, Message: respond.SanitizeError(err)}
		}
	}

	details := map[string]any{}
	if kc, ok := h.QuotaStore.(ratelimit.KeyCounter); ok {
		if n, err := kc.KeyCount(ctx); err == nil {
			details["active_keys"] = n
		}
	}
	return CheckStatus{Status: StatusHealthy, Details: details}
}

func checkPing(ctx context.Context, p Pinger) CheckStatus {
	if err := p.Ping(ctx); err != nil {
		return CheckStatus{Status: StatusUnhealthy, Message: respond.SanitizeError(err)}
	}
	return CheckStatus{Status: StatusHealthy}
}

// checkDatabase pings the role database and reports pool statistics. A pool
// above 80% utilization is degraded, not unhealthy.
func (h *HealthHandler) checkDatabase(ctx context.Context) CheckStatus {
	if err := h.DB.PingContext(ctx); err != nil {
		return CheckStatus{Status: StatusUnhealthy, Message: respond.SanitizeError(err)}
	}

	stats := h.DB.Stats()
	details := map[string]any{
		"max_open_connections": stats.MaxOpenConnections,
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"wait_count":           stats.WaitCount,
		"wait_duration_ms":     stats.WaitDuration.Milliseconds(),
	}
	if stats.MaxOpenConnections == 0 {
		return CheckStatus{Status: StatusDegraded, Message: "connection pool max connections not configured", Details: details}
	}

	utilization := float64(stats.InUse) / float64(stats.MaxOpenConnections) * 100
	details["utilization_percent"] = utilization
	if utilization >= 80.0 {
		return CheckStatus{Status: StatusDegraded, Message: "connection pool utilization above 80%", Details: details}
	}
	return CheckStatus{Status: StatusHealthy, Details: details}
}

// ReadyHandler answers readiness probes. The gateway is ready once every
// pinger answers; a gateway that cannot reach its quota store would only
// fail closed.
type ReadyHandler struct {
	Checks map[string]Pinger
}

func (h *ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for name, p := range h.Checks {
		if err := p.Ping(ctx); err != nil {
			slog.WarnContext(ctx, "readiness check failed",
				slog.String("check", name),
				slog.String("error", respond.SanitizeError(err)))
			writeText(w, http.StatusServiceUnavailable, name+" not ready")
			return
		}
	}
	writeText(w, http.StatusOK, "ready")
}

// LiveHandler answers liveness probes and never touches dependencies.
type LiveHandler struct{}

func (h *LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, "alive")
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(body)); err != nil {
		slog.Debug("failed to write probe response", slog.Any("error", err))
	}
}
