package main

import (
	"log/slog"
	"net/http"

	"usic-gateway/internal/admission"
	"usic-gateway/internal/config"
	hhttp "usic-gateway/internal/handler/http"
	"usic-gateway/internal/handler/http/middleware"
	"usic-gateway/internal/handler/http/requestid"
	"usic-gateway/internal/observability/tracing"
	"usic-gateway/internal/security/csrf"
	"usic-gateway/pkg/ratelimit"
)

type routerDeps struct {
	logger   *slog.Logger
	cfg      *config.Config
	pipeline *admission.Pipeline
	limiter  *ratelimit.Limiter
	guard    *csrf.Guard
	upstream http.Handler
	health   http.Handler
	ready    http.Handler
	metrics  http.Handler
}

// newRouter mounts the probes and /metrics outside the admission pipeline
// and everything else behind it.
func newRouter(d routerDeps) http.Handler {
	app := http.NewServeMux()
	admission.Register(app, d.limiter, d.guard)
	app.Handle("/", d.upstream)

	governed := hhttp.Chain(app,
		requestid.Middleware,
		tracing.Middleware,
		hhttp.Logging(d.logger),
		hhttp.Recover(d.logger),
		hhttp.MetricsMiddleware,
		hhttp.InputValidation(d.cfg.Server.MaxBodyBytes),
		middleware.CORS(middleware.DefaultCORSConfig(d.cfg.Server.CORSAllowedOrigins, d.cfg.CSRF.HeaderName)),
		d.pipeline.Middleware,
	)

	root := http.NewServeMux()
	root.Handle("GET /health", d.health)
	root.Handle("GET /ready", d.ready)
	root.Handle("GET /live", &hhttp.LiveHandler{})
	root.Handle("GET /metrics", d.metrics)
	root.Handle("/", governed)
	return root
}
