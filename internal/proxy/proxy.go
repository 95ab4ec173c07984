// Package proxy forwards admitted requests to the upstream API.
package proxy

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"time"

	"usic-gateway/internal/admission"
	"usic-gateway/internal/handler/http/requestid"
	"usic-gateway/internal/handler/http/respond"
	"usic-gateway/internal/identity"
	"usic-gateway/internal/observability/logging"
)

// Headers the upstream may trust. Client-supplied copies are always removed.
const (
	HeaderSubject    = "X-Authenticated-Subject"
	HeaderEmail      = "X-Authenticated-Email"
	HeaderPrivileged = "X-Authenticated-Privileged"
)

var principalHeaders = []string{HeaderSubject, HeaderEmail, HeaderPrivileged}

// Config configures the upstream proxy.
type Config struct {
	Upstream *url.URL

	// Transport defaults to a clone of http.DefaultTransport with
	// ResponseHeaderTimeout applied.
	Transport http.RoundTripper

	// ResponseHeaderTimeout bounds the wait for upstream headers. Default: 30s
	ResponseHeaderTimeout time.Duration
}

// New returns a reverse proxy to cfg.Upstream.
func New(cfg Config) (*httputil.ReverseProxy, error) {
	if cfg.Upstream == nil || cfg.Upstream.Scheme == "" || cfg.Upstream.Host == "" {
		return nil, errors.New("proxy: absolute upstream URL is required")
	}
	if cfg.ResponseHeaderTimeout <= 0 {
		cfg.ResponseHeaderTimeout = 30 * time.Second
	}
	transport := cfg.Transport
	if transport == nil {
		t, ok := http.DefaultTransport.(*http.Transport)
		if !ok {
			return nil, fmt.Errorf("proxy: unexpected default transport %T", http.DefaultTransport)
		}
		t = t.Clone()
		t.ResponseHeaderTimeout = cfg.ResponseHeaderTimeout
		transport = t
	}

	upstream := cfg.Upstream
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(upstream)
			pr.SetXForwarded()
			forwardIdentity(pr)
		},
		Transport:    transport,
		ErrorHandler: errorHandler,
	}, nil
}

func forwardIdentity(pr *httputil.ProxyRequest) {
	for _, h := range principalHeaders {
		pr.Out.Header.Del(h)
	}

	ctx := pr.In.Context()
	if id := requestid.FromContext(ctx); id != "" {
		pr.Out.Header.Set(requestid.RequestIDHeader, id)
	}

	p, ok := identity.FromContext(ctx)
	if !ok {
		return
	}
	pr.Out.Header.Set(HeaderSubject, p.SubjectID)
	if p.Email != "" {
		pr.Out.Header.Set(HeaderEmail, p.Email)
	}
	privileged := false
	if res, ok := admission.ResultFromContext(ctx); ok {
		privileged = res.Privileged
	}
	pr.Out.Header.Set(HeaderPrivileged, strconv.FormatBool(privileged))
}

func errorHandler(w http.ResponseWriter, r *http.Request, err error) {
	logging.FromContext(r.Context()).Error("upstream request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", respond.SanitizeError(err)))

	status := http.StatusBadGateway
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		status = http.StatusGatewayTimeout
	}
	respond.Error(w, status, "upstream_unavailable", "Upstream service unavailable")
}
