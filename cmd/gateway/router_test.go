package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"usic-gateway/internal/config"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type gateway struct {
	t       *testing.T
	handler http.Handler

	mu   sync.Mutex
	seen *http.Request
}

// upstreamRequest returns the last request the upstream received since the
// previous call to do.
func (g *gateway) upstreamRequest() *http.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seen
}

func newGateway(t *testing.T) *gateway {
	t.Helper()
	g := &gateway{t: t}

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		g.seen = r.Clone(context.Background())
		g.mu.Unlock()
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"upstream":true}`))
	}))
	t.Cleanup(upstream.Close)

	t.Setenv("GATEWAY_UPSTREAM_URL", upstream.URL)
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("PRIVILEGED_SUBJECTS", "admin")
	t.Setenv("RATE_LIMIT_BACKEND", "memory")
	t.Setenv("ROLE_BACKEND", "static")
	t.Setenv("GATEWAY_POLICY_FILE", "")
	t.Setenv("VERSION", "test")

	cfg, err := config.Load("")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	comps, err := build(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { comps.Close(logger) })

	g.handler = comps.handler
	return g
}

func (g *gateway) do(req *http.Request) *httptest.ResponseRecorder {
	g.t.Helper()
	g.mu.Lock()
	g.seen = nil
	g.mu.Unlock()
	rec := httptest.NewRecorder()
	g.handler.ServeHTTP(rec, req)
	return rec
}

func bearer(t *testing.T, subject string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Unix(),
	})
	signed, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + signed
}

// csrfPair fetches a token and returns a function that decorates requests
// with the matching cookie and header.
func (g *gateway) csrfPair() func(*http.Request) {
	g.t.Helper()
	rec := g.do(httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil))
	require.Equal(g.t, http.StatusOK, rec.Code)

	var body struct {
		CSRFToken string `json:"csrfToken"`
	}
	require.NoError(g.t, json.NewDecoder(rec.Body).Decode(&body))
	cookies := rec.Result().Cookies()
	require.NotEmpty(g.t, cookies)

	return func(r *http.Request) {
		r.AddCookie(cookies[0])
		r.Header.Set("X-CSRF-Token", body.CSRFToken)
	}
}

func TestRouter_ProbesBypassPipeline(t *testing.T) {
	g := newGateway(t)

	for _, path := range []string{"/live", "/ready", "/health", "/metrics"} {
		rec := g.do(httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"), path)
	}
}

func TestRouter_PublicReadIsProxied(t *testing.T) {
	g := newGateway(t)

	rec := g.do(httptest.NewRequest(http.MethodGet, "/api/posts", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "100", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "99", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	up := g.upstreamRequest()
	require.NotNil(t, up)
	assert.Equal(t, "/api/posts", up.URL.Path)
	assert.Empty(t, up.Header.Get("X-Authenticated-Subject"))
}

func TestRouter_UnclassifiedRoute(t *testing.T) {
	g := newGateway(t)

	rec := g.do(httptest.NewRequest(http.MethodGet, "/not-governed", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "configuration_error")
	assert.Nil(t, g.upstreamRequest())
}

func TestRouter_RegularUserPostWindowAndAdminClear(t *testing.T) {
	g := newGateway(t)
	withCSRF := g.csrfPair()
	user := bearer(t, "user-1")

	post := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/forum/posts", strings.NewReader(`{"title":"hi"}`))
		req.Header.Set("Authorization", user)
		withCSRF(req)
		return g.do(req)
	}

	first := post()
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	up := g.upstreamRequest()
	require.NotNil(t, up)
	assert.Equal(t, "user-1", up.Header.Get("X-Authenticated-Subject"))
	assert.Equal(t, "false", up.Header.Get("X-Authenticated-Privileged"))

	second := post()
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "3600", second.Header().Get("Retry-After"))
	assert.Nil(t, g.upstreamRequest())

	clearReq := httptest.NewRequest(http.MethodPost, "/api/admin/rate-limit/clear",
		strings.NewReader(`{"clientIdentifier":"subject:user-1","category":"posts-regular-user"}`))
	clearReq.Header.Set("Authorization", bearer(t, "admin"))
	clearReq.Header.Set("Content-Type", "application/json")
	withCSRF(clearReq)
	rec := g.do(clearReq)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, http.StatusOK, post().Code)
}

func TestRouter_TrailingSlashSharesPostQuota(t *testing.T) {
	g := newGateway(t)
	withCSRF := g.csrfPair()
	user := bearer(t, "user-1")

	post := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"title":"hi"}`))
		req.Header.Set("Authorization", user)
		withCSRF(req)
		return g.do(req)
	}

	first := post("/api/forum/posts")
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Limit"))

	for range 3 {
		rec := post("/api/forum/posts/")
		assert.Equal(t, http.StatusTooManyRequests, rec.Code, rec.Body.String())
		assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))
		assert.Nil(t, g.upstreamRequest())
	}
}

func TestRouter_AdminRequiresPrivilege(t *testing.T) {
	g := newGateway(t)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/rate-limit/status?clientIdentifier=1.2.3.4&category=public-read", nil)
	req.Header.Set("Authorization", bearer(t, "user-1"))
	rec := g.do(req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/admin/rate-limit/status?clientIdentifier=1.2.3.4&category=public-read", nil)
	req.Header.Set("Authorization", bearer(t, "admin"))
	rec = g.do(req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"clientIdentifier":"1.2.3.4"`)
}

func TestRouter_MutationWithoutCSRF(t *testing.T) {
	g := newGateway(t)

	req := httptest.NewRequest(http.MethodPost, "/api/forum/posts", nil)
	req.Header.Set("Authorization", bearer(t, "user-1"))
	rec := g.do(req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "CSRF token missing")
}

func TestRouter_CORSPreflight(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example")
	g := newGateway(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/forum/posts", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := g.do(req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Nil(t, g.upstreamRequest())
}

func TestRouter_PlainOptionsIsNotAConfigurationError(t *testing.T) {
	g := newGateway(t)

	rec := g.do(httptest.NewRequest(http.MethodOptions, "/api/forum/posts", nil))

	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "configuration_error")
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"), "OPTIONS is not rate limited")
	up := g.upstreamRequest()
	require.NotNil(t, up)
	assert.Equal(t, http.MethodOptions, up.Method)
}
