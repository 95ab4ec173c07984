package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func corsHandler(called *bool) http.Handler {
	cfg := DefaultCORSConfig([]string{"https://app.example.com/"}, "X-CSRF-Token")
	return CORS(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	}))
}

func TestCORS_PreflightAllowedOrigin(t *testing.T) {
	var called bool
	req := httptest.NewRequest(http.MethodOptions, "/api/forum/posts", nil)
	req.Header.Set("Origin", "https://APP.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr := httptest.NewRecorder()

	corsHandler(&called).ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rr.Code)
	}
	if called {
		t.Error("preflight must not reach the next handler")
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://APP.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := rr.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(got, "X-CSRF-Token") {
		t.Errorf("Allow-Headers should include the CSRF header, got %q", got)
	}
	if got := rr.Header().Get("Access-Control-Max-Age"); got != "86400" {
		t.Errorf("Max-Age = %q", got)
	}
}

func TestCORS_ActualRequestExposesRateLimitHeaders(t *testing.T) {
	var called bool
	req := httptest.NewRequest(http.MethodGet, "/api/forum/threads", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rr := httptest.NewRecorder()

	corsHandler(&called).ServeHTTP(rr, req)

	if !called {
		t.Fatal("expected next handler to be called")
	}
	if got := rr.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("Allow-Credentials = %q", got)
	}
	if got := rr.Header().Get("Access-Control-Expose-Headers"); !strings.Contains(got, "X-RateLimit-Remaining") {
		t.Errorf("Expose-Headers = %q", got)
	}
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	var called bool
	req := httptest.NewRequest(http.MethodOptions, "/api/forum/posts", nil)
	req.Header.Set("Origin", "https://evil.example.net")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr := httptest.NewRecorder()

	corsHandler(&called).ServeHTTP(rr, req)

	if !called {
		t.Error("disallowed origins pass through to the next handler")
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no Allow-Origin, got %q", got)
	}
}

func TestCORS_SameOriginUntouched(t *testing.T) {
	var called bool
	rr := httptest.NewRecorder()

	corsHandler(&called).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/forum/threads", nil))

	if !called {
		t.Error("expected next handler to be called")
	}
	if got := rr.Header().Get("Vary"); got != "" {
		t.Errorf("expected no Vary header, got %q", got)
	}
}

func TestWhitelistValidator(t *testing.T) {
	v := NewWhitelistValidator([]string{"http://localhost:3000", " https://Example.com/ ", ""})

	testCases := []struct {
		origin   string
		expected bool
	}{
		{"http://localhost:3000", true},
		{"https://example.com", true},
		{"https://example.com/", true},
		{"http://localhost:3001", false},
		{"", false},
	}
	for _, tc := range testCases {
		if got := v.IsAllowed(tc.origin); got != tc.expected {
			t.Errorf("IsAllowed(%q) = %v, expected %v", tc.origin, got, tc.expected)
		}
	}
}
