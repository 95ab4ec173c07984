package requestid

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextRoundTrip(t *testing.T) {
	assert.Equal(t, "", FromContext(context.Background()))
	assert.Equal(t, "lb-7f3a", FromContext(WithRequestID(context.Background(), "lb-7f3a")))
	assert.Equal(t, "", FromContext(context.WithValue(context.Background(), RequestIDKey, 42)),
		"a non-string value is ignored")
}

func TestMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{name: "reuses load balancer id", incoming: "lb-7f3a:01", keep: true},
		{name: "reuses uuid", incoming: "550e8400-e29b-41d4-a716-446655440000", keep: true},
		{name: "generates when absent", incoming: ""},
		{name: "replaces id with spaces", incoming: "abc def"},
		{name: "replaces log injection attempt", incoming: "abc\nlevel=ERROR msg=forged"},
		{name: "replaces oversized id", incoming: strings.Repeat("a", maxIDLength+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var fromCtx, fromHeader string
			h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fromCtx = FromContext(r.Context())
				fromHeader = r.Header.Get(RequestIDHeader)
			}))

			req := httptest.NewRequest(http.MethodPost, "/api/posts", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.NotEmpty(t, fromCtx)
			assert.Equal(t, fromCtx, fromHeader, "the upstream sees the same id")
			assert.Equal(t, fromCtx, rec.Header().Get(RequestIDHeader))
			if tt.keep {
				assert.Equal(t, tt.incoming, fromCtx)
				return
			}
			_, err := uuid.Parse(fromCtx)
			assert.NoError(t, err, "generated ids are uuids")
		})
	}
}

func TestMiddleware_UniquePerRequest(t *testing.T) {
	seen := make(map[string]bool)
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen[FromContext(r.Context())] = true
	}))
	for range 50 {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}
	assert.Len(t, seen, 50)
}
