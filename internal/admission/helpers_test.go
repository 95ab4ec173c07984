package admission

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"usic-gateway/internal/identity"
	"usic-gateway/internal/rolegate"
	"usic-gateway/internal/security/csrf"
	"usic-gateway/pkg/ratelimit"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// stubVerifier maps bearer tokens to principals or errors.
type stubVerifier struct {
	calls atomic.Int32
}

func (v *stubVerifier) VerifyRequest(r *http.Request) (*identity.Principal, error) {
	v.calls.Add(1)
	raw, err := identity.ExtractBearer(r.Header.Get("Authorization"))
	if err != nil {
		return nil, err
	}
	switch raw {
	case "expired":
		return nil, identity.ErrExpired
	case "revoked":
		return nil, identity.ErrRevoked
	case "forged":
		return nil, identity.ErrInvalid
	case "down":
		return nil, errors.New("identity provider unreachable")
	}
	return &identity.Principal{SubjectID: raw, Email: raw + "@example.com"}, nil
}

// stubRoles treats "admin" as privileged and fails lookups for "flaky".
type stubRoles struct {
	calls atomic.Int32
}

func (s *stubRoles) IsPrivileged(ctx context.Context, p *identity.Principal) (bool, error) {
	s.calls.Add(1)
	switch p.SubjectID {
	case "admin":
		return true, nil
	case "flaky", "admin-flaky":
		return false, errors.Join(rolegate.ErrRegistryUnavailable, context.DeadlineExceeded)
	}
	return false, nil
}

type failingStore struct{}

func (failingStore) RecordAndEvaluate(ctx context.Context, key ratelimit.Key, category ratelimit.Category) (*ratelimit.Decision, error) {
	return nil, ratelimit.ErrStoreUnavailable
}

func (failingStore) Peek(ctx context.Context, key ratelimit.Key, category ratelimit.Category) (*ratelimit.Decision, error) {
	return nil, ratelimit.ErrStoreUnavailable
}

func (failingStore) Clear(ctx context.Context, key ratelimit.Key) error {
	return ratelimit.ErrStoreUnavailable
}

func (failingStore) Sweep(ctx context.Context, idle time.Duration) (int, error) {
	return 0, ratelimit.ErrStoreUnavailable
}

var testCategories = []ratelimit.Category{
	{Name: "public-read", Window: time.Minute, MaxRequests: 100},
	{Name: "posts-regular-user", Window: time.Hour, MaxRequests: 1},
	{Name: "posts-privileged-user", Window: time.Hour, MaxRequests: 50},
	{Name: "admin-operations", Window: time.Minute, MaxRequests: 30},
	{Name: "burst", Window: time.Minute, MaxRequests: 10},
}

var testRules = []ratelimit.Rule{
	{Name: "admin-rate-limit-clear", Methods: []string{http.MethodPost}, Pattern: PathRateLimitClear, Exempt: true},
	{Name: "admin", Pattern: "/api/admin/*", Category: "admin-operations"},
	{Name: "csrf-token", Methods: []string{http.MethodGet}, Pattern: PathCSRFToken, Category: "public-read"},
	{Name: "create-post", Methods: []string{http.MethodPost}, Pattern: "/api/forum/posts",
		Category: "posts-regular-user", PrivilegedCategory: "posts-privileged-user"},
	{Name: "burst", Methods: []string{http.MethodGet}, Pattern: "/api/burst", Category: "burst"},
	{Name: "read", Methods: []string{http.MethodGet, http.MethodHead}, Pattern: "/api/*", Category: "public-read"},
}

var testPolicies = map[string]Policy{
	"admin-rate-limit-clear": {Identity: true, Privileged: true},
	"admin":                  {SubjectKey: true, Identity: true, Privileged: true},
	"create-post":            {SubjectKey: true, Identity: true},
}

type fixture struct {
	clock    *fakeClock
	store    *ratelimit.MemoryStore
	limiter  *ratelimit.Limiter
	guard    *csrf.Guard
	verifier *stubVerifier
	roles    *stubRoles
	pipeline *Pipeline
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, nil)
}

func newFixtureWithStore(t *testing.T, store ratelimit.QuotaStore) *fixture {
	t.Helper()
	f := &fixture{
		clock:    &fakeClock{now: testEpoch},
		verifier: &stubVerifier{},
		roles:    &stubRoles{},
	}
	if store == nil {
		f.store = ratelimit.NewMemoryStore(ratelimit.MemoryStoreConfig{Shards: 8, Clock: f.clock})
		store = f.store
	}

	var err error
	f.limiter, err = ratelimit.NewLimiter(store, testCategories, testRules, ratelimit.NewNoOpMetrics())
	require.NoError(t, err)

	f.guard, err = csrf.NewGuard(csrf.Config{
		CookieName: "csrf-token",
		HeaderName: "X-CSRF-Token",
		TTL:        24 * time.Hour,
		TokenBytes: 32,
		Now:        f.clock.Now,
	})
	require.NoError(t, err)

	f.pipeline, err = New(Options{
		Limiter:  f.limiter,
		CSRF:     f.guard,
		Verifier: f.verifier,
		Roles:    f.roles,
		ClientID: remoteHost,
		Policies: testPolicies,
	})
	require.NoError(t, err)
	return f
}

// request builds a request. A non-empty bearer sets Authorization and
// csrfOK attaches a freshly issued matching token pair.
func (f *fixture) request(t *testing.T, method, path, bearer string, csrfOK bool) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if csrfOK {
		tok, err := f.guard.Issue()
		require.NoError(t, err)
		req.AddCookie(&http.Cookie{Name: "csrf-token", Value: tok.Value})
		req.Header.Set("X-CSRF-Token", tok.Value)
	}
	return req
}

func (f *fixture) serve(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	f.pipeline.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})).ServeHTTP(rr, req)
	return rr
}
