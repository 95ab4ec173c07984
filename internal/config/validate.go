package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	envconfig "usic-gateway/pkg/config"
	"usic-gateway/pkg/ratelimit"
)

// MinSecretLength is the minimum HS256 secret length in bytes.
const MinSecretLength = 32

// ValidationError lists every problem found in a configuration.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) addf(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

// Validate checks the configuration and returns a *ValidationError
// describing every inconsistency, or nil.
func (c *Config) Validate() error {
	verr := &ValidationError{}

	c.validateServer(verr)
	categories := c.validateCategories(verr)
	c.validateRoutes(verr, categories)
	c.validateRateLimit(verr)
	c.validateCSRF(verr)
	c.validateIdentity(verr)
	c.validateRoles(verr)

	if len(verr.Problems) > 0 {
		return verr
	}
	return nil
}

func (c *Config) validateServer(verr *ValidationError) {
	if c.Server.Addr == "" {
		verr.addf("GATEWAY_ADDR must not be empty")
	}
	if c.Server.UpstreamURL == "" {
		verr.addf("GATEWAY_UPSTREAM_URL is required")
	} else if u, err := url.Parse(c.Server.UpstreamURL); err != nil || u.Scheme == "" || u.Host == "" {
		verr.addf("GATEWAY_UPSTREAM_URL %q is not an absolute URL", c.Server.UpstreamURL)
	}
	if err := envconfig.ValidatePositiveDuration(c.Server.ShutdownTimeout); err != nil {
		verr.addf("SHUTDOWN_TIMEOUT: %v", err)
	}
	if c.Server.MaxBodyBytes <= 0 {
		verr.addf("MAX_BODY_BYTES must be positive, got %d", c.Server.MaxBodyBytes)
	}
}

func (c *Config) validateCategories(verr *ValidationError) map[string]bool {
	known := make(map[string]bool, len(c.RateLimit.Categories))
	if len(c.RateLimit.Categories) == 0 {
		verr.addf("at least one rate limit category is required")
	}
	for _, cat := range c.RateLimit.Categories {
		if err := cat.Validate(); err != nil {
			verr.addf("%v", err)
			continue
		}
		if known[cat.Name] {
			verr.addf("duplicate category %q", cat.Name)
		}
		known[cat.Name] = true
	}
	return known
}

func (c *Config) validateRoutes(verr *ValidationError, categories map[string]bool) {
	if len(c.Routes) == 0 {
		verr.addf("at least one route is required")
	}

	names := make(map[string]bool, len(c.Routes))
	for i, r := range c.Routes {
		label := r.Name
		if label == "" {
			verr.addf("route #%d has no name", i)
			label = fmt.Sprintf("#%d", i)
		} else if names[r.Name] {
			verr.addf("duplicate route %q", r.Name)
		}
		names[r.Name] = true

		if strings.TrimSpace(r.Pattern) == "" {
			verr.addf("route %s: pattern is required", label)
		} else if strings.HasPrefix(r.Pattern, "^") {
			if _, err := regexp.Compile(r.Pattern); err != nil {
				verr.addf("route %s: invalid pattern: %v", label, err)
			}
		}

		if !r.Exempt {
			switch {
			case r.Category == "":
				verr.addf("route %s: category is required unless exempt", label)
			case !categories[r.Category]:
				verr.addf("route %s: unknown category %q", label, r.Category)
			}
		}
		if r.PrivilegedCategory != "" {
			if !categories[r.PrivilegedCategory] {
				verr.addf("route %s: unknown privileged category %q", label, r.PrivilegedCategory)
			}
			if !r.Identity {
				verr.addf("route %s: privileged_category requires identity", label)
			}
		}

		switch r.Key {
		case KeyClient:
		case KeySubject:
			if !r.Identity {
				verr.addf("route %s: subject key requires identity", label)
			}
		default:
			verr.addf("route %s: key must be %q or %q, got %q", label, KeyClient, KeySubject, r.Key)
		}

		if r.Privileged && !r.Identity {
			verr.addf("route %s: privileged requires identity", label)
		}
	}
}

func (c *Config) validateRateLimit(verr *ValidationError) {
	rl := c.RateLimit

	switch rl.Backend {
	case BackendMemory:
		if rl.Shards <= 0 {
			verr.addf("RATE_LIMIT_SHARDS must be positive, got %d", rl.Shards)
		}
	case BackendRedis:
		if rl.Redis.Addr == "" {
			verr.addf("REDIS_ADDR is required when RATE_LIMIT_BACKEND=redis")
		}
	default:
		verr.addf("RATE_LIMIT_BACKEND must be %q or %q, got %q", BackendMemory, BackendRedis, rl.Backend)
	}

	if err := envconfig.ValidateDurationRange(rl.SweepInterval, time.Second, 24*time.Hour); err != nil {
		verr.addf("RATE_LIMIT_SWEEP_INTERVAL: %v", err)
	}
	if len(rl.Categories) > 0 {
		if err := ratelimit.ValidateIdleThreshold(rl.IdleThreshold, rl.Categories); err != nil {
			verr.addf("RATE_LIMIT_IDLE_THRESHOLD: %v", err)
		}
	}
	if rl.TrustProxy && len(rl.TrustedProxies) == 0 {
		verr.addf("RATE_LIMIT_TRUSTED_PROXIES is required when RATE_LIMIT_TRUST_PROXY is enabled")
	}
}

func (c *Config) validateCSRF(verr *ValidationError) {
	if c.CSRF.CookieName == "" {
		verr.addf("csrf cookie name must not be empty")
	}
	if c.CSRF.HeaderName == "" {
		verr.addf("csrf header name must not be empty")
	}
	if err := envconfig.ValidateDurationRange(c.CSRF.TokenTTL, time.Minute, 7*24*time.Hour); err != nil {
		verr.addf("CSRF_TOKEN_TTL: %v", err)
	}
	if c.CSRF.TokenBytes < 16 {
		verr.addf("csrf token_bytes must be at least 16, got %d", c.CSRF.TokenBytes)
	}
	if c.CSRF.MaxOutstanding < 1 {
		verr.addf("CSRF_MAX_OUTSTANDING must be at least 1, got %d", c.CSRF.MaxOutstanding)
	}
}

func (c *Config) validateIdentity(verr *ValidationError) {
	if len(c.Identity.Secret) < MinSecretLength {
		verr.addf("JWT_SECRET must be at least %d bytes", MinSecretLength)
	}
	if c.Identity.Leeway < 0 {
		verr.addf("identity leeway must not be negative, got %v", c.Identity.Leeway)
	}
	if err := envconfig.ValidatePositiveDuration(c.Identity.Timeout); err != nil {
		verr.addf("IDENTITY_TIMEOUT: %v", err)
	}
}

func (c *Config) validateRoles(verr *ValidationError) {
	switch c.Roles.Backend {
	case RoleBackendStatic:
	case RoleBackendPostgres:
		if c.Roles.DatabaseURL == "" {
			verr.addf("DATABASE_URL is required when ROLE_BACKEND=postgres")
		}
	default:
		verr.addf("ROLE_BACKEND must be %q or %q, got %q", RoleBackendStatic, RoleBackendPostgres, c.Roles.Backend)
	}
	if err := envconfig.ValidatePositiveDuration(c.Roles.LookupTimeout); err != nil {
		verr.addf("ROLE_LOOKUP_TIMEOUT: %v", err)
	}
	if c.Roles.MaxAttempts < 1 {
		verr.addf("ROLE_LOOKUP_MAX_ATTEMPTS must be at least 1, got %d", c.Roles.MaxAttempts)
	}
	if c.Roles.LookupRPS <= 0 {
		verr.addf("ROLE_LOOKUP_RPS must be positive, got %v", c.Roles.LookupRPS)
	}
	if c.Roles.LookupSubjectRPS <= 0 {
		verr.addf("ROLE_LOOKUP_SUBJECT_RPS must be positive, got %v", c.Roles.LookupSubjectRPS)
	} else if c.Roles.LookupSubjectRPS > c.Roles.LookupRPS {
		verr.addf("ROLE_LOOKUP_SUBJECT_RPS (%v) must not exceed ROLE_LOOKUP_RPS (%v)", c.Roles.LookupSubjectRPS, c.Roles.LookupRPS)
	}
	if c.Roles.LookupSubjectBurst < 1 {
		verr.addf("ROLE_LOOKUP_SUBJECT_BURST must be at least 1, got %d", c.Roles.LookupSubjectBurst)
	}

	pool := c.Roles.Pool
	if pool.MaxOpenConns < 1 {
		verr.addf("DB_MAX_OPEN_CONNS must be at least 1, got %d", pool.MaxOpenConns)
	}
	if pool.MaxIdleConns < 0 || pool.MaxIdleConns > pool.MaxOpenConns {
		verr.addf("DB_MAX_IDLE_CONNS must be between 0 and DB_MAX_OPEN_CONNS, got %d", pool.MaxIdleConns)
	}
	if err := envconfig.ValidatePositiveDuration(pool.ConnMaxLifetime); err != nil {
		verr.addf("DB_CONN_MAX_LIFETIME: %v", err)
	}
	if err := envconfig.ValidatePositiveDuration(pool.ConnMaxIdleTime); err != nil {
		verr.addf("DB_CONN_MAX_IDLE_TIME: %v", err)
	}
}
