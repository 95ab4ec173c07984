// Package config builds the gateway's single immutable configuration.
//
// Load merges three layers, lowest precedence first: the embedded default
// policy, an optional YAML policy file, and environment variables. The
// result is validated once and then passed to constructors; nothing reads
// the environment after startup.
package config

import (
	"time"

	"usic-gateway/pkg/ratelimit"
)

// Config holds every tunable of the gateway.
type Config struct {
	Server    ServerConfig
	Logging   LoggingConfig
	RateLimit RateLimitConfig
	Routes    []Route
	CSRF      CSRFConfig
	Identity  IdentityConfig
	Roles     RoleConfig
}

// ServerConfig configures the HTTP listener and upstream.
type ServerConfig struct {
	// Addr is the listen address. Default: ":8080"
	Addr string

	// UpstreamURL receives every admitted request.
	UpstreamURL string

	// Environment is APP_ENV. "production" enables Secure cookies.
	Environment string

	// ShutdownTimeout bounds graceful drain. Default: 15s
	ShutdownTimeout time.Duration

	// MaxBodyBytes caps request bodies. Default: 1 MiB
	MaxBodyBytes int64

	// CORSAllowedOrigins lists origins allowed to call the API. Empty
	// disables CORS headers entirely.
	CORSAllowedOrigins []string

	// Version is reported by /health. Default: "dev"
	Version string
}

// IsProduction reports whether the gateway runs in production.
func (s ServerConfig) IsProduction() bool {
	return s.Environment == "production"
}

// LoggingConfig configures slog.
type LoggingConfig struct {
	Level  string
	Format string
}

// Rate-limit store backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// RateLimitConfig configures the limiter and its store.
type RateLimitConfig struct {
	Categories []ratelimit.Category

	// Backend is BackendMemory or BackendRedis.
	Backend string

	// Shards is the number of memory store shards. Default: 64
	Shards int

	// SweepInterval is how often idle keys are swept. Default: 5m
	SweepInterval time.Duration

	// IdleThreshold is how long a key may stay untouched before the sweep
	// removes it. Must be at least the longest category window.
	IdleThreshold time.Duration

	// TrustProxy enables X-Forwarded-For / real-IP header parsing for
	// peers in TrustedProxies.
	TrustProxy     bool
	TrustedProxies []string
	RealIPHeader   string

	Redis RedisConfig
}

// RedisConfig configures the Redis quota store.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// Key scopes for rate-limit counters.
const (
	KeyClient  = "client"
	KeySubject = "subject"
)

// Route is one entry of the ordered route table.
type Route struct {
	Name               string   `yaml:"name"`
	Methods            []string `yaml:"methods"`
	Pattern            string   `yaml:"pattern"`
	Category           string   `yaml:"category"`
	PrivilegedCategory string   `yaml:"privileged_category"`

	// Key is KeyClient (network address, the default) or KeySubject
	// (verified principal).
	Key string `yaml:"key"`

	Identity   bool `yaml:"identity"`
	Privileged bool `yaml:"privileged"`

	// SkipCSRF disables the CSRF stage for mutating methods.
	SkipCSRF bool `yaml:"skip_csrf"`

	Exempt bool `yaml:"exempt"`
}

// Rule converts the route into its rate-limit rule.
func (r Route) Rule() ratelimit.Rule {
	return ratelimit.Rule{
		Name:               r.Name,
		Methods:            r.Methods,
		Pattern:            r.Pattern,
		Category:           r.Category,
		PrivilegedCategory: r.PrivilegedCategory,
		Exempt:             r.Exempt,
	}
}

// Rules returns the route table as rate-limit rules, in order.
func (c *Config) Rules() []ratelimit.Rule {
	rules := make([]ratelimit.Rule, 0, len(c.Routes))
	for _, r := range c.Routes {
		rules = append(rules, r.Rule())
	}
	return rules
}

// CSRFConfig configures token issuance.
type CSRFConfig struct {
	CookieName string
	HeaderName string
	TokenTTL   time.Duration
	TokenBytes int
	Secure     bool

	// MaxOutstanding caps remembered tokens per instance. Default: 100000
	MaxOutstanding int
}

// IdentityConfig configures bearer token verification.
type IdentityConfig struct {
	Secret   string
	Issuer   string
	Audience string
	Leeway   time.Duration
	Timeout  time.Duration
}

// Role registry backends.
const (
	RoleBackendStatic   = "static"
	RoleBackendPostgres = "postgres"
)

// RoleConfig configures the privileged-role registry and its guards.
type RoleConfig struct {
	Backend            string
	DatabaseURL        string
	PrivilegedSubjects []string
	LookupTimeout      time.Duration
	MaxAttempts        int
	LookupRPS          float64

	// LookupSubjectRPS and LookupSubjectBurst bound lookups per subject.
	LookupSubjectRPS   float64
	LookupSubjectBurst int

	Pool PoolConfig
}

// PoolConfig sizes the role database connection pool.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}
