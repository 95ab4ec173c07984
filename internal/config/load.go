package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	envconfig "usic-gateway/pkg/config"
	"usic-gateway/pkg/ratelimit"
)

//go:embed default_policy.yaml
var defaultPolicy []byte

type policyFile struct {
	Categories []categoryEntry `yaml:"categories"`
	Routes     []Route         `yaml:"routes"`
	CSRF       struct {
		CookieName string        `yaml:"cookie_name"`
		HeaderName string        `yaml:"header_name"`
		TokenTTL   time.Duration `yaml:"token_ttl"`
		TokenBytes int           `yaml:"token_bytes"`
	} `yaml:"csrf"`
	Identity struct {
		Issuer   string        `yaml:"issuer"`
		Audience string        `yaml:"audience"`
		Leeway   time.Duration `yaml:"leeway"`
	} `yaml:"identity"`
	Roles struct {
		PrivilegedSubjects []string `yaml:"privileged_subjects"`
	} `yaml:"roles"`
}

type categoryEntry struct {
	Name        string        `yaml:"name"`
	Window      time.Duration `yaml:"window"`
	MaxRequests int           `yaml:"max_requests"`
}

// Load builds and validates the configuration. path names an optional
// policy file; when empty, GATEWAY_POLICY_FILE is consulted.
func Load(path string) (*Config, error) {
	var policy policyFile
	if err := decodePolicy(bytes.NewReader(defaultPolicy), &policy); err != nil {
		return nil, fmt.Errorf("failed to parse built-in policy: %w", err)
	}

	if path == "" {
		path = envconfig.GetEnvString("GATEWAY_POLICY_FILE", "")
	}
	if path != "" {
		// #nosec G304 -- path comes from the operator (flag or environment)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read policy file: %w", err)
		}
		if err := decodePolicy(bytes.NewReader(data), &policy); err != nil {
			return nil, fmt.Errorf("failed to parse policy file %s: %w", path, err)
		}
	}

	cfg := fromPolicy(&policy)
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodePolicy(r io.Reader, into *policyFile) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(into); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func fromPolicy(p *policyFile) *Config {
	categories := make([]ratelimit.Category, 0, len(p.Categories))
	for _, c := range p.Categories {
		categories = append(categories, ratelimit.Category{
			Name:        c.Name,
			Window:      c.Window,
			MaxRequests: c.MaxRequests,
		})
	}

	routes := make([]Route, len(p.Routes))
	copy(routes, p.Routes)
	for i := range routes {
		if routes[i].Key == "" {
			routes[i].Key = KeyClient
		}
	}

	return &Config{
		RateLimit: RateLimitConfig{Categories: categories},
		Routes:    routes,
		CSRF: CSRFConfig{
			CookieName: p.CSRF.CookieName,
			HeaderName: p.CSRF.HeaderName,
			TokenTTL:   p.CSRF.TokenTTL,
			TokenBytes: p.CSRF.TokenBytes,
		},
		Identity: IdentityConfig{
			Issuer:   p.Identity.Issuer,
			Audience: p.Identity.Audience,
			Leeway:   p.Identity.Leeway,
		},
		Roles: RoleConfig{
			PrivilegedSubjects: append([]string(nil), p.Roles.PrivilegedSubjects...),
		},
	}
}

// applyEnv layers environment variables over the policy.
func applyEnv(cfg *Config) {
	cfg.Server = ServerConfig{
		Addr:               envconfig.GetEnvString("GATEWAY_ADDR", ":8080"),
		UpstreamURL:        envconfig.GetEnvString("GATEWAY_UPSTREAM_URL", ""),
		Environment:        envconfig.GetEnvString("APP_ENV", "development"),
		ShutdownTimeout:    envconfig.GetEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		MaxBodyBytes:       envconfig.GetEnvInt64("MAX_BODY_BYTES", 1<<20),
		CORSAllowedOrigins: envconfig.GetEnvStringList("CORS_ALLOWED_ORIGINS", nil),
		Version:            envconfig.GetEnvString("VERSION", "dev"),
	}

	cfg.Logging = LoggingConfig{
		Level:  envconfig.GetEnvString("LOG_LEVEL", "info"),
		Format: envconfig.GetEnvString("LOG_FORMAT", "json"),
	}

	rl := &cfg.RateLimit
	rl.Backend = envconfig.GetEnvString("RATE_LIMIT_BACKEND", BackendMemory)
	rl.Shards = envconfig.GetEnvInt("RATE_LIMIT_SHARDS", 64)
	rl.SweepInterval = envconfig.GetEnvDuration("RATE_LIMIT_SWEEP_INTERVAL", 5*time.Minute)
	rl.IdleThreshold = envconfig.GetEnvDuration("RATE_LIMIT_IDLE_THRESHOLD", ratelimit.LongestWindow(rl.Categories))
	rl.TrustProxy = envconfig.GetEnvBool("RATE_LIMIT_TRUST_PROXY", false)
	rl.TrustedProxies = envconfig.GetEnvStringList("RATE_LIMIT_TRUSTED_PROXIES", nil)
	rl.RealIPHeader = envconfig.GetEnvString("RATE_LIMIT_REAL_IP_HEADER", "X-Real-IP")
	rl.Redis = RedisConfig{
		Addr:      envconfig.GetEnvString("REDIS_ADDR", ""),
		Password:  envconfig.GetEnvString("REDIS_PASSWORD", ""),
		DB:        envconfig.GetEnvInt("REDIS_DB", 0),
		KeyPrefix: envconfig.GetEnvString("REDIS_KEY_PREFIX", "ratelimit"),
	}

	cfg.CSRF.CookieName = envconfig.GetEnvString("CSRF_COOKIE_NAME", cfg.CSRF.CookieName)
	cfg.CSRF.HeaderName = envconfig.GetEnvString("CSRF_HEADER_NAME", cfg.CSRF.HeaderName)
	cfg.CSRF.TokenTTL = envconfig.GetEnvDuration("CSRF_TOKEN_TTL", cfg.CSRF.TokenTTL)
	cfg.CSRF.MaxOutstanding = envconfig.GetEnvInt("CSRF_MAX_OUTSTANDING", 100_000)
	cfg.CSRF.Secure = cfg.Server.IsProduction()

	cfg.Identity.Secret = envconfig.GetEnvString("JWT_SECRET", "")
	cfg.Identity.Issuer = envconfig.GetEnvString("JWT_ISSUER", cfg.Identity.Issuer)
	cfg.Identity.Audience = envconfig.GetEnvString("JWT_AUDIENCE", cfg.Identity.Audience)
	cfg.Identity.Timeout = envconfig.GetEnvDuration("IDENTITY_TIMEOUT", 3*time.Second)

	cfg.Roles.Backend = envconfig.GetEnvString("ROLE_BACKEND", RoleBackendStatic)
	cfg.Roles.DatabaseURL = envconfig.GetEnvString("DATABASE_URL", "")
	cfg.Roles.PrivilegedSubjects = envconfig.GetEnvStringList("PRIVILEGED_SUBJECTS", cfg.Roles.PrivilegedSubjects)
	cfg.Roles.LookupTimeout = envconfig.GetEnvDuration("ROLE_LOOKUP_TIMEOUT", 2*time.Second)
	cfg.Roles.MaxAttempts = envconfig.GetEnvInt("ROLE_LOOKUP_MAX_ATTEMPTS", 2)
	cfg.Roles.LookupRPS = envconfig.GetEnvFloat("ROLE_LOOKUP_RPS", 50)
	cfg.Roles.LookupSubjectRPS = envconfig.GetEnvFloat("ROLE_LOOKUP_SUBJECT_RPS", 2)
	cfg.Roles.LookupSubjectBurst = envconfig.GetEnvInt("ROLE_LOOKUP_SUBJECT_BURST", 10)
	cfg.Roles.Pool = PoolConfig{
		MaxOpenConns:    envconfig.GetEnvInt("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns:    envconfig.GetEnvInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: envconfig.GetEnvDuration("DB_CONN_MAX_LIFETIME", time.Hour),
		ConnMaxIdleTime: envconfig.GetEnvDuration("DB_CONN_MAX_IDLE_TIME", 15*time.Minute),
	}
}
