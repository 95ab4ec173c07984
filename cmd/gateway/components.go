package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"usic-gateway/internal/admission"
	"usic-gateway/internal/config"
	hhttp "usic-gateway/internal/handler/http"
	"usic-gateway/internal/handler/http/middleware"
	"usic-gateway/internal/identity"
	"usic-gateway/internal/infra/db"
	"usic-gateway/internal/maintenance"
	"usic-gateway/internal/proxy"
	"usic-gateway/internal/resilience/circuitbreaker"
	"usic-gateway/internal/resilience/retry"
	"usic-gateway/internal/rolegate"
	"usic-gateway/internal/security/csrf"
	"usic-gateway/pkg/ratelimit"
)

// components holds everything run needs after wiring.
type components struct {
	handler   http.Handler
	scheduler *maintenance.Scheduler
	closers   []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

// Close releases external connections in reverse order of creation.
func (c *components) Close(logger *slog.Logger) {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].close(); err != nil {
			logger.Error("failed to close "+c.closers[i].name, slog.Any("error", err))
		}
	}
}

// build wires the gateway from cfg. On error every resource opened so far
// is closed.
func build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *components, err error) {
	comps := &components{}
	defer func() {
		if err != nil {
			comps.Close(logger)
		}
	}()

	rlMetrics := ratelimit.NewPrometheusMetrics()
	store, err := buildQuotaStore(ctx, cfg, rlMetrics, comps)
	if err != nil {
		return nil, err
	}

	limiter, err := ratelimit.NewLimiter(store, cfg.RateLimit.Categories, cfg.Rules(), rlMetrics)
	if err != nil {
		return nil, fmt.Errorf("build rate limiter: %w", err)
	}

	guard, err := csrf.NewGuard(csrf.Config{
		CookieName:     cfg.CSRF.CookieName,
		HeaderName:     cfg.CSRF.HeaderName,
		TTL:            cfg.CSRF.TokenTTL,
		TokenBytes:     cfg.CSRF.TokenBytes,
		Secure:         cfg.CSRF.Secure,
		MaxOutstanding: cfg.CSRF.MaxOutstanding,
	})
	if err != nil {
		return nil, fmt.Errorf("build csrf guard: %w", err)
	}

	jwtVerifier, err := identity.NewJWTVerifier(identity.JWTConfig{
		Secret:   []byte(cfg.Identity.Secret),
		Issuer:   cfg.Identity.Issuer,
		Audience: cfg.Identity.Audience,
		Leeway:   cfg.Identity.Leeway,
	})
	if err != nil {
		return nil, fmt.Errorf("build identity verifier: %w", err)
	}
	verifier := identity.NewVerifier(jwtVerifier, identity.WithTimeout(cfg.Identity.Timeout))

	registry, database, err := buildRegistry(ctx, cfg, comps)
	if err != nil {
		return nil, err
	}
	lookupRetry := retry.RoleLookupConfig()
	lookupRetry.MaxAttempts = cfg.Roles.MaxAttempts
	gate := rolegate.New(registry, rolegate.Config{
		Timeout:      cfg.Roles.LookupTimeout,
		Retry:        lookupRetry,
		RPS:          cfg.Roles.LookupRPS,
		SubjectRPS:   cfg.Roles.LookupSubjectRPS,
		SubjectBurst: cfg.Roles.LookupSubjectBurst,
	})

	proxies, err := middleware.ParseTrustedProxies(cfg.RateLimit.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("parse trusted proxies: %w", err)
	}
	clients, err := middleware.NewClientIdentifier(middleware.TrustedProxyConfig{
		Enabled:      cfg.RateLimit.TrustProxy,
		AllowedCIDRs: proxies,
		RealIPHeader: cfg.RateLimit.RealIPHeader,
	})
	if err != nil {
		return nil, fmt.Errorf("build client identifier: %w", err)
	}

	pipeline, err := admission.New(admission.Options{
		Limiter:  limiter,
		CSRF:     guard,
		Verifier: verifier,
		Roles:    gate,
		ClientID: clients.Identify,
		Policies: admission.PoliciesFromRoutes(cfg.Routes),
	})
	if err != nil {
		return nil, fmt.Errorf("build admission pipeline: %w", err)
	}

	upstream, err := url.Parse(cfg.Server.UpstreamURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}
	upstreamProxy, err := proxy.New(proxy.Config{Upstream: upstream})
	if err != nil {
		return nil, err
	}

	health := &hhttp.HealthHandler{
		QuotaStore: store,
		Roles:      gate,
		DB:         database,
		CSRF:       guard,
		Version:    cfg.Server.Version,
	}
	comps.handler = newRouter(routerDeps{
		logger:   logger,
		cfg:      cfg,
		pipeline: pipeline,
		limiter:  limiter,
		guard:    guard,
		upstream: upstreamProxy,
		health:   health,
		ready:    &hhttp.ReadyHandler{Checks: readinessChecks(store, gate)},
		metrics:  hhttp.MetricsHandler(rlMetrics.Registry()),
	})

	comps.scheduler = maintenance.New(logger, time.Minute)
	sweeper := ratelimit.NewSweeper(store, cfg.RateLimit.IdleThreshold, rlMetrics)
	if err := comps.scheduler.Every(maintenance.JobRateLimitSweep, cfg.RateLimit.SweepInterval, maintenance.RateLimitSweep(sweeper)); err != nil {
		return nil, err
	}
	if err := comps.scheduler.Every(maintenance.JobCSRFSweep, cfg.RateLimit.SweepInterval, maintenance.CSRFSweep(guard)); err != nil {
		return nil, err
	}

	return comps, nil
}

func buildQuotaStore(ctx context.Context, cfg *config.Config, metrics ratelimit.Metrics, comps *components) (ratelimit.QuotaStore, error) {
	switch cfg.RateLimit.Backend {
	case config.BackendRedis:
		rc := cfg.RateLimit.Redis
		client := redis.NewClient(&redis.Options{
			Addr:     rc.Addr,
			Password: rc.Password,
			DB:       rc.DB,
		})
		comps.closers = append(comps.closers, namedCloser{"redis", client.Close})

		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}

		redisStore := ratelimit.NewRedisStore(client, ratelimit.RedisStoreConfig{Prefix: rc.KeyPrefix})
		return ratelimit.NewBreakerStore(redisStore, quotaStoreBreaker(metrics)), nil
	default:
		return ratelimit.NewMemoryStore(ratelimit.MemoryStoreConfig{
			Shards: cfg.RateLimit.Shards,
			Clock:  &ratelimit.SystemClock{},
		}), nil
	}
}

// quotaStoreBreaker reports every circuit transition to the limiter metrics.
func quotaStoreBreaker(metrics ratelimit.Metrics) *circuitbreaker.Breaker {
	cfg := circuitbreaker.QuotaStoreConfig()
	cfg.OnStateChange = func(_ string, _, to gobreaker.State) {
		metrics.RecordCircuitState(to.String())
	}
	metrics.RecordCircuitState(gobreaker.StateClosed.String())
	return circuitbreaker.New(cfg)
}

func buildRegistry(ctx context.Context, cfg *config.Config, comps *components) (rolegate.Registry, *sql.DB, error) {
	if cfg.Roles.Backend != config.RoleBackendPostgres {
		return rolegate.NewStaticRegistry(cfg.Roles.PrivilegedSubjects), nil, nil
	}

	pool := cfg.Roles.Pool
	database, err := db.Open(ctx, cfg.Roles.DatabaseURL, db.ConnectionConfig{
		MaxOpenConns:    pool.MaxOpenConns,
		MaxIdleConns:    pool.MaxIdleConns,
		ConnMaxLifetime: pool.ConnMaxLifetime,
		ConnMaxIdleTime: pool.ConnMaxIdleTime,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open role database: %w", err)
	}
	comps.closers = append(comps.closers, namedCloser{"database", database.Close})

	if err := db.MigrateUp(ctx, database); err != nil {
		return nil, nil, fmt.Errorf("migrate role database: %w", err)
	}
	return rolegate.NewPostgresRegistry(database, circuitbreaker.RoleRegistryConfig()), database, nil
}

func readinessChecks(store ratelimit.QuotaStore, gate *rolegate.Gate) map[string]hhttp.Pinger {
	checks := map[string]hhttp.Pinger{"role_registry": gate}
	if p, ok := store.(ratelimit.Pinger); ok {
		checks["quota_store"] = p
	}
	return checks
}
