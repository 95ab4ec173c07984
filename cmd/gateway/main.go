// Command gateway is the request-governance gateway: it rate limits, checks
// CSRF tokens, verifies identity and enforces privileged roles before
// proxying requests to the upstream API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"usic-gateway/internal/config"
	"usic-gateway/internal/observability/logging"
	"usic-gateway/internal/observability/tracing"
)

func main() {
	policyPath := flag.String("policy", "", "path to a YAML policy file (overrides GATEWAY_POLICY_FILE)")
	flag.Parse()

	if err := run(*policyPath); err != nil {
		slog.Error("gateway stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(policyPath string) error {
	cfg, err := config.Load(policyPath)
	if err != nil {
		// The logger depends on config, so report through the default one.
		return fmt.Errorf("load configuration: %w", err)
	}

	logger := logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	slog.SetDefault(logger)

	shutdownTracing := tracing.Init(tracing.Options{ServiceName: tracing.InstrumentationName, SampleRatio: 1})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	comps, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer comps.Close(logger)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           comps.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       90 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("gateway listening",
			slog.String("addr", cfg.Server.Addr),
			slog.String("upstream", cfg.Server.UpstreamURL),
			slog.String("rate_limit_backend", cfg.RateLimit.Backend),
			slog.String("role_backend", cfg.Roles.Backend),
			slog.String("version", cfg.Server.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	comps.scheduler.Start()

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", slog.Duration("timeout", cfg.Server.ShutdownTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := comps.scheduler.Stop(shutdownCtx); err != nil {
			logger.Warn("maintenance jobs did not stop in time", slog.Any("error", err))
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", slog.Any("error", err))
		}
		logger.Info("server stopped")
		return nil
	})

	return g.Wait()
}
