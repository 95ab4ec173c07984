// Package maintenance runs the gateway's periodic housekeeping: evicting
// idle rate-limit keys and forgetting expired CSRF tokens.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"

	"usic-gateway/internal/handler/http/respond"
)

var (
	jobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_maintenance_runs_total",
			Help: "Maintenance job runs by job and result",
		},
		[]string{"job", "result"},
	)
	jobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_maintenance_duration_seconds",
			Help:    "Maintenance job duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)
)

// Job is one unit of housekeeping. It returns the number of items removed.
type Job func(ctx context.Context) (int, error)

// Scheduler runs jobs on a fixed interval. A job never overlaps with itself.
type Scheduler struct {
	cron    *cron.Cron
	logger  *slog.Logger
	timeout time.Duration

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

// New returns a scheduler whose job runs are each bounded by timeout.
func New(logger *slog.Logger, timeout time.Duration) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DiscardLogger),
		)),
		logger:  logger,
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Every registers job to run each interval.
func (s *Scheduler) Every(name string, interval time.Duration, job Job) error {
	if interval <= 0 {
		return fmt.Errorf("maintenance: interval for %s must be positive, got %v", name, interval)
	}
	if job == nil {
		return errors.New("maintenance: job is nil")
	}
	s.cron.Schedule(cron.Every(interval), cron.FuncJob(func() { s.Run(name, job) }))
	s.logger.Info("maintenance job scheduled",
		slog.String("job", name),
		slog.Duration("interval", interval))
	return nil
}

// Run executes job once, recording metrics and logging the outcome.
func (s *Scheduler) Run(name string, job Job) {
	ctx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	removed, err := job(ctx)
	elapsed := time.Since(start)
	jobDuration.WithLabelValues(name).Observe(elapsed.Seconds())

	if err != nil {
		jobRuns.WithLabelValues(name, "failure").Inc()
		s.logger.Error("maintenance job failed",
			slog.String("job", name),
			slog.Int("removed", removed),
			slog.String("error", respond.SanitizeError(err)))
		return
	}
	jobRuns.WithLabelValues(name, "success").Inc()
	s.logger.Debug("maintenance job completed",
		slog.String("job", name),
		slog.Int("removed", removed),
		slog.Duration("duration", elapsed))
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return or for ctx to end.
// A stopped scheduler cannot be restarted.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancel()
	if !s.started {
		return nil
	}
	s.started = false

	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
