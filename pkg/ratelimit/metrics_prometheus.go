package ratelimit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics implements the Metrics interface using Prometheus.
//
// All metrics use a custom registry for better testability and isolation.
// The registry is combined with the default one when /metrics is served.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	// decisionsTotal tracks rate limit decisions.
	// Labels:
	//   - category: rate limit category name
	//   - status: "admitted" or "denied"
	decisionsTotal *prometheus.CounterVec

	// checkDuration tracks store evaluation latency.
	// Labels:
	//   - category: rate limit category name
	//
	// Buckets cover in-memory checks (sub-millisecond) through remote
	// store round trips.
	checkDuration *prometheus.HistogramVec

	// storeErrorsTotal tracks failed store operations.
	// Labels:
	//   - operation: "record", "peek", "clear", "sweep"
	storeErrorsTotal *prometheus.CounterVec

	// activeKeys tracks the number of keys held by the store.
	activeKeys prometheus.Gauge

	// evictionsTotal tracks keys removed by the idle sweep.
	evictionsTotal prometheus.Counter

	// circuitState tracks the store circuit breaker.
	// Values: 0 closed, 1 open, 2 half-open.
	circuitState prometheus.Gauge
}

// NewPrometheusMetrics creates a new PrometheusMetrics instance with a custom registry.
func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	decisionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_rate_limit_decisions_total",
			Help: "Rate limit decisions by category and status",
		},
		[]string{"category", "status"},
	)

	checkDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_rate_limit_check_duration_seconds",
			Help:    "Duration of rate limit store evaluations",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.002, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		},
		[]string{"category"},
	)

	storeErrorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_rate_limit_store_errors_total",
			Help: "Failed quota store operations",
		},
		[]string{"operation"},
	)

	activeKeys := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_rate_limit_active_keys",
		Help: "Current number of keys held by the quota store",
	})

	evictionsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_rate_limit_evictions_total",
		Help: "Keys removed by the idle sweep",
	})

	circuitState := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_rate_limit_circuit_state",
		Help: "Quota store circuit breaker state (0=closed, 1=open, 2=half-open)",
	})

	registry.MustRegister(
		decisionsTotal,
		checkDuration,
		storeErrorsTotal,
		activeKeys,
		evictionsTotal,
		circuitState,
	)

	return &PrometheusMetrics{
		registry:         registry,
		decisionsTotal:   decisionsTotal,
		checkDuration:    checkDuration,
		storeErrorsTotal: storeErrorsTotal,
		activeKeys:       activeKeys,
		evictionsTotal:   evictionsTotal,
		circuitState:     circuitState,
	}
}

// Registry returns the Prometheus registry containing all rate limit metrics.
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordDecision implements Metrics.
func (m *PrometheusMetrics) RecordDecision(category string, admitted bool) {
	status := "denied"
	if admitted {
		status = "admitted"
	}
	m.decisionsTotal.WithLabelValues(category, status).Inc()
}

// RecordCheckDuration implements Metrics.
func (m *PrometheusMetrics) RecordCheckDuration(category string, duration time.Duration) {
	m.checkDuration.WithLabelValues(category).Observe(duration.Seconds())
}

// RecordStoreError implements Metrics.
func (m *PrometheusMetrics) RecordStoreError(operation string) {
	m.storeErrorsTotal.WithLabelValues(operation).Inc()
}

// SetActiveKeys implements Metrics.
func (m *PrometheusMetrics) SetActiveKeys(count int) {
	m.activeKeys.Set(float64(count))
}

// RecordEviction implements Metrics.
func (m *PrometheusMetrics) RecordEviction(count int) {
	m.evictionsTotal.Add(float64(count))
}

// RecordCircuitState implements Metrics.
//
// The state is mapped to a numeric gauge for alerting:
//   - 0 = closed
//   - 1 = open
//   - 2 = half-open
func (m *PrometheusMetrics) RecordCircuitState(state string) {
	var stateValue float64
	switch state {
	case "open":
		stateValue = 1
	case "half-open":
		stateValue = 2
	default:
		stateValue = 0
	}
	m.circuitState.Set(stateValue)
}
