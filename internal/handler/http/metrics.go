package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"usic-gateway/internal/handler/http/pathutil"
	"usic-gateway/internal/handler/http/responsewriter"
)

const metricsNamespace = "gateway"

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Requests served by the gateway, by normalized route and status code.",
	}, []string{"method", "route", "code"})

	// Rejections are answered in microseconds, proxied requests take
	// upstream time, hence the wide range.
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Time from receiving a request to writing its last byte.",
		Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"method", "route", "code"})

	requestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "http",
		Name:      "requests_in_flight",
		Help:      "Requests currently being served.",
	})

	bodyBytes = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "http",
		Name:      "body_bytes",
		Help:      "Request and response body sizes.",
		Buckets:   prometheus.ExponentialBuckets(64, 8, 8),
	}, []string{"direction", "route"})
)

// MetricsMiddleware records request counts, latency and body sizes. Routes
// are normalized so identifiers in paths do not create new series.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestsInFlight.Inc()
		defer requestsInFlight.Dec()

		route := pathutil.NormalizePath(r.URL.Path)
		if r.ContentLength > 0 {
			bodyBytes.WithLabelValues("request", route).Observe(float64(r.ContentLength))
		}

		rw := responsewriter.Wrap(w)
		start := time.Now()
		next.ServeHTTP(rw, r)
		elapsed := time.Since(start)

		code := strconv.Itoa(rw.StatusCode())
		requestsTotal.WithLabelValues(r.Method, route, code).Inc()
		requestDuration.WithLabelValues(r.Method, route, code).Observe(elapsed.Seconds())
		bodyBytes.WithLabelValues("response", route).Observe(float64(rw.BytesWritten()))
	})
}

// MetricsHandler serves the default registry merged with extra gatherers,
// such as the rate limiter's private registry.
func MetricsHandler(extra ...prometheus.Gatherer) http.Handler {
	gatherers := append(prometheus.Gatherers{prometheus.DefaultGatherer}, extra...)
	return promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}
