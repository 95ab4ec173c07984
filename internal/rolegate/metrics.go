package rolegate

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	lookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_role_lookups_total",
			Help: "Privileged-role registry lookups by result",
		},
		[]string{"result"}, // privileged | not_privileged | unavailable | throttled
	)

	lookupDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gateway_role_lookup_duration_seconds",
			Help:    "Privileged-role lookup duration including retries",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
	)
)

func recordLookup(result string) {
	lookupsTotal.WithLabelValues(result).Inc()
}

func recordLookupDuration(d time.Duration) {
	lookupDuration.Observe(d.Seconds())
}
