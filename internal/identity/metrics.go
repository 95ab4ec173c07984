package identity

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	verificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_identity_verifications_total",
			Help: "Bearer token verifications by result",
		},
		[]string{"result"}, // success | missing | malformed | expired | revoked | invalid | unavailable
	)

	verificationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gateway_identity_verification_duration_seconds",
			Help:    "Time spent verifying bearer tokens",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 3},
		},
	)
)

func recordVerification(err error) {
	result := "success"
	if err != nil {
		result = KindOf(err).String()
	}
	verificationsTotal.WithLabelValues(result).Inc()
}

func recordVerificationDuration(d time.Duration) {
	verificationDuration.Observe(d.Seconds())
}
