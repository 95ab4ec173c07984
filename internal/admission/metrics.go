package admission

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stageOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_admission_stage_total",
			Help: "Admission stage evaluations by outcome",
		},
		[]string{"stage", "outcome"}, // outcome: passed or a rejection code
	)

	admissionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_admission_duration_seconds",
			Help:    "Time spent evaluating admission for one request",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 3},
		},
		[]string{"result"}, // admitted | rejected
	)
)

func recordStage(stage Stage, rej *Rejection) {
	outcome := "passed"
	if rej != nil {
		outcome = rej.Kind.String()
	}
	stageOutcomes.WithLabelValues(string(stage), outcome).Inc()
}

func recordAdmission(res *Result, d time.Duration) {
	result := "admitted"
	if !res.Admitted() {
		result = "rejected"
	}
	admissionDuration.WithLabelValues(result).Observe(d.Seconds())
}
