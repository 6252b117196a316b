package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReviewGenerationDuration tracks the latency of generate-review requests
	ReviewGenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "review_generation_duration_seconds",
			Help: "Duration of review generation requests in seconds",
			Buckets: []float64{
				0.01, // 10ms, existing review
				0.05, // 50ms
				0.25, // 250ms
				1.0,  // 1s
				2.5,  // 2.5s
				5.0,  // 5s
				10.0, // 10s
				30.0, // 30s
				60.0, // 1m
				120.0,
				280.0, // generation ceiling
			},
		},
		[]string{"status"}, // success or failure
	)

	// ReviewGenerations counts generate-review outcomes
	ReviewGenerations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_generation_total",
			Help: "Review generation outcomes (generated, existing, or an error kind)",
		},
		[]string{"outcome"},
	)

	// QuotaRollovers counts monthly quota resets by path
	QuotaRollovers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quota_rollovers_total",
			Help: "Monthly quota resets applied, by path (lazy or sweep)",
		},
		[]string{"path"},
	)

	// QuotaReleaseFailures counts reservations that could not be returned
	QuotaReleaseFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quota_release_failures_total",
			Help: "Quota reservations that failed to be released after an aborted generation",
		},
	)
)

// RecordReviewGeneration records the duration and outcome of a generate-review request
func RecordReviewGeneration(outcome string, duration float64) {
	status := "success"
	switch outcome {
	case "generated", "existing":
	default:
		status = "failure"
	}
	ReviewGenerationDuration.WithLabelValues(status).Observe(duration)
	ReviewGenerations.WithLabelValues(outcome).Inc()
}

// RecordRollover records a quota reset on the given path
func RecordRollover(path string) {
	QuotaRollovers.WithLabelValues(path).Inc()
}
