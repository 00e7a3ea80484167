package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ValidationDuration tracks the latency of code validations by outcome
	ValidationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "qr_validation_duration_seconds",
			Help: "Duration of QR code validations in seconds",
			Buckets: []float64{
				0.001, // 1ms
				0.005, // 5ms
				0.01,  // 10ms
				0.025, // 25ms
				0.05,  // 50ms
				0.1,   // 100ms
				0.25,  // 250ms
				0.5,   // 500ms
				1.0,   // 1s
				2.5,   // 2.5s
			},
		},
		[]string{"outcome"}, // accepted, rejection reason or error
	)

	CodesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qr_codes_issued_total",
		Help: "Number of QR codes minted",
	})

	RewardsGranted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qr_rewards_total",
		Help: "Number of rewards triggered by recurring scans",
	})

	// GenerationExhausted should stay at zero; any increase is worth an alert.
	GenerationExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qr_generation_exhausted_total",
		Help: "Number of times code generation ran out of attempts",
	})

	ScanRateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qr_scan_rate_limited_total",
		Help: "Number of scan attempts rejected by the per-user rate limit",
	})
)

// RecordValidation records the duration of a validation request
func RecordValidation(outcome string, duration float64) {
	ValidationDuration.WithLabelValues(outcome).Observe(duration)
}
