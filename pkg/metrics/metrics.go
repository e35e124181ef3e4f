package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by result (success|failure|locked|rate_limited).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qrattend_auth_attempts_total",
			Help: "Total number of lecturer authentication attempts",
		},
		[]string{"result"},
	)

	// AccountLockouts counts accounts transitioning into the locked state.
	AccountLockouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "qrattend_account_lockouts_total",
			Help: "Total number of account lockouts triggered",
		},
	)

	// Verifications counts challenge redemptions by purpose and result.
	Verifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qrattend_verifications_total",
			Help: "Total number of verification challenge redemptions",
		},
		[]string{"purpose", "result"},
	)

	// QRGenerations counts QR code generations by result (success|error).
	QRGenerations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qrattend_qr_generations_total",
			Help: "Total number of course QR code generations",
		},
		[]string{"result"},
	)

	// AttendanceSubmissions counts public attendance form submissions.
	AttendanceSubmissions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "qrattend_attendance_submissions_total",
			Help: "Total number of accepted attendance submissions",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "qrattend_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
