package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filehub_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// ActiveSessions tracks sessions that are neither terminated nor expired.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "filehub_active_sessions",
			Help: "Number of active sessions",
		},
	)

	// SeatsCheckedOut tracks seats currently held in the admission pool.
	SeatsCheckedOut = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "filehub_seats_checked_out",
			Help: "Seats currently checked out of the admission pool",
		},
	)

	// SeatDenials counts admission denials by role class (admin|user).
	SeatDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filehub_seat_denials_total",
			Help: "Seat admission denials",
		},
		[]string{"role"},
	)

	// SeatReconciliations counts reconcile passes by outcome (clean|drift).
	SeatReconciliations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filehub_seat_reconciliations_total",
			Help: "Seat pool reconciliation passes",
		},
		[]string{"outcome"},
	)

	// SessionTerminations counts session terminations by reason class
	// (logout|admin|idle|expired|overflow).
	SessionTerminations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filehub_session_terminations_total",
			Help: "Session terminations by reason class",
		},
		[]string{"reason"},
	)

	// APILatency observes HTTP request latency per route.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "filehub_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
