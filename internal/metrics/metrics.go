package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	MessagesPosted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_posted_total",
			Help: "Total messages accepted",
		},
		[]string{"visibility"}, // "public" or "private"
	)

	MessagesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_rejected_total",
			Help: "Total messages refused admission",
		},
		[]string{"reason"}, // "flood", "capacity", "memory", "rate_limit"
	)

	MessagesEvicted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_evicted_total",
			Help: "Total messages evicted by cleanup",
		},
		[]string{"cause"}, // "soft", "emergency", "expired", "startup"
	)

	SweepsRun = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_expiry_sweeps_total",
			Help: "Total expiry sweeps executed",
		},
	)

	OnlineSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_online_sessions",
			Help: "Sessions active within the activity window",
		},
	)

	// Infrastructure metrics
	RedisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chat_redis_latency_seconds",
			Help:    "Redis operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)
)
