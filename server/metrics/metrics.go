package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tandem"

var (
	// Linking
	LinkAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "linking",
		Name:      "attempts_total",
		Help:      "Total mutual link attempts by terminal state",
	}, []string{"state"})

	LinkSideWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "linking",
		Name:      "side_writes_total",
		Help:      "Contact writes per side of a link by status",
	}, []string{"side", "status"})

	// Cards
	CardLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cards",
		Name:      "lookups_total",
		Help:      "Card lookups by share code or username",
	}, []string{"by", "result"})

	RateLimitedRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cards",
		Name:      "rate_limited_total",
		Help:      "Public card lookups rejected by the rate limiter",
	}, []string{"route"})

	// HTTP
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method", "route", "status"})

	// Work
	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "work",
		Name:      "jobs_processed_total",
		Help:      "Jobs processed by the worker pool",
	}, []string{"handler", "status"})
)
