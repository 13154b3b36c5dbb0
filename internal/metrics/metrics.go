package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChatTurnsTotal counts orchestrated turns by entry point and outcome.
	ChatTurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "chat",
			Name:      "turns_total",
			Help:      "Total chat turns processed",
		},
		[]string{"entry", "outcome"},
	)

	ConversationsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "chat",
			Name:      "conversations_created_total",
			Help:      "Total conversations created",
		},
	)

	// LLMRequestsTotal counts remote model calls, one per attempt.
	LLMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "llm",
			Name:      "requests_total",
			Help:      "Total remote model calls",
		},
		[]string{"provider", "operation", "status"},
	)

	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "assistant",
			Subsystem: "llm",
			Name:      "request_duration_seconds",
			Help:      "Remote model call latency",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider", "operation"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "assistant",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// Outcome labels shared by the counters above.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)
