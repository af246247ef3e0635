package sandbox

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "analytics_bot_sandbox_queries_total",
		Help: "Number of sandbox query executions by outcome",
	}, []string{"status"})

	QueryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "analytics_bot_sandbox_query_duration_seconds",
		Help:    "Duration of sandbox query executions",
		Buckets: prometheus.DefBuckets,
	})
)
