package llm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "analytics_bot_llm_calls_total",
		Help: "Number of model API calls by outcome",
	}, []string{"status"})

	CallDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "analytics_bot_llm_call_duration_seconds",
		Help:    "Duration of model API calls including transient retries",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 0.25s to ~128s
	})
)
