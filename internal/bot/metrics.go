package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "analytics_bot_build_info",
			Help: "Build information of the analytics bot",
		},
		[]string{"version", "commit", "date"},
	)

	MessagesProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_bot_messages_processed_total",
			Help: "Total number of messages processed, by outcome",
		},
		[]string{"status"},
	)

	MessageProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "analytics_bot_message_processing_duration_seconds",
			Help:    "Duration of end-to-end message handling",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s to ~205s
		},
	)

	EvaluationFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "analytics_bot_evaluation_failures_total",
			Help: "Total number of answer evaluations that failed",
		},
	)
)
