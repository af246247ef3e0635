package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QuestionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "analytics_bot_pipeline_questions_total",
		Help: "Number of questions answered by outcome (direct, analysis, exhausted)",
	}, []string{"outcome"})

	RetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "analytics_bot_pipeline_retries_total",
		Help: "Number of query executions that failed and triggered a repair",
	})
)
