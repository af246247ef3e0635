package eval

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var ScoreObserved = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "analytics_bot_eval_score",
		Help:    "Rubric scores assigned to answers",
		Buckets: []float64{1, 2, 3, 4, 5},
	},
	[]string{"rubric"},
)
