package whatsapp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var WebhookRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "analytics_bot_webhook_requests_total",
		Help: "Total number of webhook requests, by outcome",
	},
	[]string{"status"},
)
