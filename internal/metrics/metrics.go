package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	NotificationsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_delivered_total",
		Help: "Notification jobs delivered, by channel.",
	}, []string{"channel"})

	NotificationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_failed_total",
		Help: "Notification jobs failed permanently, by channel.",
	}, []string{"channel"})

	// Abandoned jobs are the operational alert signal: the channel kept
	// returning transient errors until the retries were exhausted.
	NotificationsAbandoned = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_abandoned_total",
		Help: "Notification jobs abandoned after exhausting retries, by channel.",
	}, []string{"channel"})

	Checkouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkouts_total",
		Help: "Checkout attempts, by result.",
	}, []string{"result"})

	LowStockAlerts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "low_stock_alerts_total",
		Help: "Commits that left a product at or below its low-stock threshold.",
	})
)

func Handler() http.Handler { return promhttp.Handler() }
