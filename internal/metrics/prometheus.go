// Package metrics defines the prometheus collectors shared by the gateway,
// the scheduler and the bulk executor.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var GatewayRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "gateway_requests_total",
		Help: "Total number of notification API calls by operation and outcome",
	},
	[]string{"op", "outcome"},
)

var GatewayRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "gateway_request_duration_seconds",
		Help:    "Duration of notification API calls in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"op"},
)

var SyncTicksTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sync_ticks_total",
		Help: "Interval ticks by result (skipped, unchanged, resynced, error)",
	},
	[]string{"result"},
)

var SyncFocusRefreshTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sync_focus_refresh_total",
		Help: "Focus-triggered refreshes by result",
	},
	[]string{"result"},
)

var BulkActionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "bulk_actions_total",
		Help: "Bulk notification actions by action and outcome",
	},
	[]string{"action", "outcome"},
)

var UnreadCount = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "inbox_unread_count",
		Help: "Unread notification count as last known by the client",
	},
)

// Register adds every collector to reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(GatewayRequestsTotal)
	reg.MustRegister(GatewayRequestDuration)
	reg.MustRegister(SyncTicksTotal)
	reg.MustRegister(SyncFocusRefreshTotal)
	reg.MustRegister(BulkActionsTotal)
	reg.MustRegister(UnreadCount)
}

// Handler returns an HTTP handler exposing the collectors registered on reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
