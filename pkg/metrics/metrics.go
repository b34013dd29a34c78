package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the client-side Prometheus collectors.
type Metrics struct {
	Registry *prometheus.Registry

	// Gateway metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	RefreshesTotal      *prometheus.CounterVec
	RevocationsTotal    *prometheus.CounterVec

	// Realtime channel metrics
	RealtimeState           prometheus.Gauge
	RealtimeMessagesTotal   *prometheus.CounterVec
	RealtimeReconnectsTotal prometheus.Counter

	// Cache metrics
	CacheHitsTotal          prometheus.Counter
	CacheMissesTotal        prometheus.Counter
	CacheInvalidationsTotal *prometheus.CounterVec
}

// New creates all collectors on a fresh registry, so several instances can
// live in one process.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskmgr_http_requests_total",
				Help: "Total number of HTTP requests sent by the gateway",
			},
			[]string{"method", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "taskmgr_http_request_duration_seconds",
				Help:    "Gateway request latency in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method"},
		),
		RefreshesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskmgr_session_refreshes_total",
				Help: "Silent session refresh attempts",
			},
			[]string{"result"},
		),
		RevocationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskmgr_session_revocations_total",
				Help: "Sessions revoked by the gateway",
			},
			[]string{"reason"},
		),

		RealtimeState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "taskmgr_realtime_connected",
			Help: "1 while the realtime channel is connected",
		}),
		RealtimeMessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskmgr_realtime_messages_total",
				Help: "Realtime events received",
			},
			[]string{"event"},
		),
		RealtimeReconnectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "taskmgr_realtime_reconnects_total",
			Help: "Realtime reconnection attempts",
		}),

		CacheHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "taskmgr_cache_hits_total",
			Help: "Fresh notification cache hits",
		}),
		CacheMissesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "taskmgr_cache_misses_total",
			Help: "Notification cache misses and stale reads",
		}),
		CacheInvalidationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskmgr_cache_invalidations_total",
				Help: "Tags invalidated in the notification cache",
			},
			[]string{"tag"},
		),
	}
}
