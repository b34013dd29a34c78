package devserver

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the reference backend's collectors.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	AuthRejections      *prometheus.CounterVec
	RealtimeConnections prometheus.Gauge
	EventsPushed        *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskmgr_devserver_http_requests_total",
				Help: "Total HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "taskmgr_devserver_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		AuthRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskmgr_devserver_auth_rejections_total",
				Help: "Requests rejected by the session guard, by reason",
			},
			[]string{"reason"},
		),
		RealtimeConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "taskmgr_devserver_realtime_connections",
				Help: "Open realtime connections",
			},
		),
		EventsPushed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskmgr_devserver_events_pushed_total",
				Help: "Realtime events queued to clients, by event",
			},
			[]string{"event"},
		),
	}
}

// middleware records request count and latency per route template.
func (m *Metrics) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}
