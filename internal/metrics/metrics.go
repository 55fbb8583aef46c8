// Package metrics exposes Prometheus collectors for the dispatch sweep and
// the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"leadflow_backend/internal/dispatch"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "leadflow"

// Metrics owns a private registry so tests can build isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	sweeps        *prometheus.CounterVec
	sweepDuration prometheus.Histogram
	sweepEvents   *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpLatency   *prometheus.HistogramVec
}

// New registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "sweeps_total",
			Help:      "Dispatch sweeps by result (ran or skipped).",
		}, []string{"result"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "sweep_duration_seconds",
			Help:      "Wall time of sweeps that held the lease.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		sweepEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "events_total",
			Help:      "Follow-up events handled by sweeps, by outcome.",
		}, []string{"outcome"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "deliveries_total",
			Help:      "Delivery attempts by channel and result.",
		}, []string{"channel", "result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	m.registry.MustRegister(
		m.sweeps, m.sweepDuration, m.sweepEvents, m.deliveries, m.httpRequests, m.httpLatency,
		collectors.NewGoCollector(),
	)
	return m
}

// ObserveSweep implements dispatch.Observer.
func (m *Metrics) ObserveSweep(summary dispatch.Summary, elapsed time.Duration) {
	if summary.Skipped {
		m.sweeps.WithLabelValues("skipped").Inc()
		return
	}
	m.sweeps.WithLabelValues("ran").Inc()
	m.sweepDuration.Observe(elapsed.Seconds())
	m.sweepEvents.WithLabelValues("sent").Add(float64(summary.Sent))
	m.sweepEvents.WithLabelValues("failed").Add(float64(summary.Failed))
	m.sweepEvents.WithLabelValues("conflict").Add(float64(summary.Conflicts))
	m.sweepEvents.WithLabelValues("released").Add(float64(summary.Released))
}

// ObserveDelivery implements dispatch.Observer.
func (m *Metrics) ObserveDelivery(channel, outcome string) {
	m.deliveries.WithLabelValues(channel, outcome).Inc()
}

// Middleware records request counts and latency per matched route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpLatency.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

var _ dispatch.Observer = (*Metrics)(nil)
