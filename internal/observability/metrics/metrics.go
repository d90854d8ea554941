// Package metrics exposes the application's prometheus instruments.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the domain-level instruments.
type Metrics struct {
	scansRun           *prometheus.CounterVec
	alertsCreated      *prometheus.CounterVec
	alertsDeduplicated *prometheus.CounterVec
	usageIngested      prometheus.Counter
	snapshotsComputed  prometheus.Counter

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New registers the instruments on the default registerer.
func New() *Metrics {
	return &Metrics{
		scansRun: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "moneyradar_scans_total",
			Help: "Detection scans executed, by scan kind.",
		}, []string{"scan"}),
		alertsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "moneyradar_alerts_created_total",
			Help: "Alerts created, by type and severity.",
		}, []string{"type", "severity"}),
		alertsDeduplicated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "moneyradar_alerts_deduplicated_total",
			Help: "Alert opens suppressed by the dedup gate, by type.",
		}, []string{"type"}),
		usageIngested: promauto.NewCounter(prometheus.CounterOpts{
			Name: "moneyradar_usage_records_total",
			Help: "Usage records ingested.",
		}),
		snapshotsComputed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "moneyradar_mrr_snapshots_total",
			Help: "Daily MRR snapshots computed.",
		}),
		httpRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "moneyradar_http_requests_total",
			Help: "HTTP requests, by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "moneyradar_http_request_duration_seconds",
			Help:    "HTTP request latency, by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

func (m *Metrics) ScanRun(scan string) {
	m.scansRun.WithLabelValues(scan).Inc()
}

func (m *Metrics) AlertsCreated(alertType, severity string) {
	m.alertsCreated.WithLabelValues(alertType, severity).Inc()
}

func (m *Metrics) AlertsDeduplicated(alertType string) {
	m.alertsDeduplicated.WithLabelValues(alertType).Inc()
}

func (m *Metrics) UsageIngested() {
	m.usageIngested.Inc()
}

func (m *Metrics) SnapshotComputed() {
	m.snapshotsComputed.Inc()
}

// GinMiddleware records request counts and latency per route.
func GinMiddleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}
