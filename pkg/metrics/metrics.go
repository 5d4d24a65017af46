package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the process-wide Prometheus collectors.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	LeadsAccepted  *prometheus.CounterVec
	LoginAttempts  *prometheus.CounterVec
	SyncRuns       *prometheus.CounterVec
	SyncDuration   prometheus.Histogram
	SyncRowsByKind *prometheus.CounterVec
	SchemaHeals    *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers all collectors on reg. Pass prometheus.NewRegistry() in tests
// so repeated construction does not collide on the default registry.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		LeadsAccepted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_lead_accept_total",
				Help: "Pool accept attempts by outcome",
			},
			[]string{"outcome"}, // accepted, conflict, error
		),
		LoginAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_login_attempts_total",
				Help: "Login attempts by method and outcome",
			},
			[]string{"method", "status"},
		),
		SyncRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_sync_runs_total",
				Help: "Spreadsheet/CSV sync runs by type and final status",
			},
			[]string{"type", "status"},
		),
		SyncDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "crm_sync_duration_seconds",
			Help:    "Wall time of spreadsheet sync runs",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		SyncRowsByKind: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_sync_rows_total",
				Help: "Rows processed by sync, split by result",
			},
			[]string{"result"}, // imported, updated, skipped, error
		),
		SchemaHeals: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_schema_heal_total",
				Help: "Lead writes retried after a missing-column error",
			},
			[]string{"stage"}, // strip, base
		),
		gatherer: reg,
	}
}

// Middleware records count and latency per route pattern.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveSync is a convenience for the import engine.
func (m *Metrics) ObserveSync(syncType, status string, d time.Duration, imported, updated, skipped, errs int) {
	if m == nil {
		return
	}
	m.SyncRuns.WithLabelValues(syncType, status).Inc()
	if syncType != "csv" {
		m.SyncDuration.Observe(d.Seconds())
	}
	m.SyncRowsByKind.WithLabelValues("imported").Add(float64(imported))
	m.SyncRowsByKind.WithLabelValues("updated").Add(float64(updated))
	m.SyncRowsByKind.WithLabelValues("skipped").Add(float64(skipped))
	m.SyncRowsByKind.WithLabelValues("error").Add(float64(errs))
}

func (m *Metrics) ObserveAccept(outcome string) {
	if m == nil {
		return
	}
	m.LeadsAccepted.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveLogin(method, status string) {
	if m == nil {
		return
	}
	m.LoginAttempts.WithLabelValues(method, status).Inc()
}

func (m *Metrics) ObserveHeal(stage string) {
	if m == nil {
		return
	}
	m.SchemaHeals.WithLabelValues(stage).Inc()
}
