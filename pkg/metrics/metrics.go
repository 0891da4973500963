package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Business metrics
	LeadsIngested     *prometheus.CounterVec
	SyncRuns          *prometheus.CounterVec
	SyncRowsProcessed prometheus.Counter
	LeadsRepaired     prometheus.Counter

	// Database metrics
	DBConnections prometheus.Gauge
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		LeadsIngested: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leads_ingested_total",
				Help: "Total number of lead ingestion attempts",
			},
			[]string{"source", "outcome"}, // webhook/sheet, created/duplicate/rejected
		),
		SyncRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sheet_sync_runs_total",
				Help: "Total number of sheet sync runs per tab",
			},
			[]string{"status"}, // success, error, locked
		),
		SyncRowsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sheet_sync_rows_processed_total",
			Help: "Total number of sheet rows processed by sync",
		}),
		LeadsRepaired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "leads_repaired_total",
			Help: "Total number of leads backfilled by the repair job",
		}),
		DBConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		}),
	}
}

// Middleware creates an Echo middleware for Prometheus metrics
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			path := c.Path() // Route pattern, not actual path (e.g. /webhook/:customer)

			err := next(c)

			status := c.Response().Status
			duration := time.Since(start).Seconds()

			m.HTTPRequestsTotal.WithLabelValues(req.Method, path, strconv.Itoa(status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(req.Method, path, strconv.Itoa(status)).Observe(duration)

			return err
		}
	}
}

// RecordIngestion counts one lead ingestion attempt by source and outcome
func (m *Metrics) RecordIngestion(source, outcome string) {
	if m == nil {
		return
	}
	m.LeadsIngested.WithLabelValues(source, outcome).Inc()
}

// RecordSyncRun counts one sync run by terminal status
func (m *Metrics) RecordSyncRun(status string) {
	if m == nil {
		return
	}
	m.SyncRuns.WithLabelValues(status).Inc()
}

// RecordSyncRows counts rows processed by a sync run
func (m *Metrics) RecordSyncRows(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SyncRowsProcessed.Add(float64(n))
}

// RecordLeadsRepaired counts leads backfilled by the repair job
func (m *Metrics) RecordLeadsRepaired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.LeadsRepaired.Add(float64(n))
}

// UpdateDBConnections updates active database connections gauge
func (m *Metrics) UpdateDBConnections(count float64) {
	if m == nil {
		return
	}
	m.DBConnections.Set(count)
}
