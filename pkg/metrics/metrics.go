// Package metrics exposes Prometheus instrumentation for the file service.
// Collectors live on a dedicated registry so tests can create isolated
// instances.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors.
type Metrics struct {
	registry *prometheus.Registry

	filesCreated    prometheus.Counter
	filesDeleted    prometheus.Counter
	syncRuns        prometheus.Counter
	lockTimeouts    prometheus.Counter
	requestDuration *prometheus.HistogramVec
}

// New creates a Metrics instance with its own registry, including the
// standard Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Metrics{
		registry: reg,
		filesCreated: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "fileholder_files_created_total",
			Help: "Total number of files created",
		}),
		filesDeleted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "fileholder_files_deleted_total",
			Help: "Total number of files deleted",
		}),
		syncRuns: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "fileholder_sync_runs_total",
			Help: "Total number of storage reconciliation passes",
		}),
		lockTimeouts: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "fileholder_blob_lock_timeouts_total",
			Help: "Total number of blob lock acquisition timeouts",
		}),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fileholder_http_request_duration_seconds",
				Help:    "HTTP request latency by method and status",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "status"},
		),
	}
}

// RecordFileCreated increments the created-files counter.
func (m *Metrics) RecordFileCreated() {
	if m == nil {
		return
	}
	m.filesCreated.Inc()
}

// RecordFileDeleted increments the deleted-files counter.
func (m *Metrics) RecordFileDeleted() {
	if m == nil {
		return
	}
	m.filesDeleted.Inc()
}

// RecordSyncRun increments the reconciliation counter.
func (m *Metrics) RecordSyncRun() {
	if m == nil {
		return
	}
	m.syncRuns.Inc()
}

// RecordLockTimeout increments the lock timeout counter.
func (m *Metrics) RecordLockTimeout() {
	if m == nil {
		return
	}
	m.lockTimeouts.Inc()
}

// ObserveRequest records one HTTP request observation.
func (m *Metrics) ObserveRequest(method, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(method, status).Observe(elapsed.Seconds())
}

// Handler returns the exposition endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
