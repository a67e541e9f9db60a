// Package metrics exposes Prometheus counters and histograms for the
// commit pipeline, session lifecycle, and notification delivery, in the
// style of the teacher's pkg/metrics/prometheus (one struct of
// promauto-registered collectors, nil-receiver methods that no-op when
// metrics are disabled).
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry
	enabled  bool
)

// InitRegistry creates the package-global registry. Must be called
// before New for metrics collection to be active; if never called, New
// returns nil and every recorder method is a no-op.
func InitRegistry() {
	registry = prometheus.NewRegistry()
	enabled = true
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return enabled
}

// GetRegistry returns the package-global registry, or nil if disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// Handler returns the HTTP handler serving the registry in the
// Prometheus text exposition format, for mounting on the metrics port.
func Handler() http.Handler {
	if registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// Recorder collects datastore-server metrics. A nil *Recorder (returned
// by New when metrics are disabled) makes every method a no-op.
type Recorder struct {
	commitsTotal       *prometheus.CounterVec
	commitDuration     *prometheus.HistogramVec
	commitPhaseDuration *prometheus.HistogramVec
	operationsTotal    *prometheus.CounterVec
	operationDuration  *prometheus.HistogramVec
	validationErrors   *prometheus.CounterVec
	activeSessions     prometheus.Gauge
	moduleLockWaits    *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec
}

// New creates a Prometheus-backed Recorder. Returns nil if InitRegistry
// was never called, so callers can hold a *Recorder unconditionally and
// every method becomes a safe no-op.
func New() *Recorder {
	if !IsEnabled() {
		return nil
	}
	reg := GetRegistry()

	return &Recorder{
		commitsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "confd_commits_total",
				Help: "Total number of commit attempts by outcome",
			},
			[]string{"outcome"}, // "success", "validation_failed", "aborted"
		),
		commitDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "confd_commit_duration_seconds",
				Help:    "Duration of a full commit from request to applied",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		commitPhaseDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "confd_commit_phase_duration_seconds",
				Help:    "Duration of an individual commit pipeline phase",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"phase"}, // "lock", "load", "replay", "validate", "persist", "notify"
		),
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "confd_operations_total",
				Help: "Total number of session operations by kind and outcome",
			},
			[]string{"operation", "outcome"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "confd_operation_duration_seconds",
				Help:    "Duration of a single request-response operation",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		validationErrors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "confd_validation_errors_total",
				Help: "Total number of validation errors raised during commit, by module",
			},
			[]string{"module"},
		),
		activeSessions: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "confd_active_sessions",
				Help: "Current number of open sessions",
			},
		),
		moduleLockWaits: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "confd_module_lock_waits_total",
				Help: "Total number of times a commit waited to acquire a module lock",
			},
			[]string{"module"},
		),
		notificationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "confd_notifications_total",
				Help: "Total number of notifications dispatched by outcome",
			},
			[]string{"outcome"}, // "delivered", "failed"
		),
	}
}

func (r *Recorder) RecordCommit(outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.commitsTotal.WithLabelValues(outcome).Inc()
	r.commitDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (r *Recorder) RecordCommitPhase(phase string, d time.Duration) {
	if r == nil {
		return
	}
	r.commitPhaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

func (r *Recorder) RecordOperation(operation, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.operationsTotal.WithLabelValues(operation, outcome).Inc()
	r.operationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (r *Recorder) RecordValidationError(module string) {
	if r == nil {
		return
	}
	r.validationErrors.WithLabelValues(module).Inc()
}

func (r *Recorder) SetActiveSessions(n int) {
	if r == nil {
		return
	}
	r.activeSessions.Set(float64(n))
}

func (r *Recorder) RecordModuleLockWait(module string) {
	if r == nil {
		return
	}
	r.moduleLockWaits.WithLabelValues(module).Inc()
}

func (r *Recorder) RecordNotification(delivered bool) {
	if r == nil {
		return
	}
	outcome := "delivered"
	if !delivered {
		outcome = "failed"
	}
	r.notificationsTotal.WithLabelValues(outcome).Inc()
}
