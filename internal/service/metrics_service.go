package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/24Tech-io/nursepor-stable-sub008/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation. All methods are nil-safe.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	enrollTotal     *prometheus.CounterVec
	lockWait        *prometheus.HistogramVec
	lockTimeouts    *prometheus.CounterVec
	divergence      *prometheus.GaugeVec
	auditRuns       *prometheus.CounterVec
	repairTotal     *prometheus.CounterVec
	orphansDeleted  prometheus.Counter
	notifierDropped prometheus.Counter
	cacheLookups    *prometheus.CounterVec
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	enrollTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollment_attempts_total",
		Help: "Enrollment attempts by source and outcome",
	}, []string{"source", "outcome"})

	lockWait := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "operation_lock_wait_seconds",
		Help:    "Time spent waiting for the per-enrollment operation lock",
		Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"backend"})

	lockTimeouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "operation_lock_timeouts_total",
		Help: "Lock acquisitions that gave up",
	}, []string{"backend"})

	divergence := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "consistency_issues",
		Help: "Issues reported by the most recent consistency audit",
	}, []string{"kind"})

	auditRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "consistency_audits_total",
		Help: "Consistency audits by result",
	}, []string{"result"})

	repairTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "consistency_repairs_total",
		Help: "Repair attempts by issue kind and status",
	}, []string{"kind", "status"})

	orphansDeleted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orphan_rows_deleted_total",
		Help: "Rows removed by orphan cleanup",
	})

	notifierDropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sync_notifier_dropped_total",
		Help: "Sync events dropped because the delivery queue was full or stopped",
	})

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "course_cache_lookups_total",
		Help: "Course catalog cache lookups by result",
	}, []string{"result"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, enrollTotal, lockWait, lockTimeouts, divergence,
		auditRuns, repairTotal, orphansDeleted, notifierDropped, cacheLookups, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		enrollTotal:     enrollTotal,
		lockWait:        lockWait,
		lockTimeouts:    lockTimeouts,
		divergence:      divergence,
		auditRuns:       auditRuns,
		repairTotal:     repairTotal,
		orphansDeleted:  orphansDeleted,
		notifierDropped: notifierDropped,
		cacheLookups:    cacheLookups,
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordEnrollment counts an enrollment attempt. outcome is created, existing or failed.
func (m *MetricsService) RecordEnrollment(source models.EnrollmentSource, outcome string) {
	if m == nil {
		return
	}
	m.enrollTotal.WithLabelValues(string(source), outcome).Inc()
}

// ObserveLockWait implements lock.Observer.
func (m *MetricsService) ObserveLockWait(backend string, wait time.Duration, acquired bool) {
	if m == nil {
		return
	}
	m.lockWait.WithLabelValues(backend).Observe(wait.Seconds())
	if !acquired {
		m.lockTimeouts.WithLabelValues(backend).Inc()
	}
}

// RecordAudit stores the per-kind counts of the latest audit.
func (m *MetricsService) RecordAudit(report *models.ConsistencyReport, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.auditRuns.WithLabelValues("error").Inc()
		return
	}
	m.auditRuns.WithLabelValues("ok").Inc()
	for kind, count := range report.Counts {
		m.divergence.WithLabelValues(string(kind)).Set(float64(count))
	}
}

// RecordRepair counts one repair outcome.
func (m *MetricsService) RecordRepair(kind models.IssueKind, status models.RepairStatus) {
	if m == nil {
		return
	}
	m.repairTotal.WithLabelValues(string(kind), string(status)).Inc()
}

// RecordOrphansDeleted counts rows removed by bulk cleanup.
func (m *MetricsService) RecordOrphansDeleted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.orphansDeleted.Add(float64(n))
}

// RecordNotifierDrop counts a dropped sync event.
func (m *MetricsService) RecordNotifierDrop() {
	if m == nil {
		return
	}
	m.notifierDropped.Inc()
}

// RecordCacheLookup counts a course cache hit or miss.
func (m *MetricsService) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}
