package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/clearance-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP layer,
// the cache and the approval workflow.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	submissions        *prometheus.CounterVec
	approvals          *prometheus.CounterVec
	formsCompleted     *prometheus.CounterVec
	clearanceCompleted prometheus.Counter
	sideEffectFailures *prometheus.CounterVec
	auditDeliveries    *prometheus.CounterVec
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

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	submissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clearance_submissions_total",
		Help: "Form submissions accepted, by form kind",
	}, []string{"kind"})

	approvals := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clearance_approvals_total",
		Help: "Approval slots signed, by form kind",
	}, []string{"kind"})

	formsCompleted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clearance_forms_completed_total",
		Help: "Forms that reached overall approval, by form kind",
	}, []string{"kind"})

	clearanceCompleted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "clearance_completed_total",
		Help: "Students whose clearance became complete",
	})

	sideEffectFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clearance_side_effect_failures_total",
		Help: "Best-effort collaborator calls that failed",
	}, []string{"collaborator"})

	auditDeliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clearance_audit_deliveries_total",
		Help: "Audit ledger delivery attempts by outcome",
	}, []string{"status"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHits, cacheMisses,
		submissions, approvals, formsCompleted, clearanceCompleted, sideEffectFailures, auditDeliveries,
		goroutines,
	)

	return &MetricsService{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		cacheLatency:       cacheLatency,
		cacheWrite:         cacheWrite,
		cacheHits:          cacheHits,
		cacheMisses:        cacheMisses,
		submissions:        submissions,
		approvals:          approvals,
		formsCompleted:     formsCompleted,
		clearanceCompleted: clearanceCompleted,
		sideEffectFailures: sideEffectFailures,
		auditDeliveries:    auditDeliveries,
	}
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

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
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

// RecordCacheOperation records cache hit/miss metrics.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordSubmission counts an accepted form submission.
func (m *MetricsService) RecordSubmission(kind models.FormKind) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(string(kind)).Inc()
}

// RecordApproval counts a signed slot and, when completed, the form reaching overall approval.
func (m *MetricsService) RecordApproval(kind models.FormKind, completed bool) {
	if m == nil {
		return
	}
	m.approvals.WithLabelValues(string(kind)).Inc()
	if completed {
		m.formsCompleted.WithLabelValues(string(kind)).Inc()
	}
}

// RecordClearanceCompleted counts a student reaching full clearance.
func (m *MetricsService) RecordClearanceCompleted() {
	if m == nil {
		return
	}
	m.clearanceCompleted.Inc()
}

// RecordSideEffectFailure counts a swallowed notification, ledger or cache failure.
func (m *MetricsService) RecordSideEffectFailure(collaborator string) {
	if m == nil {
		return
	}
	m.sideEffectFailures.WithLabelValues(collaborator).Inc()
}

// RecordAuditDelivery counts a ledger delivery attempt by its outcome.
func (m *MetricsService) RecordAuditDelivery(status string) {
	if m == nil {
		return
	}
	m.auditDeliveries.WithLabelValues(status).Inc()
}
