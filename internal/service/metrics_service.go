package service

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Review outcome labels.
const (
	OutcomeValidated        = "validated"
	OutcomeRejected         = "rejected"
	OutcomeValidationFailed = "validation_failed"
	OutcomeConflict         = "conflict"
	OutcomeForbidden        = "forbidden"
)

// MetricsService encapsulates Prometheus instrumentation for the intake workflow.
type MetricsService struct {
	registry           *prometheus.Registry
	handler            http.Handler
	requestDuration    *prometheus.HistogramVec
	requestTotal       *prometheus.CounterVec
	cacheLatency       prometheus.Observer
	cacheWrite         prometheus.Observer
	cacheLookups       *prometheus.CounterVec
	reviewTransitions  *prometheus.CounterVec
	uploads            *prometheus.CounterVec
	extractionRuns     *prometheus.CounterVec
	extractionDuration prometheus.Observer
}

// NewMetricsService registers the collectors on a private registry.
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
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache writes",
		Buckets: prometheus.DefBuckets,
	})

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_lookups_total",
		Help: "Cache lookups by result",
	}, []string{"result"})

	reviewTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "review_transitions_total",
		Help: "Review attempts by outcome",
	}, []string{"outcome"})

	uploads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "document_uploads_total",
		Help: "Document uploads by result",
	}, []string{"result"})

	extractionRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "extraction_runs_total",
		Help: "Extraction ingest runs by result",
	}, []string{"result"})

	extractionDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "extraction_duration_seconds",
		Help:    "Time spent in the extraction service per document",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		requestDuration, requestTotal,
		cacheLatency, cacheWrite, cacheLookups,
		reviewTransitions, uploads, extractionRuns, extractionDuration,
		goroutines,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &MetricsService{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		cacheLatency:       cacheLatency,
		cacheWrite:         cacheWrite,
		cacheLookups:       cacheLookups,
		reviewTransitions:  reviewTransitions,
		uploads:            uploads,
		extractionRuns:     extractionRuns,
		extractionDuration: extractionDuration,
	}
}

// Registry exposes the underlying registry for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
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
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordReview counts a review attempt by outcome.
func (m *MetricsService) RecordReview(outcome string) {
	if m == nil {
		return
	}
	m.reviewTransitions.WithLabelValues(outcome).Inc()
}

// RecordUpload counts an upload attempt.
func (m *MetricsService) RecordUpload(ok bool) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(resultLabel(ok)).Inc()
}

// RecordExtraction counts an ingest run and its latency.
func (m *MetricsService) RecordExtraction(ok bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.extractionRuns.WithLabelValues(resultLabel(ok)).Inc()
	m.extractionDuration.Observe(duration.Seconds())
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
