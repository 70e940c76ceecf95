package tandang

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the request lifecycle:
// per-attempt outcomes, retries, deduplication, queueing and cancellation.
// It is safe for concurrent use and all methods tolerate a nil receiver.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec

	retriesTotal      *prometheus.CounterVec
	deduplicationHits *prometheus.CounterVec

	queueDepth     prometheus.Gauge
	queueBatchSize prometheus.Histogram

	cancellationsTotal prometheus.Counter

	errorsTotal *prometheus.CounterVec

	registry prometheus.Registerer
}

// NewMetricsCollector creates a metrics collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using the supplied
// registerer, letting tests and multi-client processes isolate metrics.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	return &MetricsCollector{
		requestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tandang_requests_total",
				Help: "Total number of API requests made",
			},
			[]string{"method", "status_code", "path"},
		),
		requestDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tandang_request_duration_seconds",
				Help:    "Duration of API requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "status_code", "path"},
		),
		requestsInFlight: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tandang_requests_in_flight",
				Help: "Number of API requests currently in flight",
			},
			[]string{"method", "path"},
		),
		retriesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tandang_retries_total",
				Help: "Total number of retry attempts",
			},
			[]string{"method", "path", "attempt"},
		),
		deduplicationHits: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tandang_deduplication_hits_total",
				Help: "Total number of requests coalesced onto an in-flight call",
			},
			[]string{"method", "path"},
		),
		queueDepth: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "tandang_queue_depth",
				Help: "Current number of requests waiting in the queue backlog",
			},
		),
		queueBatchSize: promauto.With(registry).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tandang_queue_batch_size",
				Help:    "Size of executed queue batches",
				Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
			},
		),
		cancellationsTotal: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "tandang_cancellations_total",
				Help: "Total number of cancelled requests",
			},
		),
		errorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tandang_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type", "method", "path"},
		),
		registry: registry,
	}
}

// RecordRequest records one settled attempt with its outcome and duration.
func (mc *MetricsCollector) RecordRequest(method, path string, statusCode int, duration time.Duration) {
	if mc == nil {
		return
	}

	code := strconv.Itoa(statusCode)
	mc.requestsTotal.WithLabelValues(method, code, path).Inc()
	mc.requestDuration.WithLabelValues(method, code, path).Observe(duration.Seconds())
}

// RecordRequestStart increments the in-flight gauge.
func (mc *MetricsCollector) RecordRequestStart(method, path string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(method, path).Inc()
}

// RecordRequestEnd decrements the in-flight gauge.
func (mc *MetricsCollector) RecordRequestEnd(method, path string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(method, path).Dec()
}

// RecordRetry increments the retry counter for an attempt.
func (mc *MetricsCollector) RecordRetry(method, path string, attempt int) {
	if mc == nil {
		return
	}

	mc.retriesTotal.WithLabelValues(method, path, strconv.Itoa(attempt)).Inc()
}

// RecordDeduplicationHit increments the coalesced-request counter.
func (mc *MetricsCollector) RecordDeduplicationHit(method, path string) {
	if mc == nil {
		return
	}

	mc.deduplicationHits.WithLabelValues(method, path).Inc()
}

// RecordQueueDepth sets the backlog depth gauge.
func (mc *MetricsCollector) RecordQueueDepth(depth int) {
	if mc == nil {
		return
	}

	mc.queueDepth.Set(float64(depth))
}

// RecordQueueBatch observes the size of one executed batch.
func (mc *MetricsCollector) RecordQueueBatch(size int) {
	if mc == nil {
		return
	}

	mc.queueBatchSize.Observe(float64(size))
}

// RecordCancellation increments the cancelled-request counter.
func (mc *MetricsCollector) RecordCancellation() {
	if mc == nil {
		return
	}

	mc.cancellationsTotal.Inc()
}

// RecordError increments the error counter by type.
func (mc *MetricsCollector) RecordError(errorType, method, path string) {
	if mc == nil {
		return
	}

	mc.errorsTotal.WithLabelValues(errorType, method, path).Inc()
}
