package tandang

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsNilReceiverSafe(t *testing.T) {
	var mc *MetricsCollector

	mc.RecordRequest("GET", "/x", 200, time.Millisecond)
	mc.RecordRequestStart("GET", "/x")
	mc.RecordRequestEnd("GET", "/x")
	mc.RecordRetry("GET", "/x", 1)
	mc.RecordDeduplicationHit("GET", "/x")
	mc.RecordQueueDepth(3)
	mc.RecordQueueBatch(5)
	mc.RecordCancellation()
	mc.RecordError(ErrorTypeServer, "GET", "/x")
}

func TestMetricsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	mc := NewMetricsCollectorWithRegistry(registry)

	mc.RecordRequest("GET", "/items", 200, 50*time.Millisecond)
	mc.RecordRequest("GET", "/items", 200, 30*time.Millisecond)
	mc.RecordRetry("GET", "/items", 1)
	mc.RecordDeduplicationHit("GET", "/items")
	mc.RecordCancellation()
	mc.RecordError(ErrorTypeServer, "GET", "/items")

	requests := testutil.ToFloat64(mc.requestsTotal.WithLabelValues("GET", "200", "/items"))
	if requests != 2 {
		t.Errorf("requests_total = %v, want 2", requests)
	}
	retries := testutil.ToFloat64(mc.retriesTotal.WithLabelValues("GET", "/items", "1"))
	if retries != 1 {
		t.Errorf("retries_total = %v, want 1", retries)
	}
	hits := testutil.ToFloat64(mc.deduplicationHits.WithLabelValues("GET", "/items"))
	if hits != 1 {
		t.Errorf("deduplication_hits_total = %v, want 1", hits)
	}
	if got := testutil.ToFloat64(mc.cancellationsTotal); got != 1 {
		t.Errorf("cancellations_total = %v, want 1", got)
	}
	errs := testutil.ToFloat64(mc.errorsTotal.WithLabelValues(ErrorTypeServer, "GET", "/items"))
	if errs != 1 {
		t.Errorf("errors_total = %v, want 1", errs)
	}
}

func TestMetricsInFlightGauge(t *testing.T) {
	registry := prometheus.NewRegistry()
	mc := NewMetricsCollectorWithRegistry(registry)

	mc.RecordRequestStart("GET", "/slow")
	mc.RecordRequestStart("GET", "/slow")
	if got := testutil.ToFloat64(mc.requestsInFlight.WithLabelValues("GET", "/slow")); got != 2 {
		t.Errorf("in_flight = %v, want 2", got)
	}

	mc.RecordRequestEnd("GET", "/slow")
	if got := testutil.ToFloat64(mc.requestsInFlight.WithLabelValues("GET", "/slow")); got != 1 {
		t.Errorf("in_flight after end = %v, want 1", got)
	}
}

func TestQueueDepthGaugeFallsAsBatchesPop(t *testing.T) {
	registry := prometheus.NewRegistry()
	mc := NewMetricsCollectorWithRegistry(registry)

	queue := NewRequestQueue(2)
	queue.metrics = mc

	var outs []<-chan QueueOutcome
	for i := 0; i < 6; i++ {
		outs = append(outs, queue.Enqueue(context.Background(), func(ctx context.Context) (*Response, error) {
			time.Sleep(10 * time.Millisecond)
			return nil, nil
		}, 0))
	}

	for i, out := range outs {
		select {
		case <-out:
		case <-time.After(5 * time.Second):
			t.Fatalf("item %d never settled", i)
		}
	}

	// Popping the final batch empties the backlog, so the gauge must read
	// zero once everything settled, not the high-water enqueue depth.
	if got := testutil.ToFloat64(mc.queueDepth); got != 0 {
		t.Errorf("queue_depth = %v after draining, want 0", got)
	}
}

func TestClientRecordsMetrics(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	registry := prometheus.NewRegistry()
	mc := NewMetricsCollectorWithRegistry(registry)

	client := New(
		WithBaseURL(server.URL),
		WithBaseDelay(10*time.Millisecond),
		WithMetricsCollector(mc),
	)

	if _, err := client.Get(context.Background(), "/items"); err != nil {
		t.Fatalf("request failed: %v", err)
	}

	requests := testutil.ToFloat64(mc.requestsTotal.WithLabelValues("GET", "200", "/items"))
	if requests != 1 {
		t.Errorf("requests_total = %v, want 1", requests)
	}
	retries := testutil.ToFloat64(mc.retriesTotal.WithLabelValues("GET", "/items", "1"))
	if retries != 1 {
		t.Errorf("retries_total = %v, want 1", retries)
	}
	if got := testutil.ToFloat64(mc.requestsInFlight.WithLabelValues("GET", "/items")); got != 0 {
		t.Errorf("in_flight should settle back to 0, got %v", got)
	}
}
