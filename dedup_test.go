package tandang

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRequestSignature(t *testing.T) {
	get := &Request{Method: "GET", Path: "/health"}
	getAgain := &Request{Method: "GET", Path: "/health"}
	post := &Request{Method: "POST", Path: "/health"}
	withBody := &Request{Method: "POST", Path: "/health", Body: []byte(`{"a":1}`)}
	otherBody := &Request{Method: "POST", Path: "/health", Body: []byte(`{"a":2}`)}

	if RequestSignature(get) != RequestSignature(getAgain) {
		t.Error("identical requests should share a signature")
	}
	if RequestSignature(get) == RequestSignature(post) {
		t.Error("method must differentiate signatures")
	}
	if RequestSignature(post) == RequestSignature(withBody) {
		t.Error("body must differentiate signatures")
	}
	if RequestSignature(withBody) == RequestSignature(otherBody) {
		t.Error("different bodies must differentiate signatures")
	}
}

func TestDeduplicationTrackerOwnership(t *testing.T) {
	tracker := NewDeduplicationTracker()

	entry1, owner1 := tracker.GetOrCreateEntry("sig")
	if !owner1 {
		t.Fatal("first caller should own the entry")
	}

	entry2, owner2 := tracker.GetOrCreateEntry("sig")
	if owner2 {
		t.Fatal("second caller should not own the entry")
	}
	if entry1 != entry2 {
		t.Fatal("both callers should share one entry")
	}

	want := &Response{StatusCode: 200, Body: []byte("ok")}
	tracker.Complete("sig", want, nil)

	resp, err := entry2.Wait(context.Background())
	if err != nil {
		t.Fatalf("waiter got error: %v", err)
	}
	if resp != want {
		t.Errorf("waiter should observe the shared response")
	}
}

func TestDeduplicationTrackerRemovesOnCompletion(t *testing.T) {
	tracker := NewDeduplicationTracker()

	tracker.GetOrCreateEntry("sig")
	tracker.Complete("sig", nil, context.Canceled)

	if tracker.Len() != 0 {
		t.Error("settled entries must be removed, success or failure")
	}

	// A fresh call after settlement gets a new entry and owns it.
	if _, owner := tracker.GetOrCreateEntry("sig"); !owner {
		t.Error("new call after settlement should own a fresh entry")
	}
}

func TestDeduplicationWaitHonorsContext(t *testing.T) {
	tracker := NewDeduplicationTracker()
	entry, _ := tracker.GetOrCreateEntry("sig")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := entry.Wait(ctx); err == nil {
		t.Error("waiter with cancelled context should not block")
	}
}

func TestConcurrentIdenticalCallsShareOneRoundTrip(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"status":"up"}`)); err != nil {
			t.Errorf("write response: %v", err)
		}
	}))
	defer server.Close()

	client := New(
		WithBaseURL(server.URL),
		WithMaxRetries(0),
	)

	var wg sync.WaitGroup
	results := make([]*Response, 3)
	errs := make([]error, 3)

	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = client.Get(context.Background(), "/health")
		}(i)
	}
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("expected 1 transport call, got %d", got)
	}
	for i := 0; i < 3; i++ {
		if errs[i] != nil {
			t.Errorf("caller %d failed: %v", i, errs[i])
			continue
		}
		if string(results[i].Body) != `{"status":"up"}` {
			t.Errorf("caller %d got body %q", i, results[i].Body)
		}
	}
}

func TestSkipDedupAlwaysCalls(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(
		WithBaseURL(server.URL),
		WithMaxRetries(0),
	)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.Execute(context.Background(), &Request{
				Method:    "GET",
				Path:      "/upload",
				SkipDedup: true,
			})
			if err != nil {
				t.Errorf("request failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("expected 3 transport calls with SkipDedup, got %d", got)
	}
}

func TestDedupFailureSharedAndNotPoisoned(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			time.Sleep(100 * time.Millisecond)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(
		WithBaseURL(server.URL),
		WithMaxRetries(0),
	)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = client.Get(context.Background(), "/missing")
		}(i)
	}
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected 1 transport call, got %d", got)
	}
	for i, err := range errs {
		if err == nil {
			t.Errorf("caller %d should observe the shared failure", i)
		}
	}

	// The failed entry must not linger: the next call issues its own round-trip.
	if _, err := client.Get(context.Background(), "/missing"); err != nil {
		t.Errorf("follow-up call should succeed, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("expected a fresh transport call after settlement, got %d total", got)
	}
}

func TestDedupWaiterCancelReportsCancelled(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(WithBaseURL(server.URL))

	ownerDone := make(chan struct{})
	go func() {
		defer close(ownerDone)
		if _, err := client.Get(context.Background(), "/shared"); err != nil {
			t.Errorf("owner failed: %v", err)
		}
	}()

	deadline := time.Now().Add(2 * time.Second)
	for client.dedup.Len() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("owner never registered in flight")
		}
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithCancel(context.Background())
	waiterErr := make(chan error, 1)
	go func() {
		_, err := client.Get(ctx, "/shared")
		waiterErr <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	// A waiter abandoning the shared call gets the same error surface as
	// any other cancelled request, not a bare context error.
	err := <-waiterErr
	if !IsCancelled(err) {
		t.Errorf("expected a cancelled outcome, got %v", err)
	}
	var clientErr *ClientError
	if !errors.As(err, &clientErr) || clientErr.Type != ErrorTypeCancelled {
		t.Errorf("expected Cancelled error type, got %v", err)
	}

	close(release)
	<-ownerDone
}
