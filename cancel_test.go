package tandang

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestCancelRegistryRegisterAndCancel(t *testing.T) {
	registry := NewCancelRegistry()

	handle := registry.Register(context.Background(), "GET", "/items", "")
	if handle.Cancelled() {
		t.Error("fresh handle should not be cancelled")
	}
	if !strings.HasPrefix(handle.ID(), "GET:/items:") {
		t.Errorf("composite key expected, got %q", handle.ID())
	}
	if registry.Len() != 1 {
		t.Errorf("expected 1 live handle, got %d", registry.Len())
	}

	if !registry.Cancel(handle.ID()) {
		t.Error("cancel of a live handle should report true")
	}
	if !handle.Cancelled() {
		t.Error("handle should be cancelled")
	}
	if registry.Len() != 0 {
		t.Error("cancelled handle should be removed from the registry")
	}

	if registry.Cancel(handle.ID()) {
		t.Error("cancel of a missing handle should report false")
	}
}

func TestCancelRegistryExplicitKey(t *testing.T) {
	registry := NewCancelRegistry()

	handle := registry.Register(context.Background(), "GET", "/items", "my-key")
	if handle.ID() != "my-key" {
		t.Errorf("expected explicit key, got %q", handle.ID())
	}
}

func TestCancelRegistryCollidingKeys(t *testing.T) {
	registry := NewCancelRegistry()

	first := registry.Register(context.Background(), "GET", "/items", "k")
	second := registry.Register(context.Background(), "GET", "/items", "k")

	if first.ID() == second.ID() {
		t.Error("colliding keys must be disambiguated")
	}
	if registry.Len() != 2 {
		t.Errorf("expected 2 live handles, got %d", registry.Len())
	}
}

func TestCancelRegistryCancelAll(t *testing.T) {
	registry := NewCancelRegistry()

	handles := make([]*CancelHandle, 3)
	for i := range handles {
		handles[i] = registry.Register(context.Background(), "GET", "/items", "")
	}

	if got := registry.CancelAll(); got != 3 {
		t.Errorf("expected 3 cancelled, got %d", got)
	}
	for i, handle := range handles {
		if !handle.Cancelled() {
			t.Errorf("handle %d not cancelled", i)
		}
	}
	if registry.Len() != 0 {
		t.Error("registry should be empty after CancelAll")
	}
}

func TestCancelRegistryReleaseDoesNotMarkCancelled(t *testing.T) {
	registry := NewCancelRegistry()

	handle := registry.Register(context.Background(), "GET", "/items", "k")
	registry.Release("k")

	if handle.Cancelled() {
		t.Error("release on settlement must not mark the request cancelled")
	}
	if registry.Len() != 0 {
		t.Error("released handle should be removed")
	}
}

func TestCancelHandleContextPropagation(t *testing.T) {
	registry := NewCancelRegistry()
	handle := registry.Register(context.Background(), "GET", "/items", "")

	handle.Cancel()
	select {
	case <-handle.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("cancelling the handle should cancel its context")
	}
}

func TestCancelMidBackoffStopsRetrying(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(
		WithBaseURL(server.URL),
		WithMaxRetries(3),
		WithBaseDelay(300*time.Millisecond),
	)

	done := make(chan error, 1)
	go func() {
		_, err := client.Execute(context.Background(), &Request{
			Method:    "GET",
			Path:      "/flaky",
			CancelKey: "flaky-call",
		})
		done <- err
	}()

	// Wait for the first attempt to fail, then cancel during its backoff.
	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&hits) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)

	if !client.CancelRequest("flaky-call") {
		t.Fatal("expected a live handle to cancel")
	}

	var err error
	select {
	case err = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled request did not settle")
	}

	if !IsCancelled(err) {
		t.Errorf("expected a cancelled-marked error, got %v", err)
	}
	if !errors.Is(err, ErrCancelled) {
		t.Error("cancelled error should match ErrCancelled")
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("expected no attempt after cancel, got %d attempts", got)
	}
	if client.InFlight() != 0 {
		t.Error("cancellation handle should be removed from the registry")
	}
}

func TestCancellationWinsLateSuccessRace(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	// The middleware cancels the request just as the successful response
	// lands, simulating a cancel racing the network.
	var c *Client
	c = New(
		WithBaseURL(server.URL),
		WithMaxRetries(0),
		WithMiddleware(func(req *http.Request, next RoundTripper) (*http.Response, error) {
			resp, err := next.RoundTrip(req)
			c.CancelRequest("raced")
			return resp, err
		}),
	)

	_, err := c.Execute(context.Background(), &Request{
		Method:    "GET",
		Path:      "/ok",
		CancelKey: "raced",
	})

	if !IsCancelled(err) {
		t.Errorf("late success must be discarded in favour of the cancellation, got %v", err)
	}
}
