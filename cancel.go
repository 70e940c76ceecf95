package tandang

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// CancelHandle is a cooperative cancellation token for one in-flight
// request. Signaling it does not preempt in-flight I/O; it cancels the
// request context and flags the request so the retry loop stops.
type CancelHandle struct {
	id        string
	ctx       context.Context
	cancel    context.CancelFunc
	cancelled atomic.Bool
}

// ID returns the registry key for this handle.
func (h *CancelHandle) ID() string {
	return h.id
}

// Context returns the context governing the request's transport calls.
func (h *CancelHandle) Context() context.Context {
	return h.ctx
}

// Cancel signals the handle. Idempotent.
func (h *CancelHandle) Cancel() {
	h.cancelled.Store(true)
	h.cancel()
}

// Cancelled reports whether the handle has been signalled.
func (h *CancelHandle) Cancelled() bool {
	return h.cancelled.Load()
}

// CancelRegistry tracks one cancellation handle per in-flight request.
// Handles are registry-owned; callers hold only the key and the cancel
// capability.
type CancelRegistry struct {
	mu      sync.Mutex
	handles map[string]*CancelHandle
	seq     uint64
}

// NewCancelRegistry returns an empty registry.
func NewCancelRegistry() *CancelRegistry {
	return &CancelRegistry{
		handles: make(map[string]*CancelHandle),
	}
}

// Register creates a handle keyed by method, path and submission time,
// derived from the parent context. An explicit non-empty key overrides the
// composite. A colliding key gets a sequence suffix.
func (r *CancelRegistry) Register(parent context.Context, method, path, key string) *CancelHandle {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	r.mu.Lock()
	defer r.mu.Unlock()

	if key == "" {
		key = fmt.Sprintf("%s:%s:%d", method, path, time.Now().UnixNano())
	}
	if _, taken := r.handles[key]; taken {
		r.seq++
		key = fmt.Sprintf("%s#%d", key, r.seq)
	}

	handle := &CancelHandle{
		id:     key,
		ctx:    ctx,
		cancel: cancel,
	}
	r.handles[key] = handle
	return handle
}

// Cancel signals the handle for the given key and removes it, returning
// whether a live handle was found.
func (r *CancelRegistry) Cancel(key string) bool {
	r.mu.Lock()
	handle, exists := r.handles[key]
	delete(r.handles, key)
	r.mu.Unlock()

	if !exists {
		return false
	}
	handle.Cancel()
	return true
}

// CancelAll signals every live handle and clears the registry, returning
// the count cancelled. Intended for page or navigation teardown.
func (r *CancelRegistry) CancelAll() int {
	r.mu.Lock()
	handles := r.handles
	r.handles = make(map[string]*CancelHandle)
	r.mu.Unlock()

	for _, handle := range handles {
		handle.Cancel()
	}
	return len(handles)
}

// Release removes a handle on normal settlement and frees its context.
// Mandatory cleanup: without it the registry grows for the session's
// lifetime.
func (r *CancelRegistry) Release(key string) {
	r.mu.Lock()
	handle, exists := r.handles[key]
	delete(r.handles, key)
	r.mu.Unlock()

	if exists {
		handle.cancel()
	}
}

// Len reports the number of live handles.
func (r *CancelRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}
