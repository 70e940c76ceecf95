package tandang

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// RequestSignature derives the identity key used to coalesce concurrent
// identical requests: METHOD:PATH:digest(body). It is a dictionary key, not
// a cryptographic signature.
func RequestSignature(req *Request) string {
	sig := req.Method + ":" + req.Path + ":"
	if len(req.Body) > 0 {
		sum := sha256.Sum256(req.Body)
		sig += hex.EncodeToString(sum[:])
	}
	return sig
}

// DeduplicationEntry represents an in-flight request shared between callers.
type DeduplicationEntry struct {
	mu      sync.Mutex
	resp    *Response
	err     error
	done    chan struct{}
	waiters int
}

// DeduplicationTracker tracks in-flight requests so concurrent identical
// calls share one network round-trip. It only ever holds pending work:
// settled results are removed unconditionally on completion.
type DeduplicationTracker struct {
	mu      sync.Mutex
	entries map[string]*DeduplicationEntry
}

// NewDeduplicationTracker returns an in-memory de-duplication tracker.
func NewDeduplicationTracker() *DeduplicationTracker {
	return &DeduplicationTracker{
		entries: make(map[string]*DeduplicationEntry),
	}
}

// GetOrCreateEntry returns an existing entry (not owner) or creates a new
// one (owner=true). At most one entry exists per signature at any time.
func (dt *DeduplicationTracker) GetOrCreateEntry(signature string) (*DeduplicationEntry, bool) {
	dt.mu.Lock()
	defer dt.mu.Unlock()

	if entry, exists := dt.entries[signature]; exists {
		entry.mu.Lock()
		entry.waiters++
		entry.mu.Unlock()
		return entry, false
	}

	entry := &DeduplicationEntry{
		done:    make(chan struct{}),
		waiters: 1,
	}
	dt.entries[signature] = entry
	return entry, true
}

// Complete finalizes an entry, releases waiters and removes the entry from
// the tracker regardless of outcome, so a failed call can never poison the
// cache with a stale pending entry.
func (dt *DeduplicationTracker) Complete(signature string, resp *Response, err error) {
	dt.mu.Lock()
	entry, exists := dt.entries[signature]
	delete(dt.entries, signature)
	dt.mu.Unlock()

	if !exists {
		return
	}

	entry.mu.Lock()
	entry.resp = resp
	entry.err = err
	close(entry.done)
	entry.mu.Unlock()
}

// Wait blocks until the owning request settles or the waiter's context
// cancels. All waiters observe the same outcome.
func (entry *DeduplicationEntry) Wait(ctx context.Context) (*Response, error) {
	select {
	case <-entry.done:
		entry.mu.Lock()
		resp := entry.resp
		err := entry.err
		entry.mu.Unlock()
		return resp, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len reports the number of in-flight entries.
func (dt *DeduplicationTracker) Len() int {
	dt.mu.Lock()
	defer dt.mu.Unlock()
	return len(dt.entries)
}
