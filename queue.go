package tandang

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
)

// ExecuteFunc is one unit of queued work, usually a closure over
// Client.Execute.
type ExecuteFunc func(ctx context.Context) (*Response, error)

type queueItem struct {
	ctx      context.Context
	fn       ExecuteFunc
	priority int
	out      chan QueueOutcome
}

// RequestQueue admits a bounded number of simultaneously executing requests
// from a larger prioritized backlog. It is meant for bulk fan-out where
// unconstrained concurrency would overwhelm the backend; ad-hoc single
// calls should go straight to the client.
//
// A single drain loop, guarded by an atomic flag, pops batches of up to
// maxConcurrent items in descending priority order (stable for ties) and
// waits for the whole batch to settle before pulling the next.
type RequestQueue struct {
	mu            sync.Mutex
	backlog       []*queueItem
	maxConcurrent int
	draining      atomic.Bool

	logger  Logger
	debug   *DebugConfig
	metrics *MetricsCollector
}

// NewRequestQueue returns a queue executing at most maxConcurrent items at
// a time (default 5 when given a non-positive bound).
func NewRequestQueue(maxConcurrent int) *RequestQueue {
	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}
	return &RequestQueue{
		maxConcurrent: maxConcurrent,
	}
}

// Enqueue submits work with a priority and returns a channel delivering the
// item's own outcome, independent of sibling outcomes in its batch. The
// channel is buffered; the result is never dropped.
func (q *RequestQueue) Enqueue(ctx context.Context, fn ExecuteFunc, priority int) <-chan QueueOutcome {
	if ctx == nil {
		ctx = context.Background()
	}
	item := &queueItem{
		ctx:      ctx,
		fn:       fn,
		priority: priority,
		out:      make(chan QueueOutcome, 1),
	}

	q.mu.Lock()
	q.backlog = append(q.backlog, item)
	sort.SliceStable(q.backlog, func(i, j int) bool {
		return q.backlog[i].priority > q.backlog[j].priority
	})
	depth := len(q.backlog)
	q.mu.Unlock()

	q.metrics.RecordQueueDepth(depth)

	if q.debugEnabled() && q.debug.LogQueue && q.logger != nil {
		q.logger.Debug("Queued request", "priority", priority, "depth", depth)
	}

	if q.draining.CompareAndSwap(false, true) {
		go q.drain()
	}
	return item.out
}

// Len reports the current backlog depth, excluding executing items.
func (q *RequestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.backlog)
}

func (q *RequestQueue) drain() {
	for {
		batch, depth := q.nextBatch()
		q.metrics.RecordQueueDepth(depth)
		if len(batch) == 0 {
			q.draining.Store(false)
			// An item may have been enqueued between the empty pop and the
			// flag clear; reclaim the loop if so.
			q.mu.Lock()
			pending := len(q.backlog)
			q.mu.Unlock()
			if pending == 0 || !q.draining.CompareAndSwap(false, true) {
				return
			}
			continue
		}

		if q.debugEnabled() && q.debug.LogQueue && q.logger != nil {
			q.logger.Debug("Draining batch", "size", len(batch))
		}
		q.metrics.RecordQueueBatch(len(batch))

		var wg sync.WaitGroup
		for _, item := range batch {
			wg.Add(1)
			go func(item *queueItem) {
				defer wg.Done()
				resp, err := item.fn(item.ctx)
				item.out <- QueueOutcome{Response: resp, Err: err}
			}(item)
		}
		wg.Wait()
	}
}

// nextBatch pops up to maxConcurrent items and reports the remaining depth
// so the depth gauge tracks pops as well as pushes.
func (q *RequestQueue) nextBatch() ([]*queueItem, int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.maxConcurrent
	if n > len(q.backlog) {
		n = len(q.backlog)
	}
	batch := q.backlog[:n]
	q.backlog = q.backlog[n:]
	return batch, len(q.backlog)
}

func (q *RequestQueue) debugEnabled() bool {
	return q.debug != nil && q.debug.Enabled
}
