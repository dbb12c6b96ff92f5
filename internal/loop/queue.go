package loop

import (
	"sync"
)

// pending is a submitted request waiting for the Run loop.
type pending struct {
	req  Request
	done chan Result
}

// requestQueue is a thread-safe FIFO of submitted requests.
//
// Submit may be called from any goroutine (HTTP handlers, the CLI) while a
// single Run loop dequeues. Waiting is channel based so Run can select on
// its context alongside the queue.
type requestQueue struct {
	mu      sync.Mutex
	pending []*pending
	closed  bool
	signal  chan struct{} // buffered, size 1
}

func newRequestQueue() *requestQueue {
	return &requestQueue{
		pending: make([]*pending, 0, 16),
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue adds p to the back of the queue.
// Returns false if the queue is closed.
func (q *requestQueue) Enqueue(p *pending) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.pending = append(q.pending, p)

	// Buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front request without blocking.
func (q *requestQueue) TryDequeue() (*pending, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil, false
	}
	p := q.pending[0]
	q.pending[0] = nil
	if len(q.pending) == 1 {
		q.pending = q.pending[:0]
	} else {
		q.pending = q.pending[1:]
	}
	return p, true
}

// Wait returns a channel that signals when requests may be available.
func (q *requestQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued requests.
func (q *requestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close rejects further Enqueue calls. Queued requests stay queued.
func (q *requestQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Drain closes the queue and removes everything still queued.
func (q *requestQueue) Drain() []*pending {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	rest := q.pending
	q.pending = nil
	return rest
}

func (q *requestQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
