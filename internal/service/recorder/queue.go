package recorder

import (
	"context"
	"sync"
	"time"
)

type job func(ctx context.Context)

// writeQueue runs persistence jobs on one background goroutine, in order.
type writeQueue struct {
	mu      sync.Mutex
	jobs    chan job
	closed  bool
	timeout time.Duration
	done    chan struct{}
}

func newWriteQueue(size int, timeout time.Duration) *writeQueue {
	q := &writeQueue{
		jobs:    make(chan job, size),
		timeout: timeout,
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *writeQueue) run() {
	defer close(q.done)
	for j := range q.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		j(ctx)
		cancel()
	}
}

// submit enqueues j without blocking. It reports false when the queue is
// full or closed.
func (q *writeQueue) submit(j job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	select {
	case q.jobs <- j:
		return true
	default:
		return false
	}
}

// close stops accepting jobs and waits for queued ones to finish or ctx to end.
func (q *writeQueue) close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
