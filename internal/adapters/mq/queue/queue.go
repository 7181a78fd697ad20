// Package queue is the bounded admission queue between uploads and workers.
//
// Enqueue never blocks: a full queue rejects the job so the upload path can
// answer with backpressure instead of piling up work.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/okian/pickle/internal/domain/model"
	"github.com/okian/pickle/pkg/metrics"
)

const defaultQueueCapacity = 16

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue admits a job. It returns ErrFull or ErrClosed when it cannot.
	Enqueue(ctx context.Context, j model.Job) error
	// Dequeue returns a channel of admitted jobs, closed when the queue is
	// closed and drained or ctx is done.
	Dequeue(ctx context.Context) <-chan model.Job
	// Len returns the current number of waiting jobs.
	Len(ctx context.Context) int
	// Cap returns the queue capacity.
	Cap() int
	// Close stops admission. Jobs already admitted are still delivered.
	Close() error
	// Drain closes the queue and returns the jobs no worker received.
	Drain() []model.Job
	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

type ticket struct {
	job      model.Job
	enqueued time.Time
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	tickets  chan ticket
	capacity int

	mu      sync.RWMutex
	closed  bool
	orphans []model.Job // taken off the channel but never handed to a worker
	readers sync.WaitGroup
}

var _ Queue = (*InMemoryQueue)(nil)

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.tickets = make(chan ticket, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0.0)
	return q
}

// Enqueue admits a job without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, j model.Job) error { //nolint:gocritic // hugeParam: passed by value into the channel
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return err
	}

	select {
	case q.tickets <- ticket{job: j, enqueued: time.Now()}:
		metrics.RecordQueueEnqueue()
		q.updateGauges()
		return nil
	default:
		metrics.RecordQueueRejected()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return ErrFull
	}
}

// Dequeue returns a channel that delivers admitted jobs.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan model.Job {
	out := make(chan model.Job)
	q.readers.Add(1)
	go func() {
		defer q.readers.Done()
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case t, ok := <-q.tickets:
				if !ok {
					return
				}
				select {
				case out <- t.job:
					metrics.RecordQueueDequeue()
					metrics.RecordQueueWait(float64(time.Since(t.enqueued).Milliseconds()))
					q.updateGauges()
				case <-ctx.Done():
					q.mu.Lock()
					q.orphans = append(q.orphans, t.job)
					q.mu.Unlock()
					return
				}
			}
		}
	}()
	return out
}

func (q *InMemoryQueue) updateGauges() {
	size := len(q.tickets)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
}

// Len returns the current number of waiting jobs.
func (q *InMemoryQueue) Len(ctx context.Context) int {
	q.updateGauges()
	return len(q.tickets)
}

// Cap returns the queue capacity.
func (q *InMemoryQueue) Cap() int { return q.capacity }

// Close stops admission.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.tickets)
	q.closed = true
	return nil
}

// Drain closes the queue and returns every admitted job that no worker
// received, so the caller can settle them. Every Dequeue context must be
// done before Drain is called.
func (q *InMemoryQueue) Drain() []model.Job {
	_ = q.Close()
	q.readers.Wait()

	q.mu.Lock()
	out := q.orphans
	q.orphans = nil
	q.mu.Unlock()

	for t := range q.tickets {
		out = append(out, t.job)
	}
	q.updateGauges()
	return out
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
