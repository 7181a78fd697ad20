// Package worker runs admitted jobs on a fixed pool of goroutines.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/pickle/internal/domain/model"
	"github.com/okian/pickle/pkg/logger"
	"github.com/okian/pickle/pkg/metrics"
)

// Default worker configuration constants.
const (
	metricsUpdateInterval = 5 * time.Second
	poolShutdownTimeout   = 30 * time.Second
)

// Processor drives one job to a terminal state.
type Processor interface {
	// Process runs the job and reports how it ended.
	Process(ctx context.Context, job model.Job) model.Outcome
	// Fail settles a job that could not be processed.
	Fail(ctx context.Context, job model.Job, err error) model.Outcome
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Job
}

// Worker runs jobs until its channel closes or it is shut down.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)
	// Shutdown stops the worker after its current job.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	jobs      <-chan model.Job
	processor Processor
	name      string
	busy      *atomic.Int64

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker reading from jobs.
func NewInMemoryWorker(jobs <-chan model.Job, p Processor, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		jobs:      jobs,
		processor: p,
		name:      "worker",
		busy:      &atomic.Int64{},
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.Get(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-w.jobs:
			if !ok {
				return
			}
			w.handle(ctx, job)
		}
	}
}

// Shutdown stops the worker once its current job has ended.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// handle runs one job. A panic anywhere below is turned into a failed job
// so it never reaches other jobs or the process.
func (w *InMemoryWorker) handle(ctx context.Context, job model.Job) {
	start := time.Now()
	w.busy.Add(1)
	defer func() {
		w.busy.Add(-1)
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	log := w.logger.With(logger.JobID(job.ID))
	log.Info(ctx, "job started", logger.String("filename", job.Filename))

	out := w.run(ctx, job)
	if out.Failed() {
		metrics.RecordWorkerError()
		log.Error(ctx, "job failed", logger.Error(out.Err), logger.Int("frames", out.Frames),
			logger.Duration("took", time.Since(start)))
		return
	}
	log.Info(ctx, "job completed", logger.Int("frames", out.Frames), logger.Duration("took", time.Since(start)))
}

func (w *InMemoryWorker) run(ctx context.Context, job model.Job) (out model.Outcome) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		metrics.RecordWorkerPanic()
		metrics.RecordErrorByComponent("worker", "panic")
		w.logger.Error(ctx, "recovered panic", logger.JobID(job.ID),
			logger.Any("panic", r), logger.String("stack", string(debug.Stack())))
		out = w.processor.Fail(ctx, job, fmt.Errorf("%w: %v", ErrPanic, r))
	}()
	return w.processor.Process(ctx, job)
}

// Pool manages a fixed set of workers sharing one job channel.
type Pool struct {
	workers   []*InMemoryWorker
	queue     Queue
	processor Processor
	size      int
	busy      atomic.Int64

	shutdown chan struct{}
	logger   logger.Logger
}

// NewPool creates a pool of workerCount workers. A non-positive count uses
// one worker per CPU.
func NewPool(workerCount int, q Queue, p Processor, opts ...PoolOption) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}
	pool := &Pool{
		queue:     q,
		processor: p,
		size:      workerCount,
		shutdown:  make(chan struct{}),
		logger:    logger.Get(),
	}
	for _, opt := range opts {
		opt(pool)
	}
	pool.logger = pool.logger.Named("worker-pool")

	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerActiveCount(0)
	metrics.UpdateWorkerIdleCount(workerCount)
	return pool
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	jobs := p.queue.Dequeue(ctx)
	p.workers = make([]*InMemoryWorker, p.size)
	for i := range p.workers {
		w := NewInMemoryWorker(jobs, p.processor,
			WithName("worker-"+strconv.Itoa(i)),
			WithLogger(p.logger),
		)
		w.busy = &p.busy
		p.workers[i] = w
		go w.Run(ctx)
	}
	go p.startMetricsUpdater(ctx)
	p.logger.Info(ctx, "worker pool started", logger.Int("workers", p.size))
}

// Busy returns the number of workers running a job.
func (p *Pool) Busy() int { return int(p.busy.Load()) }

// Size returns the number of workers.
func (p *Pool) Size() int { return p.size }

func (p *Pool) startMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case <-ticker.C:
			p.updateMetrics()
		}
	}
}

func (p *Pool) updateMetrics() {
	busy := p.Busy()
	metrics.UpdateWorkerActiveCount(busy)
	metrics.UpdateWorkerIdleCount(p.size - busy)
}

// Shutdown closes the queue, then waits for every worker to finish its
// current job or for ctx to expire.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	select {
	case <-p.shutdown:
	default:
		close(p.shutdown)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, w := range p.workers {
		if err := w.Shutdown(shutdownCtx); err != nil {
			timedOut = true
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	p.updateMetrics()
	if timedOut {
		return fmt.Errorf("worker pool: %w", context.DeadlineExceeded)
	}
	return nil
}
