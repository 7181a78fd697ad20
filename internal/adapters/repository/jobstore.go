package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/pickle/internal/domain/model"
	"github.com/okian/pickle/pkg/metrics"
)

// cell holds one job. The record pointer is swapped whole on every publish
// so a reader always sees a single snapshot, never a mix of two.
type cell struct {
	mu      sync.Mutex // serialises writers
	rec     atomic.Pointer[model.Record]
	changed atomic.Pointer[chan struct{}]
}

func newCell(rec *model.Record) *cell {
	c := &cell{}
	ch := make(chan struct{})
	c.rec.Store(rec)
	c.changed.Store(&ch)
	return c
}

// publish stores rec and wakes every watcher. The record is stored before
// the channel is swapped, so a watcher that loaded the old channel always
// finds the new record once it wakes.
func (c *cell) publish(rec *model.Record) {
	c.rec.Store(rec)
	next := make(chan struct{})
	old := c.changed.Swap(&next)
	close(*old)
}

// JobStore is an in-memory Store.
type JobStore struct {
	mu    sync.RWMutex
	cells map[string]*cell
	now   func() time.Time

	metricsUpdateInterval time.Duration
	wg                    sync.WaitGroup
	stopChan              chan struct{}
	stopOnce              sync.Once
}

var _ Store = (*JobStore)(nil)

// NewJobStore constructs a job store with configuration options.
func NewJobStore(ctx context.Context, opts ...Option) *JobStore {
	s := &JobStore{
		cells:                 make(map[string]*cell),
		now:                   time.Now,
		metricsUpdateInterval: 5 * time.Second,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startMetricsUpdater(ctx)
	return s
}

// Close stops the background metrics updater.
func (s *JobStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

func (s *JobStore) cell(id string) (*cell, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cells[id]
	return c, ok
}

// Create registers a new processing job.
func (s *JobStore) Create(ctx context.Context, id string) error {
	now := s.now()
	rec := &model.Record{
		ID:        id,
		Status:    model.StatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	if _, ok := s.cells[id]; ok {
		s.mu.Unlock()
		return ErrExists
	}
	s.cells[id] = newCell(rec)
	n := len(s.cells)
	s.mu.Unlock()

	metrics.UpdateStoreJobs(n)
	return nil
}

// Get returns the latest snapshot without waiting on the writer.
func (s *JobStore) Get(ctx context.Context, id string) (model.Record, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	c, ok := s.cell(id)
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return model.Record{}, ErrNotFound
	}
	return *c.rec.Load(), nil
}

// Update publishes a new snapshot built from the current one. The record
// passed to fn is a copy; slices it holds must be replaced, not mutated.
func (s *JobStore) Update(ctx context.Context, id string, fn func(*model.Record)) error {
	start := time.Now()
	defer func() {
		metrics.RecordStoreUpdateLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	c, ok := s.cell(id)
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return ErrNotFound
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	cur := c.rec.Load()
	if cur.Status.Terminal() {
		metrics.RecordErrorByComponent("repository", "terminal")
		return ErrTerminal
	}
	next := *cur
	fn(&next)
	next.ID = cur.ID
	next.CreatedAt = cur.CreatedAt
	next.UpdatedAt = s.now()
	c.publish(&next)
	return nil
}

// Watch returns the current snapshot and a channel that is closed on the
// next publish or when the job is deleted.
func (s *JobStore) Watch(ctx context.Context, id string) (model.Record, <-chan struct{}, error) {
	c, ok := s.cell(id)
	if !ok {
		return model.Record{}, nil, ErrNotFound
	}
	ch := c.changed.Load()
	return *c.rec.Load(), *ch, nil
}

// Delete removes a job and wakes its watchers.
func (s *JobStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	c, ok := s.cells[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	delete(s.cells, id)
	n := len(s.cells)
	s.mu.Unlock()

	c.mu.Lock()
	c.publish(c.rec.Load())
	c.mu.Unlock()
	metrics.UpdateStoreJobs(n)
	return nil
}

// Restore inserts a record as is. It does not overwrite a live job.
func (s *JobStore) Restore(ctx context.Context, rec model.Record) error {
	r := rec
	s.mu.Lock()
	if _, ok := s.cells[r.ID]; ok {
		s.mu.Unlock()
		return ErrExists
	}
	s.cells[r.ID] = newCell(&r)
	n := len(s.cells)
	s.mu.Unlock()

	metrics.UpdateStoreJobs(n)
	return nil
}

// Count returns the number of jobs.
func (s *JobStore) Count(ctx context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cells)
}

// CountByStatus returns the number of jobs per status.
func (s *JobStore) CountByStatus(ctx context.Context) map[model.Status]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := map[model.Status]int{
		model.StatusProcessing: 0,
		model.StatusCompleted:  0,
		model.StatusFailed:     0,
	}
	for _, c := range s.cells {
		out[c.rec.Load().Status]++
	}
	return out
}

// startMetricsUpdater periodically refreshes the store gauges.
func (s *JobStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				metrics.UpdateStoreJobs(s.Count(ctx))
			}
		}
	}()
}
