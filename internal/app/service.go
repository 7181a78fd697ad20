// Package service wires the job store, admission queue, worker pool and
// pipeline into the operations the HTTP API needs.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/pickle/internal/adapters/archive"
	"github.com/okian/pickle/internal/adapters/mq/queue"
	"github.com/okian/pickle/internal/adapters/mq/worker"
	"github.com/okian/pickle/internal/adapters/render"
	"github.com/okian/pickle/internal/adapters/repository"
	"github.com/okian/pickle/internal/adapters/source"
	"github.com/okian/pickle/internal/domain/analytics"
	"github.com/okian/pickle/internal/domain/court"
	"github.com/okian/pickle/internal/domain/model"
	"github.com/okian/pickle/internal/domain/rally"
	"github.com/okian/pickle/internal/domain/trajectory"
	"github.com/okian/pickle/internal/pipeline"
	"github.com/okian/pickle/pkg/logger"
	"github.com/okian/pickle/pkg/metrics"
)

// AssetKind names a downloadable artifact of a completed job.
type AssetKind string

// Downloadable artifacts.
const (
	AssetVideo         AssetKind = "video"
	AssetPlayerHeatmap AssetKind = "player_heatmap"
	AssetBallHeatmap   AssetKind = "ball_heatmap"
)

// HeatmapKind names a live heatmap.
type HeatmapKind string

// Live heatmaps.
const (
	HeatmapPlayer HeatmapKind = "player"
	HeatmapBall   HeatmapKind = "ball"
)

// Results is the summary of a completed job. Stats is the stats document
// the job wrote when it finished.
type Results struct {
	JobID string          `json:"job_id"`
	Stats json.RawMessage `json:"stats"`
}

// Service runs analysis jobs in the background.
type Service struct {
	mu sync.RWMutex

	// Core components
	store    *repository.JobStore
	queue    *queue.InMemoryQueue
	pool     *worker.Pool
	runner   *pipeline.Runner
	archive  *archive.Archive
	opener   source.Opener
	restored int

	// Configuration
	workerCount     int
	queueSize       int
	uploadDir       string
	outputDir       string
	archivePath     string
	heatmapInterval int
	court           court.Court
	tuning          Tuning

	// State
	started bool
	cancel  context.CancelFunc

	logger logger.Logger
}

// New constructs a Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:     4,
		queueSize:       16,
		uploadDir:       "uploads",
		outputDir:       "outputs",
		heatmapInterval: 30,
		court:           court.Default(),
		tuning: Tuning{
			History:        5,
			BounceCooldown: 15,
			BounceDisplay:  3,
			PointDisplay:   18,
			RallyGap:       45,
		},
		opener: source.TrackOpener{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start creates the components and starts the workers. Finished jobs from
// the archive are restored so their results stay available.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Named("service")
	}
	s.logger.Info(ctx, "starting analysis service...")

	for _, dir := range []string{s.uploadDir, s.outputDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	// Workers outlive the start request.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	s.store = repository.NewJobStore(runCtx)
	runnerOpts := []pipeline.Option{
		pipeline.WithCourt(s.court),
		pipeline.WithHeatmapInterval(s.heatmapInterval),
		pipeline.WithAnalyzerOptions(s.analyzerOptions()...),
		pipeline.WithLogger(s.logger),
	}
	if s.archivePath != "" {
		a, err := archive.Open(ctx, s.archivePath)
		if err != nil {
			cancel()
			_ = s.store.Close()
			return fmt.Errorf("open archive: %w", err)
		}
		s.archive = a
		runnerOpts = append(runnerOpts, pipeline.WithArchive(a))
		if err := s.restore(ctx); err != nil {
			s.logger.Warn(ctx, "archive restore incomplete", logger.Error(err))
		}
	}

	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.runner = pipeline.NewRunner(s.store, s.opener, s.outputDir, runnerOpts...)
	s.pool = worker.NewPool(s.workerCount, s.queue, s.runner, worker.WithPoolLogger(s.logger))
	s.pool.Start(runCtx)

	s.cancel = cancel
	s.started = true
	s.logger.Info(ctx, "analysis service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queue_size", s.queueSize),
		logger.Int("restored", s.restored),
	)
	return nil
}

func (s *Service) analyzerOptions() []analytics.Option {
	t := s.tuning
	return []analytics.Option{
		analytics.WithTrackerOptions(
			trajectory.WithHistory(t.History),
			trajectory.WithCooldown(t.BounceCooldown),
			trajectory.WithBounceDisplay(t.BounceDisplay),
		),
		analytics.WithEngineOptions(rally.WithPointDisplay(t.PointDisplay)),
		analytics.WithSegmenterOptions(rally.WithGapFrames(t.RallyGap)),
	}
}

func (s *Service) restore(ctx context.Context) error {
	return s.archive.All(ctx, func(rec model.Record) error {
		if err := s.store.Restore(ctx, rec); err != nil && !errors.Is(err, repository.ErrExists) {
			return err
		}
		s.restored++
		return nil
	})
}

// Stop cancels running jobs, waits for the workers and fails every job that
// was admitted but never started.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping analysis service...")

	s.cancel()
	err := s.pool.Shutdown(ctx)

	for _, j := range s.queue.Drain() {
		s.runner.Fail(ctx, j, ErrStopped)
	}

	if s.archive != nil {
		if cerr := s.archive.Close(); cerr != nil {
			s.logger.Error(ctx, "failed to close archive", logger.Error(cerr))
		}
		s.archive = nil
	}
	_ = s.store.Close()

	s.started = false
	s.logger.Info(ctx, "analysis service stopped")
	return err
}

// components returns the live store and queue, or ErrNotStarted.
func (s *Service) components() (*repository.JobStore, *queue.InMemoryQueue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, nil, ErrNotStarted
	}
	return s.store, s.queue, nil
}

// Submit stores an upload and admits it for processing. It returns the new
// job id, or ErrBackpressure when the queue is full.
func (s *Service) Submit(ctx context.Context, filename string, r io.Reader) (string, error) {
	store, q, err := s.components()
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	path := filepath.Join(s.uploadDir, id+uploadExt(filename))
	n, err := saveUpload(path, r)
	if err != nil {
		return "", err
	}
	if n == 0 {
		_ = os.Remove(path)
		return "", ErrEmptyUpload
	}

	if err := store.Create(ctx, id); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("create job: %w", err)
	}
	j := model.Job{ID: id, InputPath: path, Filename: filename, SubmittedAt: time.Now()}
	if err := q.Enqueue(ctx, j); err != nil {
		_ = store.Delete(ctx, id)
		_ = os.Remove(path)
		if errors.Is(err, queue.ErrFull) || errors.Is(err, queue.ErrClosed) {
			return "", fmt.Errorf("%w: %v", ErrBackpressure, err)
		}
		return "", fmt.Errorf("enqueue job: %w", err)
	}

	metrics.RecordJobSubmitted()
	s.logger.Info(ctx, "job submitted", logger.JobID(id),
		logger.String("filename", filename), logger.Int64("bytes", n))
	return id, nil
}

func uploadExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if ext == "" || len(ext) > 8 || strings.ContainsAny(ext, `/\`) {
		return ".jsonl"
	}
	return ext
}

func saveUpload(path string, r io.Reader) (int64, error) {
	f, err := os.Create(path) //nolint:gosec // path is built from a generated id
	if err != nil {
		return 0, fmt.Errorf("store upload: %w", err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return 0, fmt.Errorf("store upload: %w", err)
	}
	return n, nil
}

// Status returns the current snapshot of a job.
func (s *Service) Status(ctx context.Context, id string) (model.Record, error) {
	store, _, err := s.components()
	if err != nil {
		return model.Record{}, err
	}
	rec, err := store.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, err
}

// Watch returns the current snapshot and a channel closed on the next change.
func (s *Service) Watch(ctx context.Context, id string) (model.Record, <-chan struct{}, error) {
	store, _, err := s.components()
	if err != nil {
		return model.Record{}, nil, err
	}
	rec, ch, err := store.Watch(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Record{}, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, ch, err
}

// Results returns the final stats of a completed job.
func (s *Service) Results(ctx context.Context, id string) (Results, error) {
	rec, err := s.Status(ctx, id)
	if err != nil {
		return Results{}, err
	}
	if rec.Status != model.StatusCompleted {
		return Results{}, fmt.Errorf("%w: %s is %s", ErrNotCompleted, id, rec.Status)
	}
	stats, err := readStats(rec.Result)
	if err != nil {
		return Results{}, err
	}
	return Results{JobID: id, Stats: stats}, nil
}

// readStats loads a job's stats.json. A missing document reads as an empty
// object.
func readStats(res *model.Result) (json.RawMessage, error) {
	empty := json.RawMessage("{}")
	if res == nil || res.StatsPath == "" {
		return empty, nil
	}
	data, err := os.ReadFile(res.StatsPath)
	if errors.Is(err, fs.ErrNotExist) {
		return empty, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read stats: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: %s", ErrBadStats, res.StatsPath)
	}
	return data, nil
}

// Asset returns the path of a completed job's artifact.
func (s *Service) Asset(ctx context.Context, id string, kind AssetKind) (string, error) {
	rec, err := s.Status(ctx, id)
	if err != nil {
		return "", err
	}
	var name string
	switch kind {
	case AssetVideo:
		name = pipeline.VideoFile
	case AssetPlayerHeatmap:
		name = pipeline.PlayerHeatmapFile
	case AssetBallHeatmap:
		name = pipeline.BallHeatmapFile
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	if rec.Status != model.StatusCompleted || rec.Result == nil {
		return "", fmt.Errorf("%w: %s is %s", ErrNotCompleted, id, rec.Status)
	}
	path := filepath.Join(rec.Result.OutputDir, name)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: %s", ErrAssetMissing, kind)
	}
	return path, nil
}

// LiveHeatmap returns the most recent heatmap of a job, finished or not.
func (s *Service) LiveHeatmap(ctx context.Context, kind HeatmapKind, id string) ([]byte, error) {
	rec, err := s.Status(ctx, id)
	if err != nil {
		return nil, err
	}
	var img []byte
	switch kind {
	case HeatmapPlayer:
		img = rec.PlayerHeatmap
	case HeatmapBall:
		img = rec.BallHeatmap
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	if len(img) == 0 {
		return nil, ErrHeatmapNotReady
	}
	return img, nil
}

// Timeline renders the score timeline page of a job.
func (s *Service) Timeline(ctx context.Context, id string) ([]byte, error) {
	rec, err := s.Status(ctx, id)
	if err != nil {
		return nil, err
	}
	var stats model.Stats
	if rec.LatestStats != nil {
		stats = *rec.LatestStats
	}
	return render.Timeline(id, stats)
}

// History lists archived jobs, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]archive.Summary, error) {
	s.mu.RLock()
	a := s.archive
	s.mu.RUnlock()
	if a == nil {
		return []archive.Summary{}, nil
	}
	return a.List(ctx, limit)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"archive":     s.archivePath != "",
	}

	if s.started {
		queueLen := s.queue.Len(ctx)
		byStatus := s.store.CountByStatus(ctx)

		stats["queueLength"] = queueLen
		stats["busyWorkers"] = s.pool.Busy()
		stats["totalJobs"] = s.store.Count(ctx)
		stats["processing"] = byStatus[model.StatusProcessing]
		stats["completed"] = byStatus[model.StatusCompleted]
		stats["failed"] = byStatus[model.StatusFailed]
		stats["restored"] = s.restored

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateWorkerCount(s.workerCount)
	}

	return stats
}
