// Package pipeline drives a single job from its frame source to a terminal
// record.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/pickle/internal/adapters/mjpeg"
	"github.com/okian/pickle/internal/adapters/render"
	"github.com/okian/pickle/internal/adapters/repository"
	"github.com/okian/pickle/internal/adapters/source"
	"github.com/okian/pickle/internal/domain/analytics"
	"github.com/okian/pickle/internal/domain/court"
	"github.com/okian/pickle/internal/domain/model"
	"github.com/okian/pickle/internal/domain/rally"
	"github.com/okian/pickle/pkg/logger"
	"github.com/okian/pickle/pkg/metrics"
)

// Default runner configuration and artifact names.
const (
	defaultHeatmapInterval = 30

	StatsFile         = "stats.json"
	PlayerHeatmapFile = "player_heatmap.png"
	BallHeatmapFile   = "ball_heatmap.png"
	VideoFile         = "annotated.mjpeg"
)

// HeatmapExporter renders court positions to an image.
type HeatmapExporter interface {
	Export(title string, pts []model.Point) ([]byte, error)
}

// FrameRenderer draws a frame when the source has no image for it.
type FrameRenderer interface {
	Render(s render.Scene) ([]byte, error)
}

// Archiver persists terminal records.
type Archiver interface {
	Save(ctx context.Context, rec model.Record) error
}

// StatsDocument is the content of stats.json.
type StatsDocument struct {
	rally.Export
	BounceCount  int                 `json:"bounce_count"`
	Bounces      []model.BounceEvent `json:"bounces"`
	RallyCount   int                 `json:"rally_count"`
	Rallies      []model.Rally       `json:"rallies"`
	BallDetected int                 `json:"ball_detected_frames"`
	Frames       int                 `json:"frames"`
	FPS          float64             `json:"fps,omitempty"`
}

// Runner processes jobs. One Runner serves every worker; all per-job state
// lives in Process.
type Runner struct {
	store     repository.Store
	opener    source.Opener
	outputDir string

	heatmapInterval int
	heatmaps        HeatmapExporter
	frames          FrameRenderer
	archive         Archiver
	court           court.Court
	analyzerOpts    []analytics.Option

	logger logger.Logger
}

// NewRunner creates a runner writing artifacts below outputDir.
func NewRunner(store repository.Store, opener source.Opener, outputDir string, opts ...Option) *Runner {
	r := &Runner{
		store:           store,
		opener:          opener,
		outputDir:       outputDir,
		heatmapInterval: defaultHeatmapInterval,
		court:           court.Default(),
		logger:          logger.Get(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.heatmaps == nil {
		r.heatmaps = render.NewHeatmap(r.court)
	}
	if r.frames == nil {
		r.frames = render.NewCourtView(r.court)
	}
	r.logger = r.logger.Named("pipeline")
	return r
}

// job is the state of one run.
type job struct {
	model.Job
	started  time.Time
	meta     source.Meta
	analyzer *analytics.Analyzer
	dir      string
	video    *os.File
	mjpeg    *mjpeg.Writer
	frames   int
	rallies  int
}

// Process runs the job to completion. The returned outcome is terminal; on
// error the record has already been marked failed.
func (r *Runner) Process(ctx context.Context, j model.Job) model.Outcome {
	metrics.RecordJobStarted()
	jb := &job{Job: j, started: time.Now()}
	log := r.logger.With(logger.JobID(j.ID))
	log.Info(ctx, "job started", logger.String("input", j.InputPath))

	if err := r.run(ctx, jb); err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %w", ErrInterrupted, err)
		}
		return r.fail(ctx, jb, err)
	}

	metrics.RecordJobCompleted(time.Since(jb.started))
	log.Info(ctx, "job completed",
		logger.Int("frames", jb.frames),
		logger.Duration("elapsed", time.Since(jb.started)))
	return model.Outcome{JobID: j.ID, Status: model.StatusCompleted, Frames: jb.frames}
}

// Fail marks a job failed without running it.
func (r *Runner) Fail(ctx context.Context, j model.Job, err error) model.Outcome {
	return r.fail(ctx, &job{Job: j, started: time.Now()}, err)
}

func (r *Runner) fail(ctx context.Context, jb *job, cause error) model.Outcome {
	log := r.logger.With(logger.JobID(jb.ID))
	if jb.video != nil {
		_ = jb.video.Close()
	}

	// The record must settle even if the job context is gone.
	sctx := context.WithoutCancel(ctx)
	err := r.store.Update(sctx, jb.ID, func(rec *model.Record) {
		rec.Status = model.StatusFailed
		rec.Error = cause.Error()
	})
	switch {
	case errors.Is(err, repository.ErrTerminal):
		log.Warn(ctx, "job already settled", logger.Error(cause))
	case err != nil:
		log.Error(ctx, "failed to mark job failed", logger.Error(err))
	default:
		r.archiveRecord(sctx, jb.ID)
	}

	metrics.RecordJobFailed(time.Since(jb.started))
	metrics.RecordErrorByComponent("pipeline", errorKind(cause))
	log.Error(ctx, "job failed", logger.Error(cause), logger.Int("frames", jb.frames))
	return model.Outcome{JobID: jb.ID, Status: model.StatusFailed, Frames: jb.frames, Err: cause}
}

func (r *Runner) run(ctx context.Context, jb *job) error {
	src, err := r.opener.Open(ctx, jb.InputPath)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer func() { _ = src.Close() }()

	jb.meta = src.Meta()
	if jb.analyzer, err = r.newAnalyzer(jb.meta); err != nil {
		return err
	}
	if err := r.openOutputs(jb); err != nil {
		return err
	}

	for {
		f, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read frame %d: %w", jb.frames, err)
		}
		if err := r.step(ctx, jb, f); err != nil {
			return err
		}
	}
	return r.complete(ctx, jb)
}

func (r *Runner) newAnalyzer(meta source.Meta) (*analytics.Analyzer, error) {
	opts := []analytics.Option{
		analytics.WithCourt(r.court),
		analytics.WithTotalFrames(meta.TotalFrames),
	}
	if len(meta.Homography) > 0 {
		h, err := court.NewHomography(meta.Homography)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadMeta, err)
		}
		opts = append(opts, analytics.WithProjector(h))
	}
	return analytics.New(append(opts, r.analyzerOpts...)...), nil
}

func (r *Runner) openOutputs(jb *job) error {
	jb.dir = filepath.Join(r.outputDir, jb.ID)
	if err := os.MkdirAll(jb.dir, 0o750); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(filepath.Join(jb.dir, VideoFile))
	if err != nil {
		return fmt.Errorf("create video: %w", err)
	}
	jb.video = f
	jb.mjpeg = mjpeg.NewWriter(f)
	return nil
}

// step analyses one frame and publishes the live snapshot.
func (r *Runner) step(ctx context.Context, jb *job, f model.Frame) error {
	start := time.Now()
	res, err := jb.analyzer.Step(f)
	if err != nil {
		return fmt.Errorf("analyse frame %d: %w", f.Index, err)
	}
	jb.frames++
	recordStep(res)
	if res.Rally != nil {
		jb.rallies++
	}

	stats := jb.analyzer.Stats()
	img := f.Image
	if len(img) == 0 {
		if img, err = r.frames.Render(scene(res, stats, jb.analyzer)); err != nil {
			return fmt.Errorf("render frame %d: %w", f.Index, err)
		}
	}
	if err := jb.mjpeg.WriteFrame(img); err != nil {
		return fmt.Errorf("write frame %d: %w", f.Index, err)
	}

	var playerHeat, ballHeat []byte
	if f.Index%r.heatmapInterval == 0 {
		if playerHeat, ballHeat, err = r.exportHeatmaps(jb.analyzer.PlayerPositions(), jb.analyzer.BallPositions()); err != nil {
			return fmt.Errorf("heatmaps at frame %d: %w", f.Index, err)
		}
	}

	err = r.store.Update(ctx, jb.ID, func(rec *model.Record) {
		rec.LatestFrame = img
		rec.LatestStats = &stats
		rec.Progress = stats.Operational.Progress
		if playerHeat != nil {
			rec.PlayerHeatmap = playerHeat
			rec.BallHeatmap = ballHeat
		}
	})
	if err != nil {
		return fmt.Errorf("publish frame %d: %w", f.Index, err)
	}
	metrics.RecordFrameProcessed(float64(time.Since(start).Microseconds()) / 1000)
	return nil
}

// complete closes the open rally and writes every artifact.
func (r *Runner) complete(ctx context.Context, jb *job) error {
	if award := jb.analyzer.Finish(); award != nil {
		metrics.RecordPoint(string(award.Winner))
	}
	stats := jb.analyzer.Stats()
	if stats.RallyCount > jb.rallies {
		metrics.RecordRally()
	}

	if err := jb.mjpeg.Close(); err != nil {
		return fmt.Errorf("finish video: %w", err)
	}
	if err := jb.video.Close(); err != nil {
		return fmt.Errorf("close video: %w", err)
	}
	jb.video = nil

	statsPath := filepath.Join(jb.dir, StatsFile)
	if err := writeJSON(statsPath, r.document(jb, stats)); err != nil {
		return err
	}

	ball, err := jb.analyzer.SmoothedBallPositions()
	if err != nil {
		return err
	}
	playerHeat, ballHeat, err := r.exportHeatmaps(jb.analyzer.PlayerPositions(), ball)
	if err != nil {
		return fmt.Errorf("final heatmaps: %w", err)
	}
	if err := os.WriteFile(filepath.Join(jb.dir, PlayerHeatmapFile), playerHeat, 0o600); err != nil {
		return fmt.Errorf("write player heatmap: %w", err)
	}
	if err := os.WriteFile(filepath.Join(jb.dir, BallHeatmapFile), ballHeat, 0o600); err != nil {
		return fmt.Errorf("write ball heatmap: %w", err)
	}

	result := &model.Result{
		VideoPath: filepath.Join(jb.dir, VideoFile),
		StatsPath: statsPath,
		OutputDir: jb.dir,
	}
	err = r.store.Update(ctx, jb.ID, func(rec *model.Record) {
		rec.Status = model.StatusCompleted
		rec.Progress = 1
		rec.LatestStats = &stats
		rec.PlayerHeatmap = playerHeat
		rec.BallHeatmap = ballHeat
		rec.Result = result
	})
	if err != nil {
		return fmt.Errorf("publish result: %w", err)
	}
	r.archiveRecord(context.WithoutCancel(ctx), jb.ID)
	return nil
}

func (r *Runner) exportHeatmaps(players, ball []model.Point) ([]byte, []byte, error) {
	p, err := r.heatmaps.Export("Player positions", players)
	if err != nil {
		return nil, nil, fmt.Errorf("player heatmap: %w", err)
	}
	b, err := r.heatmaps.Export("Ball positions", ball)
	if err != nil {
		return nil, nil, fmt.Errorf("ball heatmap: %w", err)
	}
	return p, b, nil
}

// archiveRecord saves a terminal record. Archive failures are logged; the
// job state in the store stays authoritative.
func (r *Runner) archiveRecord(ctx context.Context, id string) {
	if r.archive == nil {
		return
	}
	rec, err := r.store.Get(ctx, id)
	if err == nil {
		err = r.archive.Save(ctx, rec)
	}
	if err != nil {
		metrics.RecordErrorByComponent("archive", "save")
		r.logger.Error(ctx, "failed to archive job", logger.JobID(id), logger.Error(err))
	}
}

func (r *Runner) document(jb *job, stats model.Stats) StatsDocument {
	return StatsDocument{
		Export:       jb.analyzer.Engine().Export(),
		BounceCount:  stats.BounceCount,
		Bounces:      stats.Bounces,
		RallyCount:   stats.RallyCount,
		Rallies:      stats.Rallies,
		BallDetected: stats.BallDetected,
		Frames:       jb.frames,
		FPS:          jb.meta.FPS,
	}
}

func scene(res analytics.StepResult, stats model.Stats, a *analytics.Analyzer) render.Scene {
	s := render.Scene{
		Frame:   res.Frame,
		Ball:    res.BallCourt,
		Players: res.Players,
		Score:   stats.Score,
		Bounce:  stats.BounceFlash,
		Point:   stats.PointFlash,
	}
	if p, ok := a.Engine().LastPoint(); ok {
		s.Winner = p.Winner
	}
	return s
}

func recordStep(res analytics.StepResult) {
	if res.Bounce {
		metrics.RecordBounce()
	}
	if res.Rally != nil {
		metrics.RecordRally()
	}
	if res.Point != nil {
		metrics.RecordPoint(string(res.Point.Winner))
	}
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrInterrupted):
		return "interrupted"
	case errors.Is(err, analytics.ErrFrameOrder):
		return "frame_order"
	case errors.Is(err, ErrBadMeta), errors.Is(err, source.ErrBadHeader), errors.Is(err, source.ErrBadRecord):
		return "input"
	default:
		return "processing"
	}
}
