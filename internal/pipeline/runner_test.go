package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/pickle/internal/adapters/render"
	"github.com/okian/pickle/internal/adapters/repository"
	"github.com/okian/pickle/internal/adapters/source"
	"github.com/okian/pickle/internal/domain/analytics"
	"github.com/okian/pickle/internal/domain/court"
	"github.com/okian/pickle/internal/domain/model"
	"github.com/okian/pickle/internal/domain/rally"
	"github.com/okian/pickle/internal/domain/trajectory"
	"github.com/okian/pickle/internal/pipeline"
)

var identity = []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}

// sliceSource replays frames and optionally fails once it reaches failAt.
type sliceSource struct {
	meta   source.Meta
	frames []model.Frame
	failAt int
	pos    int
	closed bool
}

func (s *sliceSource) Meta() source.Meta { return s.meta }

func (s *sliceSource) Next(ctx context.Context) (model.Frame, error) {
	if err := ctx.Err(); err != nil {
		return model.Frame{}, err
	}
	if s.failAt > 0 && s.pos == s.failAt {
		return model.Frame{}, errors.New("decoder exploded")
	}
	if s.pos >= len(s.frames) {
		return model.Frame{}, io.EOF
	}
	f := s.frames[s.pos]
	s.pos++
	return f, nil
}

func (s *sliceSource) Close() error {
	s.closed = true
	return nil
}

type openerFunc func(ctx context.Context, path string) (source.Source, error)

func (f openerFunc) Open(ctx context.Context, path string) (source.Source, error) { return f(ctx, path) }

func staticOpener(src source.Source) source.Opener {
	return openerFunc(func(context.Context, string) (source.Source, error) { return src, nil })
}

type stubHeatmaps struct {
	mu    sync.Mutex
	calls []string
	fail  bool
}

func (h *stubHeatmaps) Export(title string, pts []model.Point) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fail {
		return nil, errors.New("palette missing")
	}
	h.calls = append(h.calls, title)
	return []byte("png:" + title), nil
}

type stubFrames struct{ rendered int }

func (f *stubFrames) Render(render.Scene) ([]byte, error) {
	f.rendered++
	return []byte{0xFF, 0xD8, 0xFF}, nil
}

type memArchive struct {
	mu    sync.Mutex
	saved []model.Record
}

func (a *memArchive) Save(_ context.Context, rec model.Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.saved = append(a.saved, rec)
	return nil
}

func ballAt(y float64) model.Detection {
	return &model.Box{X1: 0, Y1: y - 1, X2: 2, Y2: y + 1}
}

func framesOf(balls ...model.Detection) []model.Frame {
	out := make([]model.Frame, len(balls))
	for i, b := range balls {
		out[i] = model.Frame{Index: i, Ball: b}
	}
	return out
}

type fixture struct {
	store    *repository.JobStore
	heatmaps *stubHeatmaps
	frames   *stubFrames
	archive  *memArchive
	outDir   string
}

func newFixture(t *testing.T) *fixture {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return &fixture{
		store:    repository.NewJobStore(ctx),
		heatmaps: &stubHeatmaps{},
		frames:   &stubFrames{},
		archive:  &memArchive{},
		outDir:   t.TempDir(),
	}
}

func (fx *fixture) runner(opener source.Opener, opts ...pipeline.Option) *pipeline.Runner {
	base := []pipeline.Option{
		pipeline.WithCourt(court.Court{Width: 100, Length: 100}),
		pipeline.WithHeatmapInterval(4),
		pipeline.WithHeatmapExporter(fx.heatmaps),
		pipeline.WithFrameRenderer(fx.frames),
		pipeline.WithArchive(fx.archive),
		pipeline.WithAnalyzerOptions(
			analytics.WithTrackerOptions(trajectory.WithCooldown(0)),
			analytics.WithSegmenterOptions(rally.WithGapFrames(3)),
		),
	}
	return pipeline.NewRunner(fx.store, opener, fx.outDir, append(base, opts...)...)
}

func TestRunnerCompletes(t *testing.T) {
	Convey("Given a job whose ball bounces twice on top", t, func() {
		ctx := context.Background()
		fx := newFixture(t)
		So(fx.store.Create(ctx, "job-1"), ShouldBeNil)

		src := &sliceSource{
			meta: source.Meta{FPS: 30, TotalFrames: 10, Homography: identity},
			frames: framesOf(
				ballAt(10), ballAt(20), ballAt(30), ballAt(20),
				ballAt(30), ballAt(40), ballAt(30),
				nil, nil, nil,
			),
		}
		out := fx.runner(staticOpener(src)).Process(ctx, model.Job{ID: "job-1", InputPath: "in.jsonl"})

		Convey("Then the outcome and record are completed", func() {
			So(out.Err, ShouldBeNil)
			So(out.Status, ShouldEqual, model.StatusCompleted)
			So(out.Frames, ShouldEqual, 10)
			So(src.closed, ShouldBeTrue)

			rec, err := fx.store.Get(ctx, "job-1")
			So(err, ShouldBeNil)
			So(rec.Status, ShouldEqual, model.StatusCompleted)
			So(rec.Progress, ShouldEqual, 1)
			So(rec.LatestStats.Score, ShouldResemble, model.Score{Bottom: 1})
			So(rec.LatestFrame, ShouldResemble, []byte{0xFF, 0xD8, 0xFF})
			So(rec.Result, ShouldNotBeNil)
			So(rec.Result.OutputDir, ShouldEqual, filepath.Join(fx.outDir, "job-1"))
		})

		Convey("Then every frame was rendered and heatmaps refreshed periodically", func() {
			So(fx.frames.rendered, ShouldEqual, 10)
			// frames 0, 4 and 8 plus the final export, two maps each
			So(fx.heatmaps.calls, ShouldHaveLength, 8)
		})

		Convey("Then the artifacts are on disk", func() {
			dir := filepath.Join(fx.outDir, "job-1")
			for _, name := range []string{pipeline.StatsFile, pipeline.PlayerHeatmapFile, pipeline.BallHeatmapFile, pipeline.VideoFile} {
				_, err := os.Stat(filepath.Join(dir, name))
				So(err, ShouldBeNil)
			}

			raw, err := os.ReadFile(filepath.Join(dir, pipeline.StatsFile))
			So(err, ShouldBeNil)
			var doc map[string]json.RawMessage
			So(json.Unmarshal(raw, &doc), ShouldBeNil)
			var score model.Score
			So(json.Unmarshal(doc["score"], &score), ShouldBeNil)
			So(score, ShouldResemble, model.Score{Bottom: 1})
			So(doc, ShouldContainKey, "points")
			So(string(doc["frames"]), ShouldEqual, "10")
		})

		Convey("Then the finished record is archived", func() {
			So(fx.archive.saved, ShouldHaveLength, 1)
			So(fx.archive.saved[0].Status, ShouldEqual, model.StatusCompleted)
		})
	})
}

func TestRunnerZeroDetections(t *testing.T) {
	Convey("Given a stream where the ball is never seen", t, func() {
		ctx := context.Background()
		fx := newFixture(t)
		So(fx.store.Create(ctx, "empty"), ShouldBeNil)

		src := &sliceSource{meta: source.Meta{TotalFrames: 5}, frames: framesOf(nil, nil, nil, nil, nil)}
		out := fx.runner(staticOpener(src)).Process(ctx, model.Job{ID: "empty"})

		Convey("Then the job completes without bounces or points", func() {
			So(out.Status, ShouldEqual, model.StatusCompleted)
			rec, err := fx.store.Get(ctx, "empty")
			So(err, ShouldBeNil)
			So(rec.LatestStats.BounceCount, ShouldEqual, 0)
			So(rec.LatestStats.Points, ShouldBeEmpty)
			So(rec.LatestStats.RallyCount, ShouldEqual, 0)
			So(rec.BallHeatmap, ShouldNotBeEmpty)
		})
	})
}

func TestRunnerFailures(t *testing.T) {
	ctx := context.Background()

	Convey("Given a source that fails at frame 3 of 10", t, func() {
		fx := newFixture(t)
		So(fx.store.Create(ctx, "bad"), ShouldBeNil)

		src := &sliceSource{
			meta:   source.Meta{TotalFrames: 10},
			frames: framesOf(ballAt(10), ballAt(20), ballAt(30), ballAt(20), nil),
			failAt: 3,
		}
		out := fx.runner(staticOpener(src)).Process(ctx, model.Job{ID: "bad"})

		Convey("Then the job fails and keeps its progress", func() {
			So(out.Failed(), ShouldBeTrue)
			So(out.Frames, ShouldEqual, 3)
			rec, err := fx.store.Get(ctx, "bad")
			So(err, ShouldBeNil)
			So(rec.Status, ShouldEqual, model.StatusFailed)
			So(rec.Error, ShouldContainSubstring, "decoder exploded")
			So(rec.Progress, ShouldAlmostEqual, 0.3)
			So(rec.Result, ShouldBeNil)
		})

		Convey("Then the failure is archived and final", func() {
			So(fx.archive.saved, ShouldHaveLength, 1)
			So(fx.archive.saved[0].Status, ShouldEqual, model.StatusFailed)
			err := fx.store.Update(ctx, "bad", func(r *model.Record) { r.Progress = 1 })
			So(errors.Is(err, repository.ErrTerminal), ShouldBeTrue)
		})
	})

	Convey("Given an input that cannot be opened", t, func() {
		fx := newFixture(t)
		So(fx.store.Create(ctx, "missing"), ShouldBeNil)
		opener := openerFunc(func(context.Context, string) (source.Source, error) {
			return nil, os.ErrNotExist
		})
		out := fx.runner(opener).Process(ctx, model.Job{ID: "missing"})

		So(out.Failed(), ShouldBeTrue)
		So(errors.Is(out.Err, os.ErrNotExist), ShouldBeTrue)
		rec, _ := fx.store.Get(ctx, "missing")
		So(rec.Status, ShouldEqual, model.StatusFailed)
		So(rec.Progress, ShouldEqual, 0)
	})

	Convey("Given a singular homography", t, func() {
		fx := newFixture(t)
		So(fx.store.Create(ctx, "flat"), ShouldBeNil)
		src := &sliceSource{meta: source.Meta{Homography: make([]float64, 9)}, frames: framesOf(nil)}
		out := fx.runner(staticOpener(src)).Process(ctx, model.Job{ID: "flat"})

		So(errors.Is(out.Err, pipeline.ErrBadMeta), ShouldBeTrue)
	})

	Convey("Given frames that go backwards", t, func() {
		fx := newFixture(t)
		So(fx.store.Create(ctx, "order"), ShouldBeNil)
		src := &sliceSource{frames: []model.Frame{{Index: 5}, {Index: 2}}}
		out := fx.runner(staticOpener(src)).Process(ctx, model.Job{ID: "order"})

		So(errors.Is(out.Err, analytics.ErrFrameOrder), ShouldBeTrue)
	})

	Convey("Given a heatmap exporter that breaks", t, func() {
		fx := newFixture(t)
		fx.heatmaps.fail = true
		So(fx.store.Create(ctx, "heat"), ShouldBeNil)
		src := &sliceSource{frames: framesOf(nil, nil)}
		out := fx.runner(staticOpener(src)).Process(ctx, model.Job{ID: "heat"})

		So(out.Failed(), ShouldBeTrue)
		So(out.Err.Error(), ShouldContainSubstring, "palette missing")
	})

	Convey("Given a job cancelled by shutdown", t, func() {
		fx := newFixture(t)
		So(fx.store.Create(ctx, "stop"), ShouldBeNil)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		src := &sliceSource{frames: framesOf(nil, nil)}
		out := fx.runner(staticOpener(src)).Process(cctx, model.Job{ID: "stop"})

		So(errors.Is(out.Err, pipeline.ErrInterrupted), ShouldBeTrue)
		rec, err := fx.store.Get(ctx, "stop")
		So(err, ShouldBeNil)
		So(rec.Status, ShouldEqual, model.StatusFailed)
		So(strings.HasPrefix(rec.Error, "job interrupted"), ShouldBeTrue)
	})

	Convey("Given a job failed before it ran", t, func() {
		fx := newFixture(t)
		So(fx.store.Create(ctx, "rejected"), ShouldBeNil)
		out := fx.runner(staticOpener(&sliceSource{})).Fail(ctx, model.Job{ID: "rejected"}, errors.New("service stopping"))

		So(out.Status, ShouldEqual, model.StatusFailed)
		rec, _ := fx.store.Get(ctx, "rejected")
		So(rec.Error, ShouldEqual, "service stopping")
	})
}
