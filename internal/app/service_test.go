package service_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/pickle/internal/adapters/source"
	service "github.com/okian/pickle/internal/app"
	"github.com/okian/pickle/internal/domain/court"
	"github.com/okian/pickle/internal/domain/model"
	"github.com/okian/pickle/internal/pipeline"
	"github.com/okian/pickle/pkg/logger"
)

func init() {
	if err := logger.Init(logger.WithOutput(os.Stderr)); err != nil {
		panic(err)
	}
}

// track builds a detection track where the ball bounces twice on the top
// half of a 20x20 court.
func track() []byte {
	var buf bytes.Buffer
	w, err := source.NewTrackWriter(&buf, source.Meta{
		FPS:         30,
		TotalFrames: 10,
		Homography:  []float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
	})
	if err != nil {
		panic(err)
	}
	for i, y := range []float64{2, 4, 6, 4, 6, 8, 6, -1, -1, -1} {
		f := model.Frame{Index: i}
		if y > 0 {
			f.Ball = &model.Box{X1: 9, Y1: y - 0.5, X2: 10, Y2: y + 0.5}
		}
		if err := w.Write(f); err != nil {
			panic(err)
		}
	}
	if err := w.Flush(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// gateOpener holds every job at Open until released or cancelled.
type gateOpener struct {
	release chan struct{}
	opened  chan string
}

func newGate() *gateOpener {
	return &gateOpener{release: make(chan struct{}), opened: make(chan string, 16)}
}

func (g *gateOpener) Open(ctx context.Context, path string) (source.Source, error) {
	g.opened <- path
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return source.TrackOpener{}.Open(ctx, path)
}

func newService(t *testing.T, opts ...service.Option) *service.Service {
	dir := t.TempDir()
	base := []service.Option{
		service.WithUploadDir(filepath.Join(dir, "uploads")),
		service.WithOutputDir(filepath.Join(dir, "outputs")),
		service.WithCourt(court.Court{Width: 20, Length: 20}),
		service.WithTuning(service.Tuning{History: 5, BounceCooldown: 0, BounceDisplay: 3, PointDisplay: 18, RallyGap: 3}),
		service.WithWorkerCount(2),
		service.WithQueueSize(4),
	}
	return service.New(append(base, opts...)...)
}

func waitTerminal(ctx context.Context, svc *service.Service, id string) model.Record {
	deadline := time.After(20 * time.Second)
	for {
		rec, changed, err := svc.Watch(ctx, id)
		So(err, ShouldBeNil)
		if rec.Status.Terminal() {
			return rec
		}
		select {
		case <-changed:
		case <-deadline:
			So("job "+id+" did not finish", ShouldBeEmpty)
			return rec
		}
	}
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		ctx := context.Background()
		svc := newService(t)

		Convey("When it is used before Start", func() {
			_, err := svc.Submit(ctx, "a.jsonl", bytes.NewReader(track()))

			Convey("Then calls fail with ErrNotStarted", func() {
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
				So(svc.GetStats()["started"], ShouldEqual, false)
			})
		})

		Convey("When it is started and stopped", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.GetStats()["started"], ShouldEqual, true)
			So(svc.Stop(ctx), ShouldBeNil)

			Convey("Then it reports stopped and Stop is idempotent", func() {
				So(svc.GetStats()["started"], ShouldEqual, false)
				So(svc.Stop(ctx), ShouldBeNil)
			})
		})
	})
}

func TestService_CompletedJob(t *testing.T) {
	Convey("Given a running service with an archive", t, func() {
		ctx := context.Background()
		archivePath := filepath.Join(t.TempDir(), "archive.db")
		svc := newService(t, service.WithArchivePath(archivePath))
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		Convey("When a track is submitted", func() {
			id, err := svc.Submit(ctx, "match.jsonl", bytes.NewReader(track()))
			So(err, ShouldBeNil)
			So(id, ShouldNotBeEmpty)
			rec := waitTerminal(ctx, svc, id)

			Convey("Then the job completes with a score", func() {
				So(rec.Status, ShouldEqual, model.StatusCompleted)
				So(rec.Progress, ShouldEqual, 1)

				res, err := svc.Results(ctx, id)
				So(err, ShouldBeNil)
				var doc pipeline.StatsDocument
				So(json.Unmarshal(res.Stats, &doc), ShouldBeNil)
				So(doc.Score, ShouldResemble, model.Score{Bottom: 1})
				So(doc.Points[0].Reason, ShouldEqual, "double bounce on top side")
			})

			Convey("Then results come from the written stats document", func() {
				res, err := svc.Results(ctx, id)
				So(err, ShouldBeNil)
				var doc map[string]any
				So(json.Unmarshal(res.Stats, &doc), ShouldBeNil)
				So(doc["frames"], ShouldEqual, float64(10))
				So(doc, ShouldNotContainKey, "bounce_flash")
				So(doc, ShouldNotContainKey, "point_flash")
				So(doc, ShouldNotContainKey, "operational")
			})

			Convey("Then a missing stats document reads as an empty object", func() {
				So(os.Remove(rec.Result.StatsPath), ShouldBeNil)
				res, err := svc.Results(ctx, id)
				So(err, ShouldBeNil)
				So(string(res.Stats), ShouldEqual, "{}")
			})

			Convey("Then a corrupt stats document is reported", func() {
				So(os.WriteFile(rec.Result.StatsPath, []byte("{not json"), 0o600), ShouldBeNil)
				_, err := svc.Results(ctx, id)
				So(errors.Is(err, service.ErrBadStats), ShouldBeTrue)
			})

			Convey("Then every asset is on disk", func() {
				for _, kind := range []service.AssetKind{service.AssetVideo, service.AssetPlayerHeatmap, service.AssetBallHeatmap} {
					path, err := svc.Asset(ctx, id, kind)
					So(err, ShouldBeNil)
					_, err = os.Stat(path)
					So(err, ShouldBeNil)
				}
				_, err := svc.Asset(ctx, id, "thumbnail")
				So(errors.Is(err, service.ErrInvalidKind), ShouldBeTrue)
			})

			Convey("Then live heatmaps and the timeline are served", func() {
				img, err := svc.LiveHeatmap(ctx, service.HeatmapBall, id)
				So(err, ShouldBeNil)
				So(img, ShouldNotBeEmpty)
				_, err = svc.LiveHeatmap(ctx, "court", id)
				So(errors.Is(err, service.ErrInvalidKind), ShouldBeTrue)

				page, err := svc.Timeline(ctx, id)
				So(err, ShouldBeNil)
				So(string(page), ShouldContainSubstring, "<html")
			})

			Convey("Then the archive lists it and a new service restores it", func() {
				hist, err := svc.History(ctx, 10)
				So(err, ShouldBeNil)
				So(hist, ShouldHaveLength, 1)
				So(hist[0].ID, ShouldEqual, id)
				So(svc.Stop(ctx), ShouldBeNil)

				again := newService(t, service.WithArchivePath(archivePath))
				So(again.Start(ctx), ShouldBeNil)
				defer func() { _ = again.Stop(ctx) }()

				restored, err := again.Status(ctx, id)
				So(err, ShouldBeNil)
				So(restored.Status, ShouldEqual, model.StatusCompleted)
				So(restored.LatestStats.Score, ShouldResemble, model.Score{Bottom: 1})
			})
		})

		Convey("When an empty upload is submitted", func() {
			_, err := svc.Submit(ctx, "empty.jsonl", bytes.NewReader(nil))
			So(errors.Is(err, service.ErrEmptyUpload), ShouldBeTrue)
		})

		Convey("When a broken file is submitted", func() {
			id, err := svc.Submit(ctx, "broken.jsonl", bytes.NewReader([]byte("not a track\n")))
			So(err, ShouldBeNil)
			rec := waitTerminal(ctx, svc, id)

			Convey("Then the job fails with the reason", func() {
				So(rec.Status, ShouldEqual, model.StatusFailed)
				So(rec.Error, ShouldContainSubstring, "invalid track header")
				_, err := svc.Results(ctx, id)
				So(errors.Is(err, service.ErrNotCompleted), ShouldBeTrue)
			})
		})
	})
}

func TestService_UnknownJob(t *testing.T) {
	Convey("Given a running service", t, func() {
		ctx := context.Background()
		svc := newService(t)
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		Convey("Then every read of an unknown id is ErrNotFound", func() {
			_, err := svc.Status(ctx, "nope")
			So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)
			_, err = svc.Results(ctx, "nope")
			So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)
			_, err = svc.Asset(ctx, "nope", service.AssetVideo)
			So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)
			_, err = svc.LiveHeatmap(ctx, service.HeatmapPlayer, "nope")
			So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)
			_, _, err = svc.Watch(ctx, "nope")
			So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)
		})

		Convey("Then history is empty without an archive", func() {
			hist, err := svc.History(ctx, 10)
			So(err, ShouldBeNil)
			So(hist, ShouldBeEmpty)
		})
	})
}

func TestService_Backpressure(t *testing.T) {
	Convey("Given one worker, a queue of one and a job stuck at open", t, func() {
		ctx := context.Background()
		gate := newGate()
		archivePath := filepath.Join(t.TempDir(), "archive.db")
		svc := newService(t, service.WithOpener(gate), service.WithWorkerCount(1), service.WithQueueSize(1),
			service.WithArchivePath(archivePath))
		So(svc.Start(ctx), ShouldBeNil)

		first, err := svc.Submit(ctx, "1.jsonl", bytes.NewReader(track()))
		So(err, ShouldBeNil)
		<-gate.opened

		Convey("When more jobs arrive than fit", func() {
			accepted := []string{first}
			var rejected error
			for i := 0; i < 4 && rejected == nil; i++ {
				id, err := svc.Submit(ctx, "more.jsonl", bytes.NewReader(track()))
				if err != nil {
					rejected = err
					break
				}
				accepted = append(accepted, id)
			}

			Convey("Then the overflow is refused and leaves no record", func() {
				So(errors.Is(rejected, service.ErrBackpressure), ShouldBeTrue)
				So(len(accepted), ShouldBeBetweenOrEqual, 2, 3)
				So(svc.GetStats()["totalJobs"], ShouldEqual, len(accepted))
			})

			Convey("Then a job still waiting is not completed", func() {
				_, err := svc.Asset(ctx, first, service.AssetVideo)
				So(errors.Is(err, service.ErrNotCompleted), ShouldBeTrue)
				_, err = svc.LiveHeatmap(ctx, service.HeatmapPlayer, first)
				So(errors.Is(err, service.ErrHeatmapNotReady), ShouldBeTrue)
			})

			Convey("Then Stop fails the running and the waiting jobs", func() {
				So(svc.Stop(ctx), ShouldBeNil)
				again := newService(t, service.WithArchivePath(archivePath))
				So(again.Start(ctx), ShouldBeNil)
				defer func() { _ = again.Stop(ctx) }()

				rec, err := again.Status(ctx, first)
				So(err, ShouldBeNil)
				So(rec.Status, ShouldEqual, model.StatusFailed)
				So(rec.Error, ShouldContainSubstring, "job interrupted")
				for _, id := range accepted[1:] {
					rec, err := again.Status(ctx, id)
					So(err, ShouldBeNil)
					So(rec.Status, ShouldEqual, model.StatusFailed)
					So(rec.Error, ShouldNotBeEmpty)
				}
			})
		})

		Reset(func() {
			_ = svc.Stop(ctx)
		})
	})
}
