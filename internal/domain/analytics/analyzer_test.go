package analytics_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/pickle/internal/domain/analytics"
	"github.com/okian/pickle/internal/domain/court"
	"github.com/okian/pickle/internal/domain/model"
	"github.com/okian/pickle/internal/domain/rally"
	"github.com/okian/pickle/internal/domain/trajectory"
)

// identity treats pixels as court meters.
type identity struct{}

func (identity) Project(p model.Point) (model.Point, bool) { return p, true }

func ball(y float64) model.Detection {
	return &model.Box{X1: 0, Y1: y - 1, X2: 2, Y2: y + 1}
}

func run(a *analytics.Analyzer, balls []model.Detection) []analytics.StepResult {
	out := make([]analytics.StepResult, 0, len(balls))
	for i, b := range balls {
		res, err := a.Step(model.Frame{Index: i, Ball: b})
		So(err, ShouldBeNil)
		out = append(out, res)
	}
	return out
}

func newAnalyzer(opts ...analytics.Option) *analytics.Analyzer {
	base := []analytics.Option{
		analytics.WithCourt(court.Court{Width: 100, Length: 100}),
		analytics.WithTrackerOptions(trajectory.WithCooldown(0)),
		analytics.WithSegmenterOptions(rally.WithGapFrames(3)),
	}
	return analytics.New(append(base, opts...)...)
}

func TestDoubleBounceRally(t *testing.T) {
	Convey("Given a ball bouncing twice on the top half", t, func() {
		a := newAnalyzer(analytics.WithProjector(identity{}), analytics.WithTotalFrames(20))
		balls := []model.Detection{
			ball(10), ball(20), ball(30), ball(20),
			ball(30), ball(40), ball(30),
			nil, nil, nil,
		}
		results := run(a, balls)

		Convey("Then both bounces are reported on top", func() {
			So(results[3].Bounce, ShouldBeTrue)
			So(results[6].Bounce, ShouldBeTrue)
			stats := a.Stats()
			So(stats.BounceCount, ShouldEqual, 2)
			want := []model.BounceEvent{
				{Frame: 3, Side: model.SideTop},
				{Frame: 6, Side: model.SideTop},
			}
			So(cmp.Diff(want, stats.Bounces), ShouldBeEmpty)
		})

		Convey("Then the gap closes the rally and bottom scores", func() {
			end := results[9]
			So(end.Rally, ShouldNotBeNil)
			So(*end.Rally, ShouldResemble, model.Rally{Start: 0, End: 6, Frames: 7})
			So(end.Point, ShouldNotBeNil)
			So(end.Point.Winner, ShouldEqual, model.SideBottom)
			So(end.Point.Reason, ShouldEqual, "double bounce on top side")
			So(end.Point.Frame, ShouldEqual, 9)
		})

		Convey("Then the snapshot reflects the ledger and progress", func() {
			stats := a.Stats()
			So(stats.Score, ShouldResemble, model.Score{Bottom: 1})
			So(stats.RallyCount, ShouldEqual, 1)
			So(stats.Rallies[0].Point, ShouldNotBeNil)
			So(stats.RallyActive, ShouldBeFalse)
			So(stats.BallDetected, ShouldEqual, 7)
			So(stats.Operational.CurrentFrame, ShouldEqual, 9)
			So(stats.Operational.Progress, ShouldAlmostEqual, 0.5)
			So(a.BallPositions(), ShouldHaveLength, 7)
		})

		Convey("Then Finish has nothing left to close", func() {
			So(a.Finish(), ShouldBeNil)
		})
	})
}

func TestOpenRallyAtEnd(t *testing.T) {
	Convey("Given a rally still open when the stream ends", t, func() {
		a := newAnalyzer(analytics.WithProjector(identity{}))
		run(a, []model.Detection{ball(70), ball(75), ball(80)})
		So(a.Stats().RallyActive, ShouldBeTrue)

		Convey("Then Finish awards the fallback point", func() {
			p := a.Finish()
			So(p, ShouldNotBeNil)
			So(p.Winner, ShouldEqual, model.SideTop)
			So(p.Reason, ShouldEqual, "ball last on bottom side")
			So(p.Frame, ShouldEqual, 2)
		})
	})
}

func TestNoProjection(t *testing.T) {
	Convey("Given frames without a homography", t, func() {
		a := newAnalyzer()
		results := run(a, []model.Detection{ball(10), ball(20), ball(30), ball(20), nil, nil, nil})

		Convey("Then bounces are still detected but no side is known", func() {
			So(results[3].Bounce, ShouldBeTrue)
			So(results[3].Side, ShouldEqual, model.SideUnknown)
		})

		Convey("Then the rally ends without a point", func() {
			So(results[6].Rally, ShouldNotBeNil)
			So(results[6].Point, ShouldBeNil)
			So(a.Stats().Score, ShouldResemble, model.Score{})
		})

		Convey("Then progress is unknown", func() {
			So(a.Progress(), ShouldEqual, 0)
		})
	})
}

func TestZeroDetections(t *testing.T) {
	Convey("Given a stream with no ball at all", t, func() {
		a := newAnalyzer(analytics.WithProjector(identity{}))
		results := run(a, make([]model.Detection, 120))

		Convey("Then nothing is ever inferred", func() {
			for _, r := range results {
				So(r.Bounce, ShouldBeFalse)
				So(r.Rally, ShouldBeNil)
			}
			So(a.Finish(), ShouldBeNil)
			stats := a.Stats()
			So(stats.BounceCount, ShouldEqual, 0)
			So(stats.Points, ShouldBeEmpty)
			So(stats.Score, ShouldResemble, model.Score{})
		})

		Convey("Then the smoothed track is empty without error", func() {
			pts, err := a.SmoothedBallPositions()
			So(err, ShouldBeNil)
			So(pts, ShouldBeEmpty)
		})
	})
}

func TestFrameOrder(t *testing.T) {
	Convey("Given an analyzer that saw frame 5", t, func() {
		a := newAnalyzer()
		_, err := a.Step(model.Frame{Index: 5})
		So(err, ShouldBeNil)

		Convey("Then a repeated index is rejected", func() {
			_, err := a.Step(model.Frame{Index: 5})
			So(errors.Is(err, analytics.ErrFrameOrder), ShouldBeTrue)
		})

		Convey("Then skipped indices are accepted", func() {
			_, err := a.Step(model.Frame{Index: 9})
			So(err, ShouldBeNil)
		})
	})
}

func TestPositions(t *testing.T) {
	Convey("Given frames with players and a gap in the ball track", t, func() {
		a := newAnalyzer(analytics.WithProjector(identity{}))
		players := []model.Box{{X1: 10, Y1: 10, X2: 20, Y2: 40}}
		frames := []model.Frame{
			{Index: 0, Ball: ball(10), Players: players},
			{Index: 1, Players: players},
			{Index: 2, Ball: ball(30)},
		}
		for _, f := range frames {
			_, err := a.Step(f)
			So(err, ShouldBeNil)
		}

		Convey("Then player feet are accumulated", func() {
			So(a.PlayerPositions(), ShouldResemble, []model.Point{{X: 15, Y: 40}, {X: 15, Y: 40}})
		})

		Convey("Then the smoothed track fills the gap", func() {
			pts, err := a.SmoothedBallPositions()
			So(err, ShouldBeNil)
			So(pts, ShouldHaveLength, 3)
			So(pts[1].Y, ShouldAlmostEqual, 20)
		})
	})
}
