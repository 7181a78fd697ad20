package trajectory_test

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/pickle/internal/domain/model"
	"github.com/okian/pickle/internal/domain/trajectory"
)

// ball returns a detection whose vertical center is y.
func ball(y float64) model.Detection {
	return &model.Box{X1: 0, Y1: y - 1, X2: 2, Y2: y + 1}
}

// feed observes one detection per value and returns the frames that bounced.
func feed(tr *trajectory.Tracker, ys []float64) []int {
	var frames []int
	for i, y := range ys {
		if tr.Observe(ball(y)) {
			frames = append(frames, i)
		}
	}
	return frames
}

func ptr(v float64) *float64 { return &v }

func TestObserve(t *testing.T) {
	Convey("Given a fresh tracker", t, func() {
		tr := trajectory.New()

		Convey("When the ball goes down then up", func() {
			bounces := feed(tr, []float64{10, 20, 30, 20})

			Convey("Then the reversal frame is a bounce", func() {
				So(bounces, ShouldResemble, []int{3})
				So(tr.BounceCount(), ShouldEqual, 1)
				So(tr.BounceVisible(), ShouldBeTrue)
			})
		})

		Convey("When fewer than three samples were seen", func() {
			bounces := feed(tr, []float64{30, 20})
			So(bounces, ShouldBeEmpty)
		})

		Convey("When two reversals are 3 frames apart", func() {
			bounces := feed(tr, []float64{10, 20, 30, 20, 30, 40, 30})

			Convey("Then the cooldown suppresses the second one", func() {
				So(bounces, ShouldResemble, []int{3})
				So(tr.BounceCount(), ShouldEqual, 1)
			})
		})

		Convey("When two reversals are 20 frames apart", func() {
			ys := []float64{10, 20, 30, 20}
			for y := 19.0; y >= 11; y-- {
				ys = append(ys, y)
			}
			for y := 12.0; y <= 21; y++ {
				ys = append(ys, y)
			}
			ys = append(ys, 15)
			bounces := feed(tr, ys)

			Convey("Then both are bounces", func() {
				So(bounces, ShouldResemble, []int{3, 23})
				So(tr.BounceCount(), ShouldEqual, 2)
			})
		})

		Convey("When a detection drops out mid descent", func() {
			So(tr.Observe(ball(10)), ShouldBeFalse)
			So(tr.Observe(ball(20)), ShouldBeFalse)
			So(tr.Observe(ball(30)), ShouldBeFalse)
			So(tr.Observe(nil), ShouldBeFalse)

			Convey("Then the reversal after the gap still counts", func() {
				So(tr.Observe(ball(20)), ShouldBeTrue)
			})
		})

		Convey("When the ball is never detected", func() {
			for i := 0; i < 100; i++ {
				So(tr.Observe(nil), ShouldBeFalse)
			}

			Convey("Then nothing is ever counted", func() {
				So(tr.BounceCount(), ShouldEqual, 0)
				_, ok := tr.DoubleBounceSide()
				So(ok, ShouldBeFalse)
			})
		})
	})

	Convey("Given a tracker without cooldown", t, func() {
		tr := trajectory.New(trajectory.WithCooldown(0))

		Convey("Then reversals 3 frames apart both count", func() {
			bounces := feed(tr, []float64{10, 20, 30, 20, 30, 40, 30})
			So(bounces, ShouldResemble, []int{3, 6})
		})
	})
}

func TestSideOf(t *testing.T) {
	Convey("Given a tracker and a midline at 10", t, func() {
		tr := trajectory.New()
		mid := ptr(10)

		Convey("Then points above the midline are top", func() {
			So(tr.SideOf(&model.Point{Y: 4}, mid), ShouldEqual, model.SideTop)
			So(tr.SideOf(&model.Point{Y: 10}, mid), ShouldEqual, model.SideBottom)
		})

		Convey("And missing inputs keep the last side", func() {
			So(tr.SideOf(nil, mid), ShouldEqual, model.SideUnknown)
			tr.SideOf(&model.Point{Y: 14}, mid)
			So(tr.SideOf(nil, mid), ShouldEqual, model.SideBottom)
			So(tr.SideOf(&model.Point{Y: 2}, nil), ShouldEqual, model.SideBottom)
			So(tr.LastSide(), ShouldEqual, model.SideBottom)
		})
	})
}

func TestSideTallies(t *testing.T) {
	Convey("Given a ball bouncing on the top side", t, func() {
		tr := trajectory.New(trajectory.WithCooldown(0))
		mid := ptr(10)
		top := &model.Point{Y: 2}
		bottom := &model.Point{Y: 18}

		step := func(y float64, p *model.Point) {
			tr.Observe(ball(y))
			tr.SideOf(p, mid)
			tr.RecordBounceOnCurrentSide()
		}
		step(10, top)
		step(20, top)
		step(30, top)
		step(20, top)
		So(tr.Tally(model.SideTop), ShouldEqual, 1)

		Convey("When the ball crosses to bottom and back", func() {
			step(30, bottom)
			So(tr.Tally(model.SideTop), ShouldEqual, 0)
			step(40, top)
			So(tr.Tally(model.SideTop), ShouldEqual, 0)

			Convey("Then a new bounce on top reads 1, not 2", func() {
				step(30, top)
				So(tr.Tally(model.SideTop), ShouldEqual, 1)
				_, ok := tr.DoubleBounceSide()
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When it bounces again on top", func() {
			step(30, top)
			step(40, top)
			step(30, top)

			Convey("Then top reports a double bounce", func() {
				side, ok := tr.DoubleBounceSide()
				So(ok, ShouldBeTrue)
				So(side, ShouldEqual, model.SideTop)
			})

			Convey("And ResetRally clears it idempotently", func() {
				tr.ResetRally()
				So(tr.Tally(model.SideTop), ShouldEqual, 0)
				tr.ResetRally()
				So(tr.Tally(model.SideTop), ShouldEqual, 0)
				So(tr.Tally(model.SideBottom), ShouldEqual, 0)
				_, ok := tr.DoubleBounceSide()
				So(ok, ShouldBeFalse)
			})

			Convey("And ResetRally keeps the bounce count", func() {
				before := tr.BounceCount()
				tr.ResetRally()
				So(tr.BounceCount(), ShouldEqual, before)
			})
		})
	})

	Convey("Given a bounce before any side is known", t, func() {
		tr := trajectory.New()
		feed(tr, []float64{10, 20, 30, 20})
		tr.RecordBounceOnCurrentSide()

		Convey("Then no tally is credited", func() {
			So(tr.Tally(model.SideTop), ShouldEqual, 0)
			So(tr.Tally(model.SideBottom), ShouldEqual, 0)
		})
	})
}
