// Package rally decides who wins each rally and keeps the score ledger.
package rally

import (
	"fmt"

	"github.com/okian/pickle/internal/domain/model"
)

const defaultPointDisplay = 18

// Tally is the per-side bounce state the engine consults when a rally ends.
// trajectory.Tracker satisfies it.
type Tally interface {
	DoubleBounceSide() (model.Side, bool)
	ResetRally()
}

// Engine holds rally-scoped ball state and the job's score ledger.
// It is owned by a single worker and is not safe for concurrent use.
type Engine struct {
	displayMax int
	display    int

	lastSide    model.Side
	wasInBounds bool
	wentOut     bool

	score  model.Score
	points []model.PointAward
	last   *model.PointAward
}

// New constructs an Engine with the given options.
func New(opts ...Option) *Engine {
	e := &Engine{displayMax: defaultPointDisplay}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Update feeds the engine one frame of ball state. proj is the ball position
// in court coordinates, nil when the ball or the projection is unavailable.
func (e *Engine) Update(proj *model.Point, inBounds bool, side model.Side) {
	if side.Known() {
		e.lastSide = side
	}
	if e.wasInBounds && !inBounds && proj != nil {
		e.wentOut = true
	}
	e.wasInBounds = inBounds
	if e.display > 0 {
		e.display--
	}
}

// OnRallyEnd attributes the finished rally. Rules are tried in order and the
// first one that applies decides the winner:
//
//  1. a side with a double bounce loses;
//  2. after an out of bounds exit the last side the ball was on loses;
//  3. otherwise the last side the ball was on loses.
//
// With no side ever known no point is awarded. The out of bounds latch and
// the tallies are reset either way.
func (e *Engine) OnRallyEnd(frame int, tally Tally) (model.PointAward, bool) {
	defer func() {
		e.wentOut = false
		tally.ResetRally()
	}()

	var award model.PointAward
	switch side, double := tally.DoubleBounceSide(); {
	case double:
		award = model.PointAward{
			Winner: model.Opposite(side),
			Reason: fmt.Sprintf("double bounce on %s side", side),
		}
	case e.wentOut && e.lastSide.Known():
		award = model.PointAward{
			Winner: model.Opposite(e.lastSide),
			Reason: fmt.Sprintf("ball out of bounds (last on %s side)", e.lastSide),
		}
	case e.lastSide.Known():
		award = model.PointAward{
			Winner: model.Opposite(e.lastSide),
			Reason: fmt.Sprintf("ball last on %s side", e.lastSide),
		}
	default:
		return model.PointAward{}, false
	}

	award.Frame = frame
	e.score.Add(award.Winner)
	e.points = append(e.points, award)
	e.last = &e.points[len(e.points)-1]
	e.display = e.displayMax
	return award, true
}

// Score returns the current ledger.
func (e *Engine) Score() model.Score { return e.score }

// Points returns a copy of the point log.
func (e *Engine) Points() []model.PointAward {
	out := make([]model.PointAward, len(e.points))
	copy(out, e.points)
	return out
}

// PointVisible reports whether the last point should still be flashed.
func (e *Engine) PointVisible() bool { return e.display > 0 }

// LastPoint returns the most recent award, if any.
func (e *Engine) LastPoint() (model.PointAward, bool) {
	if e.last == nil {
		return model.PointAward{}, false
	}
	return *e.last, true
}

// LastSide returns the last side reported to Update.
func (e *Engine) LastSide() model.Side { return e.lastSide }

// WentOutOfBounds reports whether the ball left the court during the current rally.
func (e *Engine) WentOutOfBounds() bool { return e.wentOut }

// Export is the score section of the stats document.
type Export struct {
	Score  model.Score        `json:"score"`
	Points []model.PointAward `json:"points"`
}

// Export returns the score section of the final stats document.
func (e *Engine) Export() Export {
	return Export{Score: e.score, Points: e.Points()}
}
