// Package trajectory turns per-frame ball detections into bounce and side events.
//
// A bounce is a reversal of the ball's vertical screen direction: moving
// down (y increasing) and then up (y decreasing). Frames without a
// detection leave the direction state untouched, so a single dropout does
// not break a descent. A cooldown suppresses repeated triggers from jitter.
package trajectory

import "github.com/okian/pickle/internal/domain/model"

// Default tracker configuration constants.
const (
	defaultHistoryLen    = 5
	defaultCooldown      = 15
	defaultBounceDisplay = 3
	minSamples           = 3
	doubleBounceTally    = 2
)

// Tracker is the per-job trajectory state machine. It is not safe for
// concurrent use; one worker owns it for the life of a job.
type Tracker struct {
	historyLen  int
	cooldownMax int
	displayMax  int

	ys           []float64
	wasGoingDown bool
	cooldown     int
	display      int
	bounced      bool
	bounceCount  int

	lastSide model.Side
	tally    map[model.Side]int
}

// New constructs a Tracker with the given options.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		historyLen:  defaultHistoryLen,
		cooldownMax: defaultCooldown,
		displayMax:  defaultBounceDisplay,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.ys = make([]float64, 0, t.historyLen)
	t.tally = map[model.Side]int{model.SideTop: 0, model.SideBottom: 0}
	return t
}

// Observe consumes the detection for one frame and reports whether a bounce
// was detected on this frame.
func (t *Tracker) Observe(det model.Detection) bool {
	t.bounced = false
	if t.cooldown > 0 {
		t.cooldown--
	}
	if t.display > 0 {
		t.display--
	}
	if det == nil {
		return false
	}

	if len(t.ys) == t.historyLen {
		copy(t.ys, t.ys[1:])
		t.ys = t.ys[:len(t.ys)-1]
	}
	t.ys = append(t.ys, det.CenterY())
	if len(t.ys) < minSamples {
		return false
	}

	n := len(t.ys)
	goingDown := t.ys[n-2] > t.ys[n-3]
	goingUp := t.ys[n-1] < t.ys[n-2]

	if t.wasGoingDown && goingUp && t.cooldown == 0 {
		t.bounced = true
		t.cooldown = t.cooldownMax
		t.display = t.displayMax
		t.bounceCount++
	}

	switch {
	case goingDown:
		t.wasGoingDown = true
	case goingUp:
		t.wasGoingDown = false
	}
	return t.bounced
}

// SideOf classifies a projected court point against the kitchen midline.
// Without a point or a midline the last known side is returned unchanged.
// Crossing to the other half zeroes both tallies, so a tally only counts
// bounces made while the ball stayed on one side.
func (t *Tracker) SideOf(proj *model.Point, midline *float64) model.Side {
	if proj == nil || midline == nil {
		return t.lastSide
	}
	side := model.SideBottom
	if proj.Y < *midline {
		side = model.SideTop
	}
	if t.lastSide.Known() && side != t.lastSide {
		t.tally[t.lastSide] = 0
		t.tally[side] = 0
	}
	t.lastSide = side
	return side
}

// RecordBounceOnCurrentSide credits the bounce detected on this frame, if
// any, to the last known side.
func (t *Tracker) RecordBounceOnCurrentSide() {
	if t.bounced && t.lastSide.Known() {
		t.tally[t.lastSide]++
	}
}

// DoubleBounceSide returns a side holding two or more consecutive bounces.
func (t *Tracker) DoubleBounceSide() (model.Side, bool) {
	for _, side := range []model.Side{model.SideTop, model.SideBottom} {
		if t.tally[side] >= doubleBounceTally {
			return side, true
		}
	}
	return model.SideUnknown, false
}

// ResetRally zeroes the per-side tallies. Direction history, cooldown and
// the bounce count carry over to the next rally.
func (t *Tracker) ResetRally() {
	t.tally[model.SideTop] = 0
	t.tally[model.SideBottom] = 0
}

// Tally returns the consecutive bounce count for a side.
func (t *Tracker) Tally(side model.Side) int {
	return t.tally[side]
}

// BounceCount returns the number of bounces detected so far in the job.
func (t *Tracker) BounceCount() int { return t.bounceCount }

// Bounced reports whether the last observed frame was a bounce.
func (t *Tracker) Bounced() bool { return t.bounced }

// BounceVisible reports whether a recent bounce should still be shown.
func (t *Tracker) BounceVisible() bool { return t.display > 0 }

// LastSide returns the last side the ball was located on.
func (t *Tracker) LastSide() model.Side { return t.lastSide }
