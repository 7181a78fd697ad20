// Package analytics runs the per-frame match analysis for one job.
package analytics

import (
	"errors"
	"fmt"

	"github.com/okian/pickle/internal/domain/court"
	"github.com/okian/pickle/internal/domain/model"
	"github.com/okian/pickle/internal/domain/rally"
	"github.com/okian/pickle/internal/domain/smoothing"
	"github.com/okian/pickle/internal/domain/trajectory"
)

// ErrFrameOrder is returned when frames are not strictly increasing.
var ErrFrameOrder = errors.New("frame index out of order")

// StepResult is what one frame produced.
type StepResult struct {
	Frame     int
	Detected  bool
	Bounce    bool
	Side      model.Side
	BallCourt *model.Point
	InBounds  bool
	Players   []model.Point
	// Rally is set when this frame closed a rally.
	Rally *model.Rally
	// Point is set when the closed rally awarded a point.
	Point *model.PointAward
}

// Analyzer owns all analysis state of a single job. It is not safe for
// concurrent use.
type Analyzer struct {
	projector   court.Projector
	court       court.Court
	totalFrames int

	trackerOpts   []trajectory.Option
	engineOpts    []rally.Option
	segmenterOpts []rally.SegmenterOption

	tracker   *trajectory.Tracker
	engine    *rally.Engine
	segmenter *rally.Segmenter

	started   bool
	lastFrame int
	detected  int
	bounces   []model.BounceEvent

	ballTrack   []model.Detection
	ballCourt   []model.Point
	playerCourt []model.Point
}

// New constructs an Analyzer with the given options.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{court: court.Default()}
	for _, opt := range opts {
		opt(a)
	}
	a.tracker = trajectory.New(a.trackerOpts...)
	a.engine = rally.New(a.engineOpts...)
	a.segmenter = rally.NewSegmenter(a.segmenterOpts...)
	return a
}

// Step analyses one frame.
func (a *Analyzer) Step(f model.Frame) (StepResult, error) {
	if a.started && f.Index <= a.lastFrame {
		return StepResult{}, fmt.Errorf("%w: %d after %d", ErrFrameOrder, f.Index, a.lastFrame)
	}
	a.started = true
	a.lastFrame = f.Index

	res := StepResult{Frame: f.Index, Detected: f.Ball != nil}
	a.ballTrack = append(a.ballTrack, f.Ball)
	if res.Detected {
		a.detected++
	}

	res.Bounce = a.tracker.Observe(f.Ball)

	res.BallCourt = court.ProjectBall(a.projector, f.Ball)
	res.Side = a.tracker.SideOf(res.BallCourt, a.midline())
	a.tracker.RecordBounceOnCurrentSide()
	if res.BallCourt != nil {
		res.InBounds = a.court.InBounds(*res.BallCourt)
		a.ballCourt = append(a.ballCourt, *res.BallCourt)
	}
	a.engine.Update(res.BallCourt, res.InBounds, res.Side)

	if res.Bounce {
		a.bounces = append(a.bounces, model.BounceEvent{Frame: f.Index, Side: a.tracker.LastSide()})
	}
	res.Players = a.trackPlayers(f.Players)

	if r, ended := a.segmenter.Observe(f.Index, res.Detected); ended {
		res.Rally = &r
		res.Point = a.endRally(f.Index)
	}
	return res, nil
}

// Finish closes a rally left open when the stream ended. It returns the
// awarded point, if any.
func (a *Analyzer) Finish() *model.PointAward {
	if _, ended := a.segmenter.Finish(); !ended {
		return nil
	}
	return a.endRally(a.lastFrame)
}

func (a *Analyzer) endRally(frame int) *model.PointAward {
	award, ok := a.engine.OnRallyEnd(frame, a.tracker)
	if !ok {
		return nil
	}
	a.segmenter.Attach(award)
	return &award
}

func (a *Analyzer) trackPlayers(players []model.Box) []model.Point {
	if a.projector == nil || len(players) == 0 {
		return nil
	}
	out := make([]model.Point, 0, len(players))
	for _, p := range players {
		if pt, ok := a.projector.Project(p.Foot()); ok {
			out = append(out, pt)
		}
	}
	a.playerCourt = append(a.playerCourt, out...)
	return out
}

func (a *Analyzer) midline() *float64 {
	if a.projector == nil {
		return nil
	}
	m := a.court.Midline()
	return &m
}

// Progress is the fraction of the expected frames processed so far, or 0
// when the stream length is unknown.
func (a *Analyzer) Progress() float64 {
	if a.totalFrames <= 0 || !a.started {
		return 0
	}
	p := float64(a.lastFrame+1) / float64(a.totalFrames)
	if p > 1 {
		p = 1
	}
	return p
}

// Stats builds a snapshot of the current analysis state.
func (a *Analyzer) Stats() model.Stats {
	bounces := make([]model.BounceEvent, len(a.bounces))
	copy(bounces, a.bounces)
	rallies := a.segmenter.Rallies()
	return model.Stats{
		Score:        a.engine.Score(),
		Points:       a.engine.Points(),
		BounceCount:  a.tracker.BounceCount(),
		Bounces:      bounces,
		RallyCount:   len(rallies),
		Rallies:      rallies,
		RallyActive:  a.segmenter.Active(),
		LastSide:     a.tracker.LastSide(),
		BounceFlash:  a.tracker.BounceVisible(),
		PointFlash:   a.engine.PointVisible(),
		BallDetected: a.detected,
		Operational: model.Operational{
			CurrentFrame: a.lastFrame,
			TotalFrames:  a.totalFrames,
			Progress:     a.Progress(),
		},
	}
}

// BallPositions returns the raw projected ball positions seen so far.
func (a *Analyzer) BallPositions() []model.Point {
	out := make([]model.Point, len(a.ballCourt))
	copy(out, a.ballCourt)
	return out
}

// PlayerPositions returns the projected player foot positions seen so far.
func (a *Analyzer) PlayerPositions() []model.Point {
	out := make([]model.Point, len(a.playerCourt))
	copy(out, a.playerCourt)
	return out
}

// SmoothedBallPositions interpolates the full ball track and projects it.
// A track without any detection yields no positions and no error.
func (a *Analyzer) SmoothedBallPositions() ([]model.Point, error) {
	boxes, err := smoothing.Interpolate(a.ballTrack)
	if errors.Is(err, smoothing.ErrNoDetections) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("smooth ball track: %w", err)
	}
	if a.projector == nil {
		return nil, nil
	}
	out := make([]model.Point, 0, len(boxes))
	for _, c := range smoothing.Centers(boxes) {
		if p, ok := a.projector.Project(c); ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// Court returns the court the analyzer measures against.
func (a *Analyzer) Court() court.Court { return a.court }

// Engine exposes the rally engine for export.
func (a *Analyzer) Engine() *rally.Engine { return a.engine }
