package analytics

import (
	"github.com/okian/pickle/internal/domain/court"
	"github.com/okian/pickle/internal/domain/rally"
	"github.com/okian/pickle/internal/domain/trajectory"
)

// Option applies a configuration option to the Analyzer.
type Option func(*Analyzer)

// WithProjector sets the pixel to court projection. Without one, side and
// bounds are unknown for every frame.
func WithProjector(p court.Projector) Option {
	return func(a *Analyzer) {
		a.projector = p
	}
}

// WithCourt sets the court used for bounds and the side midline.
func WithCourt(c court.Court) Option {
	return func(a *Analyzer) {
		a.court = c
	}
}

// WithTotalFrames sets the expected stream length used for progress.
func WithTotalFrames(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.totalFrames = n
		}
	}
}

// WithTrackerOptions forwards options to the trajectory tracker.
func WithTrackerOptions(opts ...trajectory.Option) Option {
	return func(a *Analyzer) {
		a.trackerOpts = append(a.trackerOpts, opts...)
	}
}

// WithEngineOptions forwards options to the rally engine.
func WithEngineOptions(opts ...rally.Option) Option {
	return func(a *Analyzer) {
		a.engineOpts = append(a.engineOpts, opts...)
	}
}

// WithSegmenterOptions forwards options to the rally segmenter.
func WithSegmenterOptions(opts ...rally.SegmenterOption) Option {
	return func(a *Analyzer) {
		a.segmenterOpts = append(a.segmenterOpts, opts...)
	}
}
