package pipeline

import (
	"github.com/okian/pickle/internal/domain/analytics"
	"github.com/okian/pickle/internal/domain/court"
	"github.com/okian/pickle/pkg/logger"
)

// Option applies a configuration option to the Runner.
type Option func(*Runner)

// WithHeatmapInterval sets how many frames pass between live heatmap exports.
func WithHeatmapInterval(frames int) Option {
	return func(r *Runner) {
		if frames > 0 {
			r.heatmapInterval = frames
		}
	}
}

// WithHeatmapExporter replaces the default PNG heatmap renderer.
func WithHeatmapExporter(h HeatmapExporter) Option {
	return func(r *Runner) {
		if h != nil {
			r.heatmaps = h
		}
	}
}

// WithFrameRenderer replaces the bird's-eye renderer used for frames that
// arrive without an image.
func WithFrameRenderer(f FrameRenderer) Option {
	return func(r *Runner) {
		if f != nil {
			r.frames = f
		}
	}
}

// WithArchive persists finished jobs.
func WithArchive(a Archiver) Option {
	return func(r *Runner) {
		r.archive = a
	}
}

// WithCourt sets the court geometry used for bounds and heatmaps.
func WithCourt(c court.Court) Option {
	return func(r *Runner) {
		r.court = c
	}
}

// WithAnalyzerOptions passes options to every job's analyzer.
func WithAnalyzerOptions(opts ...analytics.Option) Option {
	return func(r *Runner) {
		r.analyzerOpts = append(r.analyzerOpts, opts...)
	}
}

// WithLogger sets the runner logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}
