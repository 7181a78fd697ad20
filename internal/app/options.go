package service

import (
	"github.com/okian/pickle/internal/adapters/source"
	"github.com/okian/pickle/internal/domain/court"
	"github.com/okian/pickle/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of jobs processed concurrently.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the admission queue capacity.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithUploadDir sets where uploaded inputs are stored.
func WithUploadDir(dir string) Option {
	return func(s *Service) {
		if dir != "" {
			s.uploadDir = dir
		}
	}
}

// WithOutputDir sets where job artifacts are written.
func WithOutputDir(dir string) Option {
	return func(s *Service) {
		if dir != "" {
			s.outputDir = dir
		}
	}
}

// WithArchivePath enables the SQLite results archive.
func WithArchivePath(path string) Option {
	return func(s *Service) {
		s.archivePath = path
	}
}

// WithHeatmapInterval sets the frames between live heatmap exports.
func WithHeatmapInterval(frames int) Option {
	return func(s *Service) {
		if frames > 0 {
			s.heatmapInterval = frames
		}
	}
}

// WithCourt sets the court geometry.
func WithCourt(c court.Court) Option {
	return func(s *Service) {
		if c.Width > 0 && c.Length > 0 {
			s.court = c
		}
	}
}

// Tuning holds the detection heuristics, in frames.
type Tuning struct {
	History        int
	BounceCooldown int
	BounceDisplay  int
	PointDisplay   int
	RallyGap       int
}

// WithTuning sets the detection heuristics.
func WithTuning(t Tuning) Option {
	return func(s *Service) {
		s.tuning = t
	}
}

// WithOpener replaces the frame source opener.
func WithOpener(o source.Opener) Option {
	return func(s *Service) {
		if o != nil {
			s.opener = o
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
