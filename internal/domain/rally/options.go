package rally

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithPointDisplay sets how many frames an awarded point stays flagged as visible.
func WithPointDisplay(frames int) Option {
	return func(e *Engine) {
		if frames >= 0 {
			e.displayMax = frames
		}
	}
}

// SegmenterOption applies a configuration option to the Segmenter.
type SegmenterOption func(*Segmenter)

// WithGapFrames sets how many consecutive frames without a ball end a rally.
func WithGapFrames(frames int) SegmenterOption {
	return func(s *Segmenter) {
		if frames > 0 {
			s.gapFrames = frames
		}
	}
}
