package trajectory

// Option applies a configuration option to the Tracker.
type Option func(*Tracker)

// WithHistory sets how many vertical centers are kept for direction inference.
// Values below 3 are ignored because a reversal needs three samples.
func WithHistory(n int) Option {
	return func(t *Tracker) {
		if n >= minSamples {
			t.historyLen = n
		}
	}
}

// WithCooldown sets the minimum number of frames between two bounces.
func WithCooldown(frames int) Option {
	return func(t *Tracker) {
		if frames >= 0 {
			t.cooldownMax = frames
		}
	}
}

// WithBounceDisplay sets how many frames a bounce stays flagged as visible.
func WithBounceDisplay(frames int) Option {
	return func(t *Tracker) {
		if frames >= 0 {
			t.displayMax = frames
		}
	}
}
