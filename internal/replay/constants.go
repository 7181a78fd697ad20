package replay

import "time"

// Synthetic court camera: a top-down view at a fixed scale.
const (
	pixelsPerMeter = 50.0
	leadInFrames   = 10
	descentFrames  = 10
	gapFrames      = 60
	trackFPS       = 30
)

// Runner configuration constants.
const (
	retryBackoff      = 500 * time.Millisecond
	directoryPerm     = 0o750
	filePerm          = 0o600
	defaultPollPeriod = 250 * time.Millisecond
)
