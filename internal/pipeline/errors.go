package pipeline

import "errors"

var (
	// ErrInterrupted marks a job cut short by service shutdown.
	ErrInterrupted = errors.New("job interrupted")
	// ErrBadMeta is returned when a source describes an unusable stream.
	ErrBadMeta = errors.New("invalid stream metadata")
)
