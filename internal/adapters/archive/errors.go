package archive

import "errors"

var (
	// ErrNotFound is returned when no archived job has the requested id.
	ErrNotFound = errors.New("archived job not found")
	// ErrNotTerminal is returned when saving a job that is still processing.
	ErrNotTerminal = errors.New("job is not finished")
)
