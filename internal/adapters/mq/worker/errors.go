package worker

import "errors"

// ErrPanic wraps a panic recovered while processing a job.
var ErrPanic = errors.New("job panicked")
