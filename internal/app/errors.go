package service

import "errors"

// Sentinel errors returned by the service. The HTTP layer maps them to
// status codes with errors.Is.
var (
	ErrNotStarted      = errors.New("service not started")
	ErrBackpressure    = errors.New("too many jobs waiting")
	ErrNotFound        = errors.New("job not found")
	ErrNotCompleted    = errors.New("job not completed")
	ErrInvalidKind     = errors.New("invalid asset kind")
	ErrAssetMissing    = errors.New("asset not available")
	ErrHeatmapNotReady = errors.New("heatmap not generated yet")
	ErrEmptyUpload     = errors.New("empty upload")
	ErrStopped         = errors.New("service stopped before the job ran")
	ErrBadStats        = errors.New("stats document is not valid json")
)
