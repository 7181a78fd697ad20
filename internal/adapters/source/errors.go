package source

import "errors"

var (
	// ErrBadHeader is returned when the track header cannot be parsed.
	ErrBadHeader = errors.New("invalid track header")
	// ErrBadRecord is returned for a frame line that cannot be parsed.
	ErrBadRecord = errors.New("invalid track record")
	// ErrClosed is returned by Next after Close.
	ErrClosed = errors.New("source closed")
)
