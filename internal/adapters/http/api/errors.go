package api

import "errors"

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
	ErrNoFile     = errors.New("no file part in request")
	ErrTooLarge   = errors.New("upload too large")
)
