package render

import "errors"

// ErrEncode is returned when an image or page cannot be produced.
var ErrEncode = errors.New("render encode failed")
