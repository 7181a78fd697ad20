// Package mjpeg writes Motion-JPEG multipart streams, both for the live
// HTTP stream and for the annotated video file.
package mjpeg

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strconv"
)

// Boundary separates JPEG parts.
const Boundary = "frame"

// ContentType is the HTTP content type of a stream written by Writer.
const ContentType = "multipart/x-mixed-replace; boundary=" + Boundary

// ErrEmptyFrame is returned when asked to write a zero-length image.
var ErrEmptyFrame = errors.New("empty jpeg frame")

// Writer writes JPEG images as consecutive multipart parts.
type Writer struct {
	mw     *multipart.Writer
	frames int
}

// NewWriter returns a Writer using the fixed frame boundary.
func NewWriter(w io.Writer) *Writer {
	mw := multipart.NewWriter(w)
	// Boundary is a valid constant; SetBoundary only fails on bad input.
	_ = mw.SetBoundary(Boundary)
	return &Writer{mw: mw}
}

// WriteFrame appends one JPEG part.
func (w *Writer) WriteFrame(jpeg []byte) error {
	if len(jpeg) == 0 {
		return ErrEmptyFrame
	}
	h := make(textproto.MIMEHeader, 2)
	h.Set("Content-Type", "image/jpeg")
	h.Set("Content-Length", strconv.Itoa(len(jpeg)))
	part, err := w.mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("mjpeg part: %w", err)
	}
	if _, err := part.Write(jpeg); err != nil {
		return fmt.Errorf("mjpeg write: %w", err)
	}
	w.frames++
	return nil
}

// Frames returns how many parts were written.
func (w *Writer) Frames() int {
	return w.frames
}

// Close writes the closing boundary.
func (w *Writer) Close() error {
	return w.mw.Close()
}
