package source

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/okian/pickle/internal/domain/model"
)

const maxLineBytes = 16 << 20

// header is the first line of a track file.
type header struct {
	Meta
	Format string `json:"format,omitempty"`
}

// record is one frame line. Ball is null when nothing was detected.
type record struct {
	Frame   *int         `json:"frame,omitempty"`
	Ball    *[4]float64  `json:"ball"`
	Players [][4]float64 `json:"players,omitempty"`
	Image   []byte       `json:"image,omitempty"`
}

// TrackFormat names the detection-track file format.
const TrackFormat = "pickle-track/v1"

// TrackOpener opens JSON lines detection tracks from disk.
type TrackOpener struct{}

// Open implements Opener.
func (TrackOpener) Open(_ context.Context, path string) (Source, error) {
	f, err := os.Open(path) //nolint:gosec // path is produced by the upload handler
	if err != nil {
		return nil, fmt.Errorf("open track: %w", err)
	}
	src, err := NewTrackReader(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return src, nil
}

// TrackReader decodes a detection track from any reader.
type TrackReader struct {
	mu      sync.Mutex
	scanner *bufio.Scanner
	closer  io.Closer
	meta    Meta
	next    int
	line    int
	closed  bool
}

// NewTrackReader reads the header line and returns a Source for the rest.
func NewTrackReader(r io.Reader) (*TrackReader, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadHeader, err)
		}
		return nil, fmt.Errorf("%w: empty input", ErrBadHeader)
	}
	var h header
	if err := json.Unmarshal(sc.Bytes(), &h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadHeader, err)
	}
	if h.Format != "" && h.Format != TrackFormat {
		return nil, fmt.Errorf("%w: unsupported format %q", ErrBadHeader, h.Format)
	}
	if h.TotalFrames < 0 {
		return nil, fmt.Errorf("%w: negative total_frames", ErrBadHeader)
	}
	if n := len(h.Homography); n != 0 && n != 9 {
		return nil, fmt.Errorf("%w: homography needs 9 values, got %d", ErrBadHeader, n)
	}
	t := &TrackReader{scanner: sc, meta: h.Meta, line: 1}
	if c, ok := r.(io.Closer); ok {
		t.closer = c
	}
	return t, nil
}

// Meta implements Source.
func (t *TrackReader) Meta() Meta {
	return t.meta
}

// Next implements Source. Blank lines are skipped.
func (t *TrackReader) Next(ctx context.Context) (model.Frame, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return model.Frame{}, ErrClosed
	}
	for {
		if err := ctx.Err(); err != nil {
			return model.Frame{}, err
		}
		if !t.scanner.Scan() {
			if err := t.scanner.Err(); err != nil {
				return model.Frame{}, fmt.Errorf("read track line %d: %w", t.line+1, err)
			}
			return model.Frame{}, io.EOF
		}
		t.line++
		raw := t.scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return model.Frame{}, fmt.Errorf("%w: line %d: %v", ErrBadRecord, t.line, err)
		}
		return t.frame(rec), nil
	}
}

func (t *TrackReader) frame(rec record) model.Frame {
	idx := t.next
	if rec.Frame != nil {
		idx = *rec.Frame
	}
	t.next = idx + 1

	f := model.Frame{Index: idx, Image: rec.Image}
	if rec.Ball != nil {
		b := toBox(*rec.Ball)
		f.Ball = &b
	}
	if len(rec.Players) > 0 {
		f.Players = make([]model.Box, len(rec.Players))
		for i, p := range rec.Players {
			f.Players[i] = toBox(p)
		}
	}
	return f
}

// Close implements Source.
func (t *TrackReader) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.closer != nil {
		if err := t.closer.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			return fmt.Errorf("close track: %w", err)
		}
	}
	return nil
}

func toBox(v [4]float64) model.Box {
	return model.Box{X1: v[0], Y1: v[1], X2: v[2], Y2: v[3]}
}

func fromBox(b model.Box) [4]float64 {
	return [4]float64{b.X1, b.Y1, b.X2, b.Y2}
}

// TrackWriter encodes frames in the track format.
type TrackWriter struct {
	w   *bufio.Writer
	enc *json.Encoder
}

// NewTrackWriter writes the header line and returns a writer for frames.
func NewTrackWriter(w io.Writer, meta Meta) (*TrackWriter, error) {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	if err := enc.Encode(header{Meta: meta, Format: TrackFormat}); err != nil {
		return nil, fmt.Errorf("write track header: %w", err)
	}
	return &TrackWriter{w: bw, enc: enc}, nil
}

// Write appends one frame.
func (t *TrackWriter) Write(f model.Frame) error {
	idx := f.Index
	rec := record{Frame: &idx, Image: f.Image}
	if f.Ball != nil {
		b := fromBox(*f.Ball)
		rec.Ball = &b
	}
	for _, p := range f.Players {
		rec.Players = append(rec.Players, fromBox(p))
	}
	if err := t.enc.Encode(rec); err != nil {
		return fmt.Errorf("write track frame %d: %w", f.Index, err)
	}
	return nil
}

// Flush writes any buffered frames.
func (t *TrackWriter) Flush() error {
	return t.w.Flush()
}
