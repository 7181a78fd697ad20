package source_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/pickle/internal/adapters/source"
	"github.com/okian/pickle/internal/domain/model"
)

const sample = `{"fps":30,"total_frames":3,"homography":[1,0,0,0,1,0,0,0,1]}
{"frame":0,"ball":[10,20,14,24],"players":[[0,0,10,40]]}
{"frame":1,"ball":null}

{"ball":[11,21,15,25],"image":"/9j/"}
`

func TestTrackReader(t *testing.T) {
	ctx := context.Background()

	Convey("Given a detection track", t, func() {
		src, err := source.NewTrackReader(strings.NewReader(sample))
		So(err, ShouldBeNil)
		defer func() { _ = src.Close() }()

		Convey("Then the header is exposed as meta", func() {
			m := src.Meta()
			So(m.FPS, ShouldEqual, 30)
			So(m.TotalFrames, ShouldEqual, 3)
			So(m.Homography, ShouldHaveLength, 9)
		})

		Convey("When all frames are read", func() {
			var frames []model.Frame
			for {
				f, err := src.Next(ctx)
				if errors.Is(err, io.EOF) {
					break
				}
				So(err, ShouldBeNil)
				frames = append(frames, f)
			}

			Convey("Then detections and gaps come through in order", func() {
				So(frames, ShouldHaveLength, 3)
				So(frames[0].Ball, ShouldResemble, &model.Box{X1: 10, Y1: 20, X2: 14, Y2: 24})
				So(frames[0].Players, ShouldResemble, []model.Box{{X1: 0, Y1: 0, X2: 10, Y2: 40}})
				So(frames[1].Ball, ShouldBeNil)
			})

			Convey("And a missing index continues from the previous frame", func() {
				So(frames[2].Index, ShouldEqual, 2)
				So(frames[2].Image, ShouldResemble, []byte{0xFF, 0xD8, 0xFF})
			})
		})

		Convey("When the source is closed", func() {
			So(src.Close(), ShouldBeNil)
			So(src.Close(), ShouldBeNil)
			_, err := src.Next(ctx)
			So(errors.Is(err, source.ErrClosed), ShouldBeTrue)
		})
	})

	Convey("Given malformed input", t, func() {
		Convey("Then an empty file has no header", func() {
			_, err := source.NewTrackReader(strings.NewReader(""))
			So(errors.Is(err, source.ErrBadHeader), ShouldBeTrue)
		})

		Convey("Then a short homography is rejected", func() {
			_, err := source.NewTrackReader(strings.NewReader(`{"fps":30,"homography":[1,2,3]}` + "\n"))
			So(errors.Is(err, source.ErrBadHeader), ShouldBeTrue)
		})

		Convey("Then an unknown format is rejected", func() {
			_, err := source.NewTrackReader(strings.NewReader(`{"format":"other/v9"}` + "\n"))
			So(errors.Is(err, source.ErrBadHeader), ShouldBeTrue)
		})

		Convey("Then a broken frame line fails that frame", func() {
			src, err := source.NewTrackReader(strings.NewReader("{}\n{\"ball\":[1,2,3,4]}\nnot json\n"))
			So(err, ShouldBeNil)
			_, err = src.Next(ctx)
			So(err, ShouldBeNil)
			_, err = src.Next(ctx)
			So(errors.Is(err, source.ErrBadRecord), ShouldBeTrue)
		})
	})

	Convey("Given a cancelled context", t, func() {
		src, err := source.NewTrackReader(strings.NewReader(sample))
		So(err, ShouldBeNil)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err = src.Next(cctx)
		So(errors.Is(err, context.Canceled), ShouldBeTrue)
	})
}

func TestTrackWriter(t *testing.T) {
	Convey("Given frames written with the track writer", t, func() {
		var buf bytes.Buffer
		w, err := source.NewTrackWriter(&buf, source.Meta{FPS: 25, TotalFrames: 2})
		So(err, ShouldBeNil)
		So(w.Write(model.Frame{Index: 0, Ball: &model.Box{X1: 1, Y1: 2, X2: 3, Y2: 4}}), ShouldBeNil)
		So(w.Write(model.Frame{Index: 1, Players: []model.Box{{X1: 5, Y1: 6, X2: 7, Y2: 8}}}), ShouldBeNil)
		So(w.Flush(), ShouldBeNil)

		Convey("Then the opener reads them back from disk", func() {
			path := filepath.Join(t.TempDir(), "track.jsonl")
			So(os.WriteFile(path, buf.Bytes(), 0o600), ShouldBeNil)

			src, err := source.TrackOpener{}.Open(context.Background(), path)
			So(err, ShouldBeNil)
			defer func() { _ = src.Close() }()

			So(src.Meta().FPS, ShouldEqual, 25)
			f, err := src.Next(context.Background())
			So(err, ShouldBeNil)
			So(f.Ball, ShouldResemble, &model.Box{X1: 1, Y1: 2, X2: 3, Y2: 4})
			f, err = src.Next(context.Background())
			So(err, ShouldBeNil)
			So(f.Ball, ShouldBeNil)
			So(f.Index, ShouldEqual, 1)
			_, err = src.Next(context.Background())
			So(errors.Is(err, io.EOF), ShouldBeTrue)
		})

		Convey("Then opening a missing file fails", func() {
			_, err := source.TrackOpener{}.Open(context.Background(), filepath.Join(t.TempDir(), "nope"))
			So(err, ShouldNotBeNil)
		})
	})
}
