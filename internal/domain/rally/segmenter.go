package rally

import "github.com/okian/pickle/internal/domain/model"

const defaultGapFrames = 45

// Segmenter splits the frame stream into rallies from ball visibility. A
// rally opens on the first frame with a ball and closes once the ball has
// been missing for gapFrames consecutive frames.
type Segmenter struct {
	gapFrames int

	active   bool
	start    int
	lastSeen int
	missing  int
	rallies  []model.Rally
}

// NewSegmenter constructs a Segmenter with the given options.
func NewSegmenter(opts ...SegmenterOption) *Segmenter {
	s := &Segmenter{gapFrames: defaultGapFrames}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Observe records whether the ball was detected on frame. When the frame
// closes a rally the finished rally is returned with ok set.
func (s *Segmenter) Observe(frame int, detected bool) (model.Rally, bool) {
	if detected {
		if !s.active {
			s.active = true
			s.start = frame
		}
		s.lastSeen = frame
		s.missing = 0
		return model.Rally{}, false
	}
	if !s.active {
		return model.Rally{}, false
	}
	s.missing++
	if s.missing < s.gapFrames {
		return model.Rally{}, false
	}
	return s.close(), true
}

// Finish closes a rally still open at the end of the stream.
func (s *Segmenter) Finish() (model.Rally, bool) {
	if !s.active {
		return model.Rally{}, false
	}
	return s.close(), true
}

// Attach records the point awarded for the most recently closed rally.
func (s *Segmenter) Attach(p model.PointAward) {
	if len(s.rallies) == 0 {
		return
	}
	award := p
	s.rallies[len(s.rallies)-1].Point = &award
}

// Active reports whether a rally is in progress.
func (s *Segmenter) Active() bool { return s.active }

// Rallies returns a copy of the closed rallies.
func (s *Segmenter) Rallies() []model.Rally {
	out := make([]model.Rally, len(s.rallies))
	copy(out, s.rallies)
	return out
}

func (s *Segmenter) close() model.Rally {
	r := model.Rally{Start: s.start, End: s.lastSeen, Frames: s.lastSeen - s.start + 1}
	s.rallies = append(s.rallies, r)
	s.active = false
	s.missing = 0
	return r
}
