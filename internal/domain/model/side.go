package model

// Side identifies a half of the court relative to the kitchen midline.
type Side string

// Court sides. SideUnknown is the zero value, used before the ball was ever
// located on the court.
const (
	SideUnknown Side = ""
	SideTop     Side = "top"
	SideBottom  Side = "bottom"
)

// Known reports whether s is one of the two court halves.
func (s Side) Known() bool {
	return s == SideTop || s == SideBottom
}

// Opposite returns the other half of the court.
func Opposite(s Side) Side {
	if s == SideTop {
		return SideBottom
	}
	return SideTop
}

// BounceEvent records a detected bounce and the side it happened on.
type BounceEvent struct {
	Frame int  `json:"frame"`
	Side  Side `json:"side"`
}

// PointAward is one entry of the append-only point log.
type PointAward struct {
	Frame  int    `json:"frame"`
	Winner Side   `json:"winner"`
	Reason string `json:"reason"`
}

// Score is the running score ledger. Player A plays the top half and
// player B the bottom half.
type Score struct {
	Top    int `json:"player_a_top"`
	Bottom int `json:"player_b_bottom"`
}

// Add credits one point to the given side.
func (s *Score) Add(side Side) {
	switch side {
	case SideTop:
		s.Top++
	case SideBottom:
		s.Bottom++
	}
}
