package court

import "errors"

var (
	// ErrBadHomography is returned when the matrix does not have 9 entries.
	ErrBadHomography = errors.New("homography needs 9 values")
	// ErrSingular is returned for a homography that cannot map the plane.
	ErrSingular = errors.New("homography is singular")
)
