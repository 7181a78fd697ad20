// Package model contains domain models passed between layers.
package model

// Point is a 2D position, either in image pixels or in court coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Box is an axis-aligned bounding box in image pixels.
type Box struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Center returns the midpoint of the box.
func (b Box) Center() Point {
	return Point{X: (b.X1 + b.X2) / 2, Y: (b.Y1 + b.Y2) / 2}
}

// CenterY returns the vertical center used for direction inference.
func (b Box) CenterY() float64 {
	return (b.Y1 + b.Y2) / 2
}

// Foot returns the bottom-center of the box, where a player touches the court.
func (b Box) Foot() Point {
	return Point{X: (b.X1 + b.X2) / 2, Y: b.Y2}
}

// Detection is the optional ball box for one frame. Nil means the detector
// found no ball in that frame.
type Detection = *Box

// Frame is one unit of the upstream stream: the frame index, an optional
// encoded JPEG and the detections for that frame.
type Frame struct {
	Index   int
	Image   []byte
	Ball    Detection
	Players []Box
}
