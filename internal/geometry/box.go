// Package geometry provides axis-aligned bounding box types and overlap
// math used by the match and validate packages.
package geometry

import "fmt"

// Box is an axis-aligned rectangle with an optional frame index.
// A nil Frame means the box is a whole-clip claim and is eligible to
// overlap boxes on any frame.
type Box struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	W     float64 `json:"w"`
	H     float64 `json:"h"`
	Frame *int    `json:"frame,omitempty"`
}

// NewFrameBox returns a box pinned to a specific frame index.
func NewFrameBox(x, y, w, h float64, frame int) Box {
	f := frame
	return Box{X: x, Y: y, W: w, H: h, Frame: &f}
}

// FromCorners converts an [x1 y1 x2 y2] corner quad into a Box.
// Corners may arrive in either order.
func FromCorners(x1, y1, x2, y2 float64) Box {
	if x2 < x1 {
		x1, x2 = x2, x1
	}
	if y2 < y1 {
		y1, y2 = y2, y1
	}
	return Box{X: x1, Y: y1, W: x2 - x1, H: y2 - y1}
}

// Area returns the box area. Boxes with non-positive extents have zero area.
func (b Box) Area() float64 {
	if b.W <= 0 || b.H <= 0 {
		return 0
	}
	return b.W * b.H
}

// Valid reports whether the box has non-negative extents.
func (b Box) Valid() bool {
	return b.W >= 0 && b.H >= 0
}

// SameFrame reports whether two boxes are eligible for comparison.
// A box without a frame index matches any frame.
func (b Box) SameFrame(other Box) bool {
	if b.Frame == nil || other.Frame == nil {
		return true
	}
	return *b.Frame == *other.Frame
}

// IoU computes intersection-over-union between two boxes. Frame indices
// are not consulted here; callers gate comparisons with SameFrame first.
// Returns 0 when the union area is zero.
func IoU(a, b Box) float64 {
	ix := max(a.X, b.X)
	iy := max(a.Y, b.Y)
	ix2 := min(a.X+a.W, b.X+b.W)
	iy2 := min(a.Y+a.H, b.Y+b.H)

	if ix2 <= ix || iy2 <= iy {
		return 0
	}

	inter := (ix2 - ix) * (iy2 - iy)
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func (b Box) String() string {
	if b.Frame != nil {
		return fmt.Sprintf("box(%.1f,%.1f %gx%g f%d)", b.X, b.Y, b.W, b.H, *b.Frame)
	}
	return fmt.Sprintf("box(%.1f,%.1f %gx%g)", b.X, b.Y, b.W, b.H)
}
