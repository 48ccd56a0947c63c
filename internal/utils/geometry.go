package utils

import "math"

// Point represents a 2D point.
type Point struct {
	X, Y float64
}

// Box is an axis-aligned rectangle.
type Box struct {
	MinX, MinY, MaxX, MaxY float64
}

// NewBox creates a new box from coordinates.
func NewBox(minX, minY, maxX, maxY float64) Box {
	return Box{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY}
}

// Width returns the width of the box.
func (b Box) Width() float64 { return b.MaxX - b.MinX }

// Height returns the height of the box.
func (b Box) Height() float64 { return b.MaxY - b.MinY }

// CenterY returns the vertical center.
func (b Box) CenterY() float64 { return (b.MinY + b.MaxY) / 2 }

// VerticalOverlap returns the overlap of b and o along Y divided by the
// smaller height.
func (b Box) VerticalOverlap(o Box) float64 {
	inter := math.Min(b.MaxY, o.MaxY) - math.Max(b.MinY, o.MinY)
	h := math.Min(b.Height(), o.Height())
	if inter <= 0 || h <= 0 {
		return 0
	}
	return inter / h
}

// BoundingBox returns the box enclosing pts.
func BoundingBox(pts []Point) Box {
	if len(pts) == 0 {
		return Box{}
	}
	b := Box{MinX: pts[0].X, MinY: pts[0].Y, MaxX: pts[0].X, MaxY: pts[0].Y}
	for _, p := range pts[1:] {
		b.MinX = math.Min(b.MinX, p.X)
		b.MinY = math.Min(b.MinY, p.Y)
		b.MaxX = math.Max(b.MaxX, p.X)
		b.MaxY = math.Max(b.MaxY, p.Y)
	}
	return b
}

// Quad is a four-corner region, clockwise from top-left.
type Quad [4]Point

// QuadFromBox returns the corners of b.
func QuadFromBox(b Box) Quad {
	return Quad{{b.MinX, b.MinY}, {b.MaxX, b.MinY}, {b.MaxX, b.MaxY}, {b.MinX, b.MaxY}}
}

// Bounds returns the axis-aligned box of q.
func (q Quad) Bounds() Box {
	return BoundingBox(q[:])
}
