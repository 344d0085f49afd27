// Package viewport converts between screen and canvas coordinates and owns
// the pan/zoom state of the stage.
package viewport

import "math"

// Point is a 2D position. Whether it is in screen or canvas space is up to
// the caller.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) Add(o Point) Point { return Point{X: p.X + o.X, Y: p.Y + o.Y} }
func (p Point) Sub(o Point) Point { return Point{X: p.X - o.X, Y: p.Y - o.Y} }

// Rect is an axis-aligned rectangle anchored at its top-left corner.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"width"`
	H float64 `json:"height"`
}

// Normalize flips negative extents so W and H are never negative. A
// rectangle dragged up or left has negative extents until normalized.
func (r Rect) Normalize() Rect {
	if r.W < 0 {
		r.X += r.W
		r.W = -r.W
	}
	if r.H < 0 {
		r.Y += r.H
		r.H = -r.H
	}
	return r
}

// HasArea reports whether both extents are non-zero.
func (r Rect) HasArea() bool { return r.W != 0 && r.H != 0 }

// Contains reports whether p lies inside r, edges included.
func (r Rect) Contains(p Point) bool {
	n := r.Normalize()
	return p.X >= n.X && p.X <= n.X+n.W && p.Y >= n.Y && p.Y <= n.Y+n.H
}

// Intersects reports whether the two rectangles overlap, touching edges
// included.
func (r Rect) Intersects(o Rect) bool {
	a, b := r.Normalize(), o.Normalize()
	return a.X <= b.X+b.W && b.X <= a.X+a.W && a.Y <= b.Y+b.H && b.Y <= a.Y+a.H
}

// Union returns the smallest rectangle enclosing both.
func (r Rect) Union(o Rect) Rect {
	a, b := r.Normalize(), o.Normalize()
	minX := math.Min(a.X, b.X)
	minY := math.Min(a.Y, b.Y)
	maxX := math.Max(a.X+a.W, b.X+b.W)
	maxY := math.Max(a.Y+a.H, b.Y+b.H)
	return Rect{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
}

// ToCanvasSpace maps a screen position to canvas space, rounding each axis
// to the nearest integer.
func ToCanvasSpace(screen, pan Point, zoom float64) Point {
	return Point{
		X: math.Round((screen.X - pan.X) / zoom),
		Y: math.Round((screen.Y - pan.Y) / zoom),
	}
}

// ToScreen is the render placement of a canvas point. ToCanvasSpace undoes
// it up to rounding.
func ToScreen(canvas, pan Point, zoom float64) Point {
	return Point{X: canvas.X*zoom + pan.X, Y: canvas.Y*zoom + pan.Y}
}

// RectToCanvasSpace converts an on-screen rectangle, such as a rendered
// node's client rect, to canvas space.
func RectToCanvasSpace(r Rect, pan Point, zoom float64) Rect {
	tl := ToCanvasSpace(Point{X: r.X, Y: r.Y}, pan, zoom)
	return Rect{X: tl.X, Y: tl.Y, W: r.W / zoom, H: r.H / zoom}
}
