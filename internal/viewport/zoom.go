package viewport

import "math"

const (
	ZoomMin = 0.1
	ZoomMax = 3.0
	// ZoomFriction damps the wheel delta: one notch of 110 doubles or
	// halves the scale.
	ZoomFriction = 110.0
)

// Viewport is the stage transform: a canvas point c renders at c*Zoom+Pan.
type Viewport struct {
	Pan  Point   `json:"pan"`
	Zoom float64 `json:"zoom"`
}

// Default is the viewport of a freshly opened canvas.
func Default() Viewport { return Viewport{Zoom: 1} }

// ToCanvasSpace maps a screen position through v.
func (v Viewport) ToCanvasSpace(screen Point) Point { return ToCanvasSpace(screen, v.Pan, v.Zoom) }

// ToScreen maps a canvas position through v.
func (v Viewport) ToScreen(canvas Point) Point { return ToScreen(canvas, v.Pan, v.Zoom) }

// NextScale applies one zoom-modified wheel step. A negative or zero deltaY
// zooms in. The result is rounded to 2 decimals and clamped to
// [ZoomMin, ZoomMax].
func NextScale(old, deltaY float64) float64 {
	dynamic := 1 + math.Abs(deltaY)/ZoomFriction
	next := old / dynamic
	if deltaY <= 0 {
		next = old * dynamic
	}
	return Clamp(roundTo(next, 2))
}

// Clamp limits a zoom value to [ZoomMin, ZoomMax].
func Clamp(zoom float64) float64 {
	return math.Max(ZoomMin, math.Min(ZoomMax, zoom))
}

// ZoomAt zooms v around the pointer so the canvas point under it stays
// put. A positive override replaces the computed scale and forces the
// update even when the scale did not change. It reports false when there
// was nothing to do.
func ZoomAt(v Viewport, pointer Point, deltaY, override float64) (Viewport, bool) {
	anchor := ToCanvasSpace(pointer, v.Pan, v.Zoom)
	scale := NextScale(v.Zoom, deltaY)
	if scale == v.Zoom && override <= 0 {
		return v, false
	}
	if override > 0 {
		scale = override
	}
	return Viewport{
		Pan:  Point{X: pointer.X - anchor.X*scale, Y: pointer.Y - anchor.Y*scale},
		Zoom: scale,
	}, true
}

// Scroll pans v by a plain wheel delta without touching the scale.
func Scroll(v Viewport, deltaX, deltaY float64) Viewport {
	v.Pan = Point{X: v.Pan.X - deltaX, Y: v.Pan.Y - deltaY}
	return v
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
