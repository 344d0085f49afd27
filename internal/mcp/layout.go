package mcpserver

import (
	"math"

	"canvas/internal/domain"
	"canvas/internal/selection"
	"canvas/internal/viewport"
)

const (
	GridSize = 30.0
	Padding  = 60.0 // kept clear around every placed instance
	MaxRowW  = 1800.0

	// Notes have no stored size; agents place them as if they were this big.
	NoteWidth  = 200.0
	NoteHeight = 120.0

	maxScanY = 100000.0
)

// LayoutEngine finds free spots on the canvas so that agent-created
// notes don't land on top of existing instances.
type LayoutEngine struct {
	gridSize float64
	padding  float64
	maxRowW  float64
}

func NewLayoutEngine() *LayoutEngine {
	return &LayoutEngine{gridSize: GridSize, padding: Padding, maxRowW: MaxRowW}
}

// snap rounds v to the nearest grid point.
func (le *LayoutEngine) snap(v float64) float64 {
	return math.Round(v/le.gridSize) * le.gridSize
}

// footprint is the canvas-space box an instance covers.
func footprint(e selection.Entry) viewport.Rect {
	in := e.Instance
	scale := in.Scale
	if scale == 0 {
		scale = 1
	}
	r := viewport.Rect{X: in.X, Y: in.Y}
	switch {
	case e.Kind == domain.KindContainer && e.Container != nil:
		r.W, r.H = e.Container.Width*scale, e.Container.Height*scale
	case e.Preview != nil && e.Preview.IsNote():
		r.W, r.H = NoteWidth, NoteHeight
	case e.Preview != nil:
		r.W, r.H = e.Preview.Dimensions[0]*scale, e.Preview.Dimensions[1]*scale
	}
	return r
}

// inflate grows r by d on every side.
func inflate(r viewport.Rect, d float64) viewport.Rect {
	return viewport.Rect{X: r.X - d, Y: r.Y - d, W: r.W + 2*d, H: r.H + 2*d}
}

// NextPosition scans the grid row by row from the origin and returns the
// first spot where a (w, h) box keeps Padding clear of every instance.
func (le *LayoutEngine) NextPosition(existing []selection.Entry, w, h float64) (float64, float64) {
	if len(existing) == 0 {
		return 0, 0
	}

	occupied := make([]viewport.Rect, len(existing))
	var bottom float64
	for i, e := range existing {
		occupied[i] = inflate(footprint(e), le.padding)
		bottom = math.Max(bottom, occupied[i].Y+occupied[i].H)
	}

	free := func(c viewport.Rect) bool {
		for _, occ := range occupied {
			if c.Intersects(occ) {
				return false
			}
		}
		return true
	}

	for y := 0.0; y < maxScanY && y <= bottom; y += le.gridSize {
		for x := 0.0; x+w <= le.maxRowW; x += le.gridSize {
			c := viewport.Rect{X: le.snap(x), Y: le.snap(y), W: w, H: h}
			if free(c) {
				return c.X, c.Y
			}
		}
	}
	// below everything
	return 0, le.snap(bottom + le.gridSize)
}
