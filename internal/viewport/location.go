package viewport

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// PanLimit bounds a restored pan offset on either axis.
const PanLimit = 50000.0

// FormatLocation encodes v as "x,y,zoom" for sharing a position on the
// canvas.
func FormatLocation(v Viewport) string {
	return fmt.Sprintf("%s,%s,%s",
		strconv.FormatFloat(roundTo(v.Pan.X, 2), 'f', -1, 64),
		strconv.FormatFloat(roundTo(v.Pan.Y, 2), 'f', -1, 64),
		strconv.FormatFloat(v.Zoom, 'f', -1, 64),
	)
}

// ParseLocation decodes a FormatLocation string. Out of range values are
// clamped and reported through clamped so the caller can rewrite the
// shared location.
func ParseLocation(s string) (v Viewport, clamped bool, err error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return Viewport{}, false, fmt.Errorf("parse location %q: want x,y,zoom", s)
	}
	var nums [3]float64
	for i, p := range parts {
		n, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return Viewport{}, false, fmt.Errorf("parse location %q: bad number %q", s, p)
		}
		nums[i] = n
	}
	v = Viewport{
		Pan:  Point{X: clampPan(nums[0]), Y: clampPan(nums[1])},
		Zoom: Clamp(nums[2]),
	}
	clamped = v.Pan.X != nums[0] || v.Pan.Y != nums[1] || v.Zoom != nums[2]
	return v, clamped, nil
}

func clampPan(n float64) float64 {
	return math.Max(-PanLimit, math.Min(PanLimit, n))
}
