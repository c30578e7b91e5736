// Package grid provides coordinate axes and nearest-index lookup for
// regularly sampled rasters.
package grid

import (
	"fmt"
	"sort"
)

// Axis is a strictly increasing 1D coordinate sequence indexing one raster
// dimension.
type Axis []float64

// Validate checks that the axis is non-empty and strictly increasing.
func Validate(a Axis) error {
	if len(a) == 0 {
		return fmt.Errorf("axis is empty")
	}
	for i := 1; i < len(a); i++ {
		if a[i] <= a[i-1] {
			return fmt.Errorf("axis not strictly increasing at index %d: %v >= %v", i, a[i-1], a[i])
		}
	}
	return nil
}

// Nearest returns the index of the axis element closest to q. Ties break
// toward the lower index. Queries outside the axis range clamp to the
// nearest endpoint; Nearest never returns an out-of-bounds index.
func Nearest(a Axis, q float64) int {
	n := len(a)
	if n == 0 {
		return 0
	}

	// First element >= q.
	i := sort.SearchFloat64s(a, q)
	if i == 0 {
		return 0
	}
	if i == n {
		return n - 1
	}
	// a[i-1] < q <= a[i]; the lower index wins ties.
	if q-a[i-1] <= a[i]-q {
		return i - 1
	}
	return i
}

// Extent is a rectangular coordinate-space window. Degenerate (zero-area)
// extents are legal and select a single row/column of samples.
type Extent struct {
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
	Top    float64 `json:"top"`
}

// FullExtent returns the extent covering both axes end to end.
func FullExtent(x, y Axis) Extent {
	return Extent{
		Left:   x[0],
		Right:  x[len(x)-1],
		Bottom: y[0],
		Top:    y[len(y)-1],
	}
}

// IndexRange returns the half-open index range [lo, hi) covering the
// coordinate window [low, high] on the axis: lo is the nearest index to low
// and hi is one past the nearest index to high. Windows entirely outside the
// axis degenerate to a single clamped endpoint pair.
func IndexRange(a Axis, low, high float64) (lo, hi int) {
	lo = Nearest(a, low)
	hi = Nearest(a, high) + 1
	if hi < lo {
		hi = lo
	}
	return lo, hi
}
