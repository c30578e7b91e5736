// Package raster holds gridded precipitation data and the snapshot store
// that publishes it atomically.
package raster

import (
	"fmt"
	"math"
)

// Raster is an immutable 2D grid of physical-quantity samples. Cells are
// stored row-major with row index following the Y axis (row 0 at the low Y
// coordinate). Invalid cells are masked, distinct from a valid zero.
type Raster struct {
	width  int
	height int
	values []float64
	mask   []bool
}

// New creates a raster from row-major values. mask may be nil (all valid);
// otherwise it must have the same length as values, true marking invalid
// cells. NaN values are always treated as masked.
func New(width, height int, values []float64, mask []bool) (*Raster, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid raster dimensions %dx%d", width, height)
	}
	if len(values) != width*height {
		return nil, fmt.Errorf("raster values length %d does not match %dx%d", len(values), width, height)
	}
	if mask != nil && len(mask) != len(values) {
		return nil, fmt.Errorf("raster mask length %d does not match values length %d", len(mask), len(values))
	}

	r := &Raster{
		width:  width,
		height: height,
		values: values,
		mask:   mask,
	}
	for i, v := range values {
		if math.IsNaN(v) {
			if r.mask == nil {
				r.mask = make([]bool, len(values))
			}
			r.mask[i] = true
		}
	}
	return r, nil
}

// MaskedBelow returns a raster sharing values with r but with every cell
// below threshold additionally masked.
func (r *Raster) MaskedBelow(threshold float64) *Raster {
	mask := make([]bool, len(r.values))
	for i, v := range r.values {
		mask[i] = (r.mask != nil && r.mask[i]) || v < threshold
	}
	return &Raster{
		width:  r.width,
		height: r.height,
		values: r.values,
		mask:   mask,
	}
}

// Width returns the number of columns (X samples).
func (r *Raster) Width() int { return r.width }

// Height returns the number of rows (Y samples).
func (r *Raster) Height() int { return r.height }

// At returns the value at column ix, row iy, and whether the cell is valid.
func (r *Raster) At(ix, iy int) (float64, bool) {
	i := iy*r.width + ix
	if r.mask != nil && r.mask[i] {
		return 0, false
	}
	return r.values[i], true
}
