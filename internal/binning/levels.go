// Package binning maps raster values to histogram bin counts and to
// color-mapped pixels over fixed bin edges.
package binning

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Levels returns evenly spaced bin edges from 0 to maxVal with binsPerUnit
// bins per physical unit (the original 0.1-inch precipitation levels).
func Levels(maxVal float64, binsPerUnit int) []float64 {
	n := int(maxVal*float64(binsPerUnit)) + 1
	if n < 2 {
		n = 2
	}
	return floats.Span(make([]float64, n), 0, maxVal)
}

// InsertNearZero inserts the narrow near-zero edge after the first level,
// splitting the lowest bin into a near-zero bin [edges[0], nearZero) and the
// remainder. Edges are returned as a new slice; the input is not modified.
func InsertNearZero(edges []float64, nearZero float64) ([]float64, error) {
	if len(edges) < 2 {
		return nil, fmt.Errorf("need at least 2 edges, got %d", len(edges))
	}
	if nearZero <= edges[0] || nearZero >= edges[1] {
		return nil, fmt.Errorf("near-zero edge %v outside first bin (%v, %v)", nearZero, edges[0], edges[1])
	}

	out := make([]float64, 0, len(edges)+1)
	out = append(out, edges[0], nearZero)
	out = append(out, edges[1:]...)
	return out, nil
}
