package binning

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/mrms-view/server/internal/grid"
	"github.com/mrms-view/server/internal/raster"
)

// Histogrammer counts raster values into fixed bins. Edges include the
// near-zero edge; bin i covers [edges[i], edges[i+1]), with the top bin
// closed on the right. Values above the top edge are clipped into the top
// bin, values below the first edge fall into the near-zero bin. Construct
// once at startup; safe for concurrent use.
type Histogrammer struct {
	edges []float64
}

// NewHistogrammer creates a histogrammer over strictly increasing edges.
func NewHistogrammer(edges []float64) (*Histogrammer, error) {
	if len(edges) < 2 {
		return nil, fmt.Errorf("need at least 2 edges, got %d", len(edges))
	}
	for i := 1; i < len(edges); i++ {
		if edges[i] <= edges[i-1] {
			return nil, fmt.Errorf("edges not strictly increasing at index %d", i)
		}
	}
	return &Histogrammer{edges: edges}, nil
}

// Edges returns the bin edges, including the near-zero edge.
func (h *Histogrammer) Edges() []float64 { return h.edges }

// NumBins returns the number of bins.
func (h *Histogrammer) NumBins() int { return len(h.edges) - 1 }

// Result holds windowed histogram output.
type Result struct {
	Counts []int   // one per bin, aligned with Edges
	Mean   float64 // mean of included values; 0 when the selection is empty
	Masked int     // invalid cells in the window, excluded from Counts
}

// Histogram counts the raster cells inside extent. The extent is resolved to
// index ranges via nearest-index lookup on the axes, so windows outside the
// axis range clamp rather than error. Masked cells are excluded from counts
// and mean but reported in Result.Masked.
func (h *Histogrammer) Histogram(r *raster.Raster, x, y grid.Axis, e grid.Extent) Result {
	loX, hiX := grid.IndexRange(x, e.Left, e.Right)
	loY, hiY := grid.IndexRange(y, e.Bottom, e.Top)

	res := Result{Counts: make([]int, h.NumBins())}
	var included []float64
	for iy := loY; iy < hiY; iy++ {
		for ix := loX; ix < hiX; ix++ {
			v, ok := r.At(ix, iy)
			if !ok {
				res.Masked++
				continue
			}
			res.Counts[h.binFor(v)]++
			included = append(included, v)
		}
	}

	if len(included) > 0 {
		res.Mean = stat.Mean(included, nil)
	}
	return res
}

// binFor assigns a value to a bin, clipping into the outermost bins.
func (h *Histogrammer) binFor(v float64) int {
	if v < h.edges[0] {
		return 0
	}
	if v >= h.edges[len(h.edges)-1] {
		return h.NumBins() - 1
	}
	// First edge > v; the value lies in the bin to its left.
	i := sort.Search(len(h.edges), func(i int) bool { return h.edges[i] > v })
	return i - 1
}
