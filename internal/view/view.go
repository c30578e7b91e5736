// Package view orchestrates the recomputation graph that keeps the map
// overlay, the windowed histogram, and the point readout consistent with the
// current time selection, viewport, and clicked point.
package view

import (
	"image"
	"time"

	"github.com/mrms-view/server/internal/binning"
	"github.com/mrms-view/server/internal/data/npz"
	"github.com/mrms-view/server/internal/grid"
)

// Loader is the data-loading collaborator. Load may block; it runs on the
// data channel's pipeline only.
type Loader interface {
	Load(id string) (*npz.Result, error)
}

// Publisher receives derived view updates, one-way. Implementations are
// called from the coordinator's executor goroutine and must not call back
// into the coordinator.
type Publisher interface {
	PublishOverlay(OverlayUpdate)
	PublishHistogram(HistogramUpdate)
	PublishMarker(MarkerUpdate)
	PublishError(err error)
}

// OverlayUpdate carries a freshly colorized overlay.
type OverlayUpdate struct {
	Image     *image.NRGBA
	Bounds    binning.BBox
	ValidTime time.Time
}

// HistogramUpdate carries windowed bin counts and the selection mean.
type HistogramUpdate struct {
	Counts []int
	Edges  []float64
	Mean   float64
	Extent grid.Extent
}

// MarkerUpdate carries the snapped selection point, its value, and the
// histogram line-indicator position. Valid is false when the selected cell
// is masked.
type MarkerUpdate struct {
	X     float64
	Y     float64
	Value float64
	Valid bool
	Line  float64
}
