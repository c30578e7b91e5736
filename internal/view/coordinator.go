package view

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/mrms-view/server/internal/binning"
	"github.com/mrms-view/server/internal/data/npz"
	"github.com/mrms-view/server/internal/dispatch"
	"github.com/mrms-view/server/internal/grid"
	"github.com/mrms-view/server/internal/raster"
)

const (
	chanData      = "data"
	chanDataApply = "data.apply"
	chanViewport  = "viewport"
	chanClick     = "click"

	defaultDataDelay     = 100 * time.Millisecond
	defaultViewportDelay = 100 * time.Millisecond
	defaultClickDelay    = 50 * time.Millisecond
)

// Config wires a Coordinator to its collaborators.
type Config struct {
	Store        *raster.Store
	Loader       Loader
	Histogrammer *binning.Histogrammer
	Colorizer    *binning.Colorizer
	Publisher    Publisher

	MinVal float64
	MaxVal float64

	DataDelay     time.Duration
	ViewportDelay time.Duration
	ClickDelay    time.Duration
}

// Coordinator debounces incoming events and recomputes only the derived
// views each event kind affects. All view state lives on the dispatcher's
// executor goroutine; the public methods only schedule work.
type Coordinator struct {
	store        *raster.Store
	loader       Loader
	histogrammer *binning.Histogrammer
	colorizer    *binning.Colorizer
	publisher    Publisher

	minVal float64
	maxVal float64

	dataDelay     time.Duration
	viewportDelay time.Duration
	clickDelay    time.Duration

	dispatcher *dispatch.Dispatcher
	dataGen    atomic.Uint64

	// executor-goroutine state
	extent    grid.Extent
	hasExtent bool
	selX      int
	selY      int
}

// NewCoordinator creates a coordinator and starts its executor.
func NewCoordinator(cfg Config) (*Coordinator, error) {
	if cfg.Store == nil || cfg.Loader == nil || cfg.Publisher == nil {
		return nil, fmt.Errorf("view: store, loader, and publisher are required")
	}
	if cfg.Histogrammer == nil || cfg.Colorizer == nil {
		return nil, fmt.Errorf("view: histogrammer and colorizer are required")
	}
	c := &Coordinator{
		store:         cfg.Store,
		loader:        cfg.Loader,
		histogrammer:  cfg.Histogrammer,
		colorizer:     cfg.Colorizer,
		publisher:     cfg.Publisher,
		minVal:        cfg.MinVal,
		maxVal:        cfg.MaxVal,
		dataDelay:     cfg.DataDelay,
		viewportDelay: cfg.ViewportDelay,
		clickDelay:    cfg.ClickDelay,
	}
	if c.dataDelay <= 0 {
		c.dataDelay = defaultDataDelay
	}
	if c.viewportDelay <= 0 {
		c.viewportDelay = defaultViewportDelay
	}
	if c.clickDelay <= 0 {
		c.clickDelay = defaultClickDelay
	}
	c.dispatcher = dispatch.New()
	return c, nil
}

// Stop shuts down the executor. Pending work is discarded.
func (c *Coordinator) Stop() {
	c.dispatcher.Stop()
}

// DataSelect schedules a load of the identified time. Rapid successive
// selections supersede each other; only the newest fires, and a load whose
// result has been superseded while in flight never publishes.
func (c *Coordinator) DataSelect(id string) {
	gen := c.dataGen.Add(1)
	c.dispatcher.Schedule(chanData, c.dataDelay, func() {
		c.runDataSelect(id, gen)
	})
}

// ViewportChange schedules a histogram recomputation over the given extent.
// The overlay and marker are untouched.
func (c *Coordinator) ViewportChange(e grid.Extent) {
	c.dispatcher.Schedule(chanViewport, c.viewportDelay, func() {
		c.runViewportChange(e)
	})
}

// Click schedules a point selection at the given data-space coordinates.
// The point snaps to the nearest grid cell of whichever raster is active
// when the debounce fires.
func (c *Coordinator) Click(x, y float64) {
	c.dispatcher.Schedule(chanClick, c.clickDelay, func() {
		c.runClick(x, y)
	})
}

// runDataSelect fires on the executor but hands the blocking load to its own
// goroutine so the viewport and click channels stay responsive while the
// load is outstanding. The result is applied back on the executor.
func (c *Coordinator) runDataSelect(id string, gen uint64) {
	go func() {
		res, err := c.loader.Load(id)
		if gen != c.dataGen.Load() {
			// A newer selection arrived while this one was loading.
			return
		}
		c.dispatcher.Schedule(chanDataApply, 0, func() {
			c.applyDataSelect(id, gen, res, err)
		})
	}()
}

func (c *Coordinator) applyDataSelect(id string, gen uint64, res *npz.Result, err error) {
	if gen != c.dataGen.Load() {
		return
	}
	if err != nil {
		c.publisher.PublishError(fmt.Errorf("select %q: %w", id, err))
		return
	}
	if err := c.store.Replace(res.Raster, res.X, res.Y, res.ValidTime); err != nil {
		c.publisher.PublishError(fmt.Errorf("select %q: %w", id, err))
		return
	}
	snap := c.store.Current()

	if !c.hasExtent {
		c.extent = grid.FullExtent(snap.X, snap.Y)
		c.hasExtent = true
	}
	c.clampSelection(snap)

	img, bounds := c.colorizer.Colorize(snap.Raster, snap.X, snap.Y)
	c.publisher.PublishOverlay(OverlayUpdate{
		Image:     img,
		Bounds:    bounds,
		ValidTime: snap.ValidTime,
	})
	c.publishHistogram(snap)
	c.publishMarker(snap)
}

func (c *Coordinator) runViewportChange(e grid.Extent) {
	c.extent = e
	c.hasExtent = true
	snap := c.store.Current()
	if snap == nil {
		return
	}
	c.publishHistogram(snap)
}

func (c *Coordinator) runClick(x, y float64) {
	snap := c.store.Current()
	if snap == nil {
		return
	}
	c.selX = grid.Nearest(snap.X, x)
	c.selY = grid.Nearest(snap.Y, y)
	c.publishMarker(snap)
}

func (c *Coordinator) clampSelection(snap *raster.Snapshot) {
	if c.selX >= len(snap.X) {
		c.selX = len(snap.X) - 1
	}
	if c.selY >= len(snap.Y) {
		c.selY = len(snap.Y) - 1
	}
}

func (c *Coordinator) publishHistogram(snap *raster.Snapshot) {
	res := c.histogrammer.Histogram(snap.Raster, snap.X, snap.Y, c.extent)
	c.publisher.PublishHistogram(HistogramUpdate{
		Counts: res.Counts,
		Edges:  c.histogrammer.Edges(),
		Mean:   res.Mean,
		Extent: c.extent,
	})
}

func (c *Coordinator) publishMarker(snap *raster.Snapshot) {
	v, ok := snap.Raster.At(c.selX, c.selY)
	c.publisher.PublishMarker(MarkerUpdate{
		X:     snap.X[c.selX],
		Y:     snap.Y[c.selY],
		Value: v,
		Valid: ok,
		Line:  c.lineAt(v, ok),
	})
}

// lineAt keeps the histogram line indicator inside the plotted value range
// so it stays visible for masked, zero, and clipped-high values.
func (c *Coordinator) lineAt(v float64, ok bool) float64 {
	switch {
	case !ok || v <= c.minVal:
		return c.minVal * 1.05
	case v > c.maxVal:
		return c.maxVal * 0.99
	default:
		return v
	}
}
