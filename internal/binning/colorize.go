package binning

import (
	"image"
	"image/color"

	"github.com/mrms-view/server/internal/grid"
	"github.com/mrms-view/server/internal/raster"
	"github.com/mrms-view/server/pkg/colormap"
)

// BBox is a raster's physical bounding box, half-cell-padded so pixel
// centers align with the coordinate samples.
type BBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Colorizer maps raster cells to display colors using the same value range
// as the histogram bins. Construct once at startup; safe for concurrent use.
type Colorizer struct {
	ramp          colormap.Ramp
	minVal        float64
	maxVal        float64
	greyThreshold float64
	alpha         float64
}

// ColorizerConfig configures value range, near-zero cutoff, and overlay
// opacity.
type ColorizerConfig struct {
	Ramp          colormap.Ramp
	MinVal        float64
	MaxVal        float64
	GreyThreshold float64
	Alpha         float64
}

// NewColorizer creates a colorizer.
func NewColorizer(cfg ColorizerConfig) *Colorizer {
	alpha := cfg.Alpha
	if alpha <= 0 || alpha > 1 {
		alpha = 1
	}
	return &Colorizer{
		ramp:          cfg.Ramp,
		minVal:        cfg.MinVal,
		maxVal:        cfg.MaxVal,
		greyThreshold: cfg.GreyThreshold,
		alpha:         alpha,
	}
}

// Colorize produces a full-resolution overlay image plus the raster's
// physical bounding box. Image row 0 corresponds to the highest Y
// coordinate. Masked cells and cells below the near-zero threshold are
// transparent so negligible precipitation does not clutter the map; values
// below range use the under color, above range the over color.
func (c *Colorizer) Colorize(r *raster.Raster, x, y grid.Axis) (*image.NRGBA, BBox) {
	w, h := r.Width(), r.Height()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))

	a := uint8(c.alpha*255 + 0.5)
	span := c.maxVal - c.minVal
	if span <= 0 {
		span = 1
	}

	for iy := 0; iy < h; iy++ {
		row := (h - 1 - iy) * img.Stride
		for ix := 0; ix < w; ix++ {
			v, ok := r.At(ix, iy)

			var px color.NRGBA
			switch {
			case !ok || v < c.greyThreshold:
				px = withAlpha(c.ramp.Masked, c.ramp.Masked.A)
			case v < c.minVal:
				px = withAlpha(c.ramp.Under, a)
			case v > c.maxVal:
				px = withAlpha(c.ramp.Over, a)
			default:
				px = withAlpha(c.ramp.Colormap.At((v-c.minVal)/span), a)
			}

			o := row + ix*4
			img.Pix[o] = px.R
			img.Pix[o+1] = px.G
			img.Pix[o+2] = px.B
			img.Pix[o+3] = px.A
		}
	}

	return img, Bounds(x, y)
}

// Bounds returns the half-cell-padded bounding box for the axes.
func Bounds(x, y grid.Axis) BBox {
	dx := cellSize(x)
	dy := cellSize(y)
	return BBox{
		X:      x[0] - dx/2,
		Y:      y[0] - dy/2,
		Width:  x[len(x)-1] - x[0] + dx,
		Height: y[len(y)-1] - y[0] + dy,
	}
}

// BinColors returns one display color per bin: the near-zero bin is black,
// the rest sample the ramp at each bin's lower edge.
func (c *Colorizer) BinColors(edges []float64) []color.NRGBA {
	span := c.maxVal - c.minVal
	if span <= 0 {
		span = 1
	}
	a := uint8(c.alpha*255 + 0.5)

	out := make([]color.NRGBA, len(edges)-1)
	for i := range out {
		if i == 0 {
			out[i] = color.NRGBA{0, 0, 0, a}
			continue
		}
		out[i] = withAlpha(c.ramp.Colormap.At((edges[i]-c.minVal)/span), a)
	}
	return out
}

func cellSize(a grid.Axis) float64 {
	if len(a) < 2 {
		return 1
	}
	return a[1] - a[0]
}

func withAlpha(c color.Color, a uint8) color.NRGBA {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	n.A = a
	return n
}
