// Package render encodes overlay images and draws the histogram panel using
// fogleman/gg.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"sync"

	"github.com/fogleman/gg"
)

// Config contains renderer configuration.
type Config struct {
	HistWidth  int
	HistHeight int
}

// Renderer turns view pipeline output into PNG bytes.
type Renderer struct {
	config     Config
	bufferPool sync.Pool
}

// NewRenderer creates a renderer.
func NewRenderer(cfg Config) *Renderer {
	if cfg.HistWidth <= 0 {
		cfg.HistWidth = 400
	}
	if cfg.HistHeight <= 0 {
		cfg.HistHeight = 200
	}
	return &Renderer{
		config: cfg,
		bufferPool: sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 32*1024))
			},
		},
	}
}

// EncodeOverlay encodes the colorized overlay to PNG.
func (r *Renderer) EncodeOverlay(img image.Image) ([]byte, error) {
	return r.encode(img)
}

// RenderHistogram draws the windowed histogram as colored bars spanning the
// bin edges, with a red vertical line at the selection indicator position.
// colors must align 1:1 with the bins; lineAt is in value units.
func (r *Renderer) RenderHistogram(counts []int, edges []float64, colors []color.NRGBA, lineAt float64) ([]byte, error) {
	if len(edges) < 2 || len(counts) != len(edges)-1 {
		return nil, fmt.Errorf("counts/edges mismatch: %d counts, %d edges", len(counts), len(edges))
	}
	if len(colors) != len(counts) {
		return nil, fmt.Errorf("colors/counts mismatch: %d colors, %d counts", len(colors), len(counts))
	}

	w := float64(r.config.HistWidth)
	h := float64(r.config.HistHeight)
	dc := gg.NewContext(r.config.HistWidth, r.config.HistHeight)

	dc.SetColor(color.White)
	dc.Clear()

	maxCount := 0
	for _, c := range counts {
		if c > maxCount {
			maxCount = c
		}
	}
	if maxCount == 0 {
		maxCount = 1
	}

	lo := edges[0]
	span := edges[len(edges)-1] - lo
	toX := func(v float64) float64 { return (v - lo) / span * w }

	for i, c := range counts {
		if c == 0 {
			continue
		}
		x0 := toX(edges[i])
		x1 := toX(edges[i+1])
		barH := float64(c) / float64(maxCount) * h
		dc.SetColor(colors[i])
		dc.DrawRectangle(x0, h-barH, x1-x0, barH)
		dc.Fill()
	}

	// Selection indicator. NaN means no selection.
	if !math.IsNaN(lineAt) {
		lx := toX(lineAt)
		dc.SetRGBA(1, 0, 0, 0.7)
		dc.SetLineWidth(1.5)
		dc.DrawLine(lx, 0, lx, h)
		dc.Stroke()
	}

	return r.encode(dc.Image())
}

func (r *Renderer) encode(img image.Image) ([]byte, error) {
	buf := r.bufferPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		r.bufferPool.Put(buf)
	}()

	// Use fast PNG encoder
	encoder := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := encoder.Encode(buf, img); err != nil {
		return nil, err
	}

	// Copy buffer contents (buffer will be reused)
	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())
	return result, nil
}
