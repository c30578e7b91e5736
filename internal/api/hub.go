package api

import (
	"sync"

	"github.com/mrms-view/server/internal/view"
)

// Hub retains the most recent published view of each kind so HTTP handlers
// can serve them on demand. It is safe for concurrent use.
type Hub struct {
	mu      sync.RWMutex
	overlay *view.OverlayUpdate
	hist    *view.HistogramUpdate
	marker  *view.MarkerUpdate
	lastErr error
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{}
}

// PublishOverlay stores the latest overlay and clears any previous error.
func (h *Hub) PublishOverlay(u view.OverlayUpdate) {
	h.mu.Lock()
	h.overlay = &u
	h.lastErr = nil
	h.mu.Unlock()
}

// PublishHistogram stores the latest histogram.
func (h *Hub) PublishHistogram(u view.HistogramUpdate) {
	h.mu.Lock()
	h.hist = &u
	h.mu.Unlock()
}

// PublishMarker stores the latest marker.
func (h *Hub) PublishMarker(u view.MarkerUpdate) {
	h.mu.Lock()
	h.marker = &u
	h.mu.Unlock()
}

// PublishError records a pipeline failure. The retained views are left as
// they were.
func (h *Hub) PublishError(err error) {
	h.mu.Lock()
	h.lastErr = err
	h.mu.Unlock()
}

// Overlay returns the latest overlay, or nil if none has been published.
func (h *Hub) Overlay() *view.OverlayUpdate {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.overlay
}

// Histogram returns the latest histogram, or nil.
func (h *Hub) Histogram() *view.HistogramUpdate {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.hist
}

// Marker returns the latest marker, or nil.
func (h *Hub) Marker() *view.MarkerUpdate {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.marker
}

// LastError returns the most recent pipeline error, cleared on the next
// successful overlay publish.
func (h *Hub) LastError() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastErr
}
