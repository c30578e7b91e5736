// Package cache provides caching for rendered overlays and loaded rasters.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mrms-view/server/internal/data/npz"
)

// Config contains cache configuration.
type Config struct {
	OverlaySizeMB   int
	OverlayTTL      time.Duration
	RasterCacheSize int
}

// Manager manages the overlay PNG cache and the decoded raster cache.
type Manager struct {
	overlayCache *bigcache.BigCache
	rasterCache  *lru.Cache[string, *npz.Result]
}

// NewManager creates a new cache manager.
func NewManager(cfg Config) (*Manager, error) {
	overlayConfig := bigcache.Config{
		Shards:             64,
		LifeWindow:         cfg.OverlayTTL,
		CleanWindow:        cfg.OverlayTTL / 2,
		MaxEntriesInWindow: 1000,
		MaxEntrySize:       4 * 1024 * 1024, // full-resolution overlay PNG
		HardMaxCacheSize:   cfg.OverlaySizeMB,
		Verbose:            false,
	}

	overlayCache, err := bigcache.New(context.Background(), overlayConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create overlay cache: %w", err)
	}

	rasterCache, err := lru.New[string, *npz.Result](cfg.RasterCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create raster cache: %w", err)
	}

	return &Manager{
		overlayCache: overlayCache,
		rasterCache:  rasterCache,
	}, nil
}

// GetOverlay retrieves an encoded overlay from cache.
func (m *Manager) GetOverlay(key string) ([]byte, bool) {
	data, err := m.overlayCache.Get(key)
	if err != nil {
		return nil, false
	}
	return data, true
}

// SetOverlay stores an encoded overlay in cache.
func (m *Manager) SetOverlay(key string, data []byte) error {
	return m.overlayCache.Set(key, data)
}

// GetRaster retrieves a loaded raster from cache.
func (m *Manager) GetRaster(key string) (*npz.Result, bool) {
	return m.rasterCache.Get(key)
}

// SetRaster stores a loaded raster in cache.
func (m *Manager) SetRaster(key string, res *npz.Result) {
	m.rasterCache.Add(key, res)
}

// OverlayKey generates a cache key for an overlay by valid time.
func OverlayKey(validTime time.Time) string {
	return "overlay:" + validTime.UTC().Format(time.RFC3339)
}

// Stats returns cache statistics.
func (m *Manager) Stats() map[string]interface{} {
	return map[string]interface{}{
		"overlay_cache_len": m.overlayCache.Len(),
		"overlay_cache_cap": m.overlayCache.Capacity(),
		"raster_cache_len":  m.rasterCache.Len(),
	}
}

// Close closes the cache manager.
func (m *Manager) Close() error {
	return m.overlayCache.Close()
}
