// Package service provides business logic for the precipitation viewer.
package service

import (
	"github.com/mrms-view/server/internal/cache"
	"github.com/mrms-view/server/internal/data/npz"
)

// ArchiveLoader reads raster archives from storage.
type ArchiveLoader interface {
	Load(id string) (*npz.Result, error)
	ListTimes() ([]npz.TimeEntry, error)
}

// RasterServiceConfig contains raster service configuration.
type RasterServiceConfig struct {
	Loader ArchiveLoader
	Cache  *cache.Manager
}

// RasterService loads rasters from the archive directory, keeping recently
// used ones in memory so re-selecting a time does not touch disk again.
type RasterService struct {
	loader ArchiveLoader
	cache  *cache.Manager
}

// NewRasterService creates a raster service.
func NewRasterService(cfg RasterServiceConfig) *RasterService {
	return &RasterService{
		loader: cfg.Loader,
		cache:  cfg.Cache,
	}
}

// Load returns the raster for the given label, or the newest archive for
// npz.Latest. Concrete labels are served from cache when possible; "latest"
// always goes to disk since the newest archive changes over time.
func (s *RasterService) Load(id string) (*npz.Result, error) {
	if id != npz.Latest && s.cache != nil {
		if res, ok := s.cache.GetRaster(id); ok {
			return res, nil
		}
	}

	res, err := s.loader.Load(id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.SetRaster(npz.Label(res.ValidTime), res)
	}
	return res, nil
}

// ListTimes enumerates the available archive times.
func (s *RasterService) ListTimes() ([]npz.TimeEntry, error) {
	return s.loader.ListTimes()
}
