package raster

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/mrms-view/server/internal/grid"
)

// ErrShapeMismatch reports disagreement between raster dimensions and axis
// lengths during a replace.
var ErrShapeMismatch = errors.New("raster shape does not match axes")

// Snapshot pairs a raster with its coordinate axes and valid timestamp.
// A snapshot is complete and immutable: readers hold either the previous or
// the next snapshot, never a mix.
type Snapshot struct {
	Raster    *Raster
	X         grid.Axis
	Y         grid.Axis
	ValidTime time.Time
}

// Store holds the active raster snapshot and swaps it atomically.
type Store struct {
	current atomic.Pointer[Snapshot]
}

// NewStore returns an empty store. Current returns nil until the first
// successful Replace.
func NewStore() *Store {
	return &Store{}
}

// Replace validates the raster/axis pairing and installs it as the active
// snapshot. On error the previously active snapshot remains in place.
func (s *Store) Replace(r *Raster, x, y grid.Axis, validTime time.Time) error {
	if r == nil {
		return fmt.Errorf("%w: nil raster", ErrShapeMismatch)
	}
	if err := grid.Validate(x); err != nil {
		return fmt.Errorf("x axis: %w", err)
	}
	if err := grid.Validate(y); err != nil {
		return fmt.Errorf("y axis: %w", err)
	}
	if len(x) != r.Width() || len(y) != r.Height() {
		return fmt.Errorf("%w: raster %dx%d, axes %dx%d",
			ErrShapeMismatch, r.Width(), r.Height(), len(x), len(y))
	}

	s.current.Store(&Snapshot{
		Raster:    r,
		X:         x,
		Y:         y,
		ValidTime: validTime,
	})
	return nil
}

// Current returns the active snapshot, or nil if nothing has been loaded.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}
