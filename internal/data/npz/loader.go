// Package npz loads precipitation rasters from NumPy .npz archives laid out
// as YYYY/MM/DD/HHZ.npz under a data directory.
package npz

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"

	"github.com/mrms-view/server/internal/grid"
	"github.com/mrms-view/server/internal/raster"
)

// ErrNotFound reports that no archive exists for the requested time.
var ErrNotFound = errors.New("no raster for requested time")

// ErrFormat reports an archive that exists but cannot be decoded.
var ErrFormat = errors.New("invalid raster archive")

const (
	// Latest selects the newest available archive.
	Latest = "latest"

	pathLayout  = "2006/01/02/15Z.npz"
	stampLayout = "2006010215Z.npz"
	labelLayout = "2006-01-02 15Z"

	mmPerInch = 25.4
)

// Label formats a valid time the way archives are labelled, e.g.
// "2024-06-01 12Z".
func Label(t time.Time) string {
	return t.UTC().Format(labelLayout)
}

// TimeEntry maps a display label to a valid time.
type TimeEntry struct {
	Label string    `json:"label"`
	Time  time.Time `json:"time"`
}

// Result is one loaded raster with its axes and valid timestamp. Values are
// inches; cells below the minimum valid threshold are masked.
type Result struct {
	Raster    *raster.Raster
	X         grid.Axis
	Y         grid.Axis
	ValidTime time.Time
}

// Loader reads archives from a data directory.
type Loader struct {
	dir      string
	minValid float64
}

// NewLoader creates a loader rooted at dir. Values below minValid (in
// inches) are masked as invalid at load time.
func NewLoader(dir string, minValid float64) *Loader {
	if strings.HasPrefix(dir, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, dir[1:])
		}
	}
	return &Loader{dir: dir, minValid: minValid}
}

// ListTimes enumerates available archives in ascending time order. Paths
// that do not match the expected layout are logged and skipped, never fatal.
func (l *Loader) ListTimes() ([]TimeEntry, error) {
	var out []TimeEntry
	err := filepath.WalkDir(l.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".npz") {
			return nil
		}
		t, ok := timeFromPath(path)
		if !ok {
			log.Printf("[npz] %s does not conform to expected layout, skipping", path)
			return nil
		}
		out = append(out, TimeEntry{Label: t.Format(labelLayout), Time: t})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", l.dir, err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

// Load reads the archive for id, which is either Latest or a label as
// returned by ListTimes.
func (l *Loader) Load(id string) (*Result, error) {
	var path string
	var validTime time.Time

	if id == Latest {
		p, t, err := l.latestPath()
		if err != nil {
			return nil, err
		}
		path, validTime = p, t
	} else {
		t, err := time.ParseInLocation(labelLayout, id, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("%w: unrecognized time %q", ErrNotFound, id)
		}
		path = filepath.Join(l.dir, t.Format(pathLayout))
		validTime = t
	}

	res, err := l.loadArchive(path)
	if err != nil {
		return nil, err
	}
	res.ValidTime = validTime
	return res, nil
}

func (l *Loader) latestPath() (string, time.Time, error) {
	entries, err := l.ListTimes()
	if err != nil {
		return "", time.Time{}, err
	}
	if len(entries) == 0 {
		return "", time.Time{}, fmt.Errorf("%w: no archives under %s", ErrNotFound, l.dir)
	}
	last := entries[len(entries)-1]
	return filepath.Join(l.dir, last.Time.Format(pathLayout)), last.Time, nil
}

func (l *Loader) loadArchive(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	zr, err := zip.NewReader(f, st.Size())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFormat, path, err)
	}
	zr.RegisterDecompressor(zip.Deflate, func(r io.Reader) io.ReadCloser {
		return flate.NewReader(r)
	})

	data, err := readMember(zr, "data")
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFormat, path, err)
	}
	xArr, err := readMember(zr, "X")
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFormat, path, err)
	}
	yArr, err := readMember(zr, "Y")
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFormat, path, err)
	}

	if len(data.shape) != 2 {
		return nil, fmt.Errorf("%w: %s: data has shape %v, want 2D", ErrFormat, path, data.shape)
	}
	h, w := data.shape[0], data.shape[1]

	x, err := xAxisFrom(xArr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFormat, path, err)
	}
	y, err := yAxisFrom(yArr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFormat, path, err)
	}

	// mm to inches.
	values := data.data
	for i := range values {
		values[i] /= mmPerInch
	}

	r, err := raster.New(w, h, values, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFormat, path, err)
	}

	return &Result{
		Raster: r.MaskedBelow(l.minValid),
		X:      x,
		Y:      y,
	}, nil
}

// readMember decodes one npy member; npz archives name members "<key>.npy".
func readMember(zr *zip.Reader, key string) (*npyArray, error) {
	for _, f := range zr.File {
		if f.Name != key+".npy" && f.Name != key {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening member %s: %w", f.Name, err)
		}
		defer rc.Close()
		arr, err := readNpy(rc)
		if err != nil {
			return nil, fmt.Errorf("member %s: %w", f.Name, err)
		}
		return arr, nil
	}
	return nil, fmt.Errorf("missing member %q", key)
}

// xAxisFrom accepts a 1D axis or a 2D meshgrid, taking the first row.
func xAxisFrom(a *npyArray) (grid.Axis, error) {
	switch len(a.shape) {
	case 1:
		return grid.Axis(a.data), nil
	case 2:
		return grid.Axis(a.data[:a.shape[1]]), nil
	default:
		return nil, fmt.Errorf("X has shape %v, want 1D or 2D", a.shape)
	}
}

// yAxisFrom accepts a 1D axis or a 2D meshgrid, taking the first column.
func yAxisFrom(a *npyArray) (grid.Axis, error) {
	switch len(a.shape) {
	case 1:
		return grid.Axis(a.data), nil
	case 2:
		h, w := a.shape[0], a.shape[1]
		y := make(grid.Axis, h)
		for i := 0; i < h; i++ {
			y[i] = a.data[i*w]
		}
		return y, nil
	default:
		return nil, fmt.Errorf("Y has shape %v, want 1D or 2D", a.shape)
	}
}

func timeFromPath(path string) (time.Time, bool) {
	parts := strings.Split(filepath.ToSlash(path), "/")
	if len(parts) < 4 {
		return time.Time{}, false
	}
	stamp := strings.Join(parts[len(parts)-4:], "")
	t, err := time.ParseInLocation(stampLayout, stamp, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
