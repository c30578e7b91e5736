package view

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mrms-view/server/internal/binning"
	"github.com/mrms-view/server/internal/data/npz"
	"github.com/mrms-view/server/internal/grid"
	"github.com/mrms-view/server/internal/raster"
	"github.com/mrms-view/server/pkg/colormap"
)

type fakeLoader struct {
	mu      sync.Mutex
	results map[string]*npz.Result
	errs    map[string]error
	gate    chan struct{} // when set, Load blocks until the gate closes
	loads   []string
}

func (l *fakeLoader) Load(id string) (*npz.Result, error) {
	l.mu.Lock()
	l.loads = append(l.loads, id)
	gate := l.gate
	res, err := l.results[id], l.errs[id]
	l.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

type event struct {
	kind string
	over OverlayUpdate
	hist HistogramUpdate
	mark MarkerUpdate
	err  error
}

type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) PublishOverlay(u OverlayUpdate) {
	r.append(event{kind: "overlay", over: u})
}

func (r *recorder) PublishHistogram(u HistogramUpdate) {
	r.append(event{kind: "histogram", hist: u})
}

func (r *recorder) PublishMarker(u MarkerUpdate) {
	r.append(event{kind: "marker", mark: u})
}

func (r *recorder) PublishError(err error) {
	r.append(event{kind: "error", err: err})
}

func (r *recorder) append(e event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event(nil), r.events...)
}

func (r *recorder) kinds() []string {
	var out []string
	for _, e := range r.snapshot() {
		out = append(out, e.kind)
	}
	return out
}

func waitForEvents(t *testing.T, r *recorder, n int) []event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ev := r.snapshot(); len(ev) >= n {
			return ev
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d events, got %v", n, r.kinds())
	return nil
}

func testResult(t *testing.T, values []float64, stamp time.Time) *npz.Result {
	t.Helper()
	r, err := raster.New(3, 2, values, nil)
	if err != nil {
		t.Fatalf("raster.New: %v", err)
	}
	return &npz.Result{
		Raster:    r,
		X:         grid.Axis{0, 1, 2},
		Y:         grid.Axis{10, 11},
		ValidTime: stamp,
	}
}

func newTestCoordinator(t *testing.T, loader *fakeLoader) (*Coordinator, *recorder, *raster.Store) {
	t.Helper()
	hist, err := binning.NewHistogrammer([]float64{0, 0.01, 1, 2, 3})
	if err != nil {
		t.Fatalf("NewHistogrammer: %v", err)
	}
	col := binning.NewColorizer(binning.ColorizerConfig{
		Ramp:          colormap.DefaultRamp("viridis"),
		MinVal:        0,
		MaxVal:        3,
		GreyThreshold: 0.01,
		Alpha:         0.7,
	})
	store := raster.NewStore()
	rec := &recorder{}
	c, err := NewCoordinator(Config{
		Store:         store,
		Loader:        loader,
		Histogrammer:  hist,
		Colorizer:     col,
		Publisher:     rec,
		MinVal:        0,
		MaxVal:        3,
		DataDelay:     20 * time.Millisecond,
		ViewportDelay: 10 * time.Millisecond,
		ClickDelay:    5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	t.Cleanup(c.Stop)
	return c, rec, store
}

func TestDataSelectPublishesAllViews(t *testing.T) {
	stamp := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	loader := &fakeLoader{results: map[string]*npz.Result{
		"2024-06-01 12Z": testResult(t, []float64{0.5, 1.5, 2.5, 0, 0.2, 1.0}, stamp),
	}}
	c, rec, store := newTestCoordinator(t, loader)

	c.DataSelect("2024-06-01 12Z")
	events := waitForEvents(t, rec, 3)

	want := []string{"overlay", "histogram", "marker"}
	for i, k := range want {
		if events[i].kind != k {
			t.Fatalf("event %d = %q, want %q (all: %v)", i, events[i].kind, k, rec.kinds())
		}
	}
	if got := events[0].over.ValidTime; !got.Equal(stamp) {
		t.Errorf("overlay valid time = %v, want %v", got, stamp)
	}
	if e := events[1].hist.Extent; e != (grid.Extent{Left: 0, Right: 2, Bottom: 10, Top: 11}) {
		t.Errorf("histogram extent = %+v, want full extent", e)
	}
	if m := events[2].mark; m.X != 0 || m.Y != 10 {
		t.Errorf("marker defaulted to (%v, %v), want grid origin (0, 10)", m.X, m.Y)
	}
	if store.Current() == nil {
		t.Error("store has no snapshot after select")
	}
}

func TestDataSelectNotFoundPublishesErrorOnly(t *testing.T) {
	loader := &fakeLoader{errs: map[string]error{"missing": npz.ErrNotFound}}
	c, rec, store := newTestCoordinator(t, loader)

	c.DataSelect("missing")
	events := waitForEvents(t, rec, 1)

	if events[0].kind != "error" {
		t.Fatalf("event = %q, want error", events[0].kind)
	}
	if !errors.Is(events[0].err, npz.ErrNotFound) {
		t.Errorf("published error = %v, want ErrNotFound", events[0].err)
	}
	if store.Current() != nil {
		t.Error("failed select replaced the snapshot")
	}
	if len(rec.snapshot()) != 1 {
		t.Errorf("extra events after error: %v", rec.kinds())
	}
}

func TestRapidSelectsLoadOnlyNewest(t *testing.T) {
	stamp := time.Date(2024, 6, 1, 13, 0, 0, 0, time.UTC)
	loader := &fakeLoader{results: map[string]*npz.Result{
		"a": testResult(t, []float64{1, 1, 1, 1, 1, 1}, stamp.Add(-time.Hour)),
		"b": testResult(t, []float64{2, 2, 2, 2, 2, 2}, stamp),
	}}
	c, rec, _ := newTestCoordinator(t, loader)

	c.DataSelect("a")
	c.DataSelect("b")
	events := waitForEvents(t, rec, 3)

	loader.mu.Lock()
	loads := append([]string(nil), loader.loads...)
	loader.mu.Unlock()
	if len(loads) != 1 || loads[0] != "b" {
		t.Errorf("loads = %v, want only %q", loads, "b")
	}
	if got := events[0].over.ValidTime; !got.Equal(stamp) {
		t.Errorf("overlay valid time = %v, want %v", got, stamp)
	}
}

func TestSupersededInFlightLoadNeverPublishes(t *testing.T) {
	stamp := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)
	gate := make(chan struct{})
	loader := &fakeLoader{
		results: map[string]*npz.Result{
			"slow": testResult(t, []float64{9, 9, 9, 9, 9, 9}, stamp.Add(-time.Hour)),
			"fast": testResult(t, []float64{1, 1, 1, 1, 1, 1}, stamp),
		},
		gate: gate,
	}
	c, rec, _ := newTestCoordinator(t, loader)

	c.DataSelect("slow")
	// Wait for the slow load to begin, then supersede it while in flight.
	deadline := time.Now().Add(2 * time.Second)
	for {
		loader.mu.Lock()
		started := len(loader.loads) > 0
		loader.mu.Unlock()
		if started {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("slow load never started")
		}
		time.Sleep(time.Millisecond)
	}
	c.DataSelect("fast")
	loader.mu.Lock()
	loader.gate = nil
	loader.mu.Unlock()
	close(gate)

	events := waitForEvents(t, rec, 3)
	if got := events[0].over.ValidTime; !got.Equal(stamp) {
		t.Errorf("overlay valid time = %v, want %v (superseded result published)", got, stamp)
	}
	for _, e := range rec.snapshot() {
		if e.kind == "overlay" && !e.over.ValidTime.Equal(stamp) {
			t.Errorf("stale overlay published with valid time %v", e.over.ValidTime)
		}
	}
}

func TestViewportDuringBlockedLoadIsHonored(t *testing.T) {
	stamp := time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)
	gate := make(chan struct{})
	loader := &fakeLoader{
		results: map[string]*npz.Result{
			"slow": testResult(t, []float64{0.5, 1.5, 2.5, 0.5, 1.5, 2.5}, stamp),
		},
		gate: gate,
	}
	c, rec, _ := newTestCoordinator(t, loader)

	c.DataSelect("slow")
	deadline := time.Now().Add(2 * time.Second)
	for {
		loader.mu.Lock()
		started := len(loader.loads) > 0
		loader.mu.Unlock()
		if started {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("load never started")
		}
		time.Sleep(time.Millisecond)
	}

	// The executor must stay responsive while the load is blocked.
	window := grid.Extent{Left: 1, Right: 2, Bottom: 10, Top: 11}
	c.ViewportChange(window)
	time.Sleep(50 * time.Millisecond)
	if ev := rec.snapshot(); len(ev) != 0 {
		t.Fatalf("published %v before the load completed", rec.kinds())
	}

	loader.mu.Lock()
	loader.gate = nil
	loader.mu.Unlock()
	close(gate)

	events := waitForEvents(t, rec, 3)
	if events[1].kind != "histogram" {
		t.Fatalf("event 1 = %q, want histogram", events[1].kind)
	}
	if events[1].hist.Extent != window {
		t.Errorf("histogram extent = %+v, want the recorded viewport %+v", events[1].hist.Extent, window)
	}
}

func TestViewportChangeRecomputesHistogramOnly(t *testing.T) {
	stamp := time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC)
	loader := &fakeLoader{results: map[string]*npz.Result{
		"id": testResult(t, []float64{0.5, 1.5, 2.5, 0.5, 1.5, 2.5}, stamp),
	}}
	c, rec, _ := newTestCoordinator(t, loader)

	c.DataSelect("id")
	waitForEvents(t, rec, 3)

	window := grid.Extent{Left: 0, Right: 1, Bottom: 10, Top: 11}
	c.ViewportChange(window)
	events := waitForEvents(t, rec, 4)

	last := events[len(events)-1]
	if last.kind != "histogram" {
		t.Fatalf("viewport change published %q, want histogram", last.kind)
	}
	if last.hist.Extent != window {
		t.Errorf("histogram extent = %+v, want %+v", last.hist.Extent, window)
	}
	// Columns 0 and 1 only: values 0.5, 1.5 on each of two rows.
	want := []int{0, 2, 2, 0}
	if len(last.hist.Counts) != len(want) {
		t.Fatalf("counts = %v, want %v", last.hist.Counts, want)
	}
	for i := range want {
		if last.hist.Counts[i] != want[i] {
			t.Errorf("counts = %v, want %v", last.hist.Counts, want)
			break
		}
	}
	for _, e := range events[3:] {
		if e.kind == "overlay" || e.kind == "marker" {
			t.Errorf("viewport change also published %q", e.kind)
		}
	}
}

func TestViewportBeforeDataPublishesNothing(t *testing.T) {
	c, rec, _ := newTestCoordinator(t, &fakeLoader{})

	c.ViewportChange(grid.Extent{Left: 0, Right: 1, Bottom: 0, Top: 1})
	c.Click(0.5, 0.5)
	time.Sleep(50 * time.Millisecond)

	if ev := rec.snapshot(); len(ev) != 0 {
		t.Errorf("published %v before any data was loaded", rec.kinds())
	}
}

func TestClickSnapsToNearestCell(t *testing.T) {
	stamp := time.Date(2024, 6, 1, 16, 0, 0, 0, time.UTC)
	loader := &fakeLoader{results: map[string]*npz.Result{
		"id": testResult(t, []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}, stamp),
	}}
	c, rec, _ := newTestCoordinator(t, loader)

	c.DataSelect("id")
	waitForEvents(t, rec, 3)

	c.Click(1.4, 10.9)
	events := waitForEvents(t, rec, 4)

	m := events[len(events)-1]
	if m.kind != "marker" {
		t.Fatalf("click published %q, want marker", m.kind)
	}
	if m.mark.X != 1 || m.mark.Y != 11 {
		t.Errorf("marker snapped to (%v, %v), want (1, 11)", m.mark.X, m.mark.Y)
	}
	// Row 1 (y=11), column 1 in row-major order.
	if m.mark.Value != 0.5 {
		t.Errorf("marker value = %v, want 0.5", m.mark.Value)
	}
	if !m.mark.Valid {
		t.Error("marker reported masked for a valid cell")
	}
	if m.mark.Line != 0.5 {
		t.Errorf("line indicator = %v, want 0.5", m.mark.Line)
	}
}

func TestLineIndicatorClamping(t *testing.T) {
	c := &Coordinator{minVal: 0, maxVal: 3}

	cases := []struct {
		name string
		v    float64
		ok   bool
		want float64
	}{
		{"masked", 0, false, 0},
		{"at min", 0, true, 0},
		{"in range", 1.7, true, 1.7},
		{"above max", 5, true, 2.97},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := c.lineAt(tc.v, tc.ok)
			if diff := got - tc.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("lineAt(%v, %v) = %v, want %v", tc.v, tc.ok, got, tc.want)
			}
		})
	}
}

func TestSelectionIndicesClampOnSmallerGrid(t *testing.T) {
	stamp := time.Date(2024, 6, 1, 17, 0, 0, 0, time.UTC)
	small, err := raster.New(2, 1, []float64{0.3, 0.4}, nil)
	if err != nil {
		t.Fatalf("raster.New: %v", err)
	}
	loader := &fakeLoader{results: map[string]*npz.Result{
		"big": testResult(t, []float64{1, 1, 1, 1, 1, 1}, stamp.Add(-time.Hour)),
		"small": {
			Raster:    small,
			X:         grid.Axis{0, 1},
			Y:         grid.Axis{10},
			ValidTime: stamp,
		},
	}}
	c, rec, _ := newTestCoordinator(t, loader)

	c.DataSelect("big")
	waitForEvents(t, rec, 3)
	c.Click(2, 11) // select the far corner of the big grid
	waitForEvents(t, rec, 4)

	c.DataSelect("small")
	events := waitForEvents(t, rec, 7)

	m := events[len(events)-1]
	if m.kind != "marker" {
		t.Fatalf("last event = %q, want marker", m.kind)
	}
	if m.mark.X != 1 || m.mark.Y != 10 {
		t.Errorf("marker = (%v, %v), want clamped corner (1, 10)", m.mark.X, m.mark.Y)
	}
	if m.mark.Value != 0.4 {
		t.Errorf("marker value = %v, want 0.4", m.mark.Value)
	}
}
