package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_FullFile(t *testing.T) {
	content := `
server:
  port: 9000
  cors_origins: ["http://example.com"]
data:
  dir: "/data/mrms"
display:
  max_val: 5.0
  grey_threshold: 0.05
  alpha: 0.5
  bins_per_unit: 4
  colormap: "plasma"
debounce:
  data_ms: 200
  viewport_ms: 150
  click_ms: 25
cache:
  overlay_size_mb: 64
  overlay_ttl_minutes: 10
  raster_entries: 4
`
	cfg := loadFromString(t, content)

	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	if len(cfg.Server.CORSOrigins) != 1 || cfg.Server.CORSOrigins[0] != "http://example.com" {
		t.Errorf("unexpected cors_origins: %v", cfg.Server.CORSOrigins)
	}
	if cfg.Data.Dir != "/data/mrms" {
		t.Errorf("unexpected data dir: %s", cfg.Data.Dir)
	}
	if cfg.Display.MaxVal != 5.0 {
		t.Errorf("expected max_val 5.0, got %v", cfg.Display.MaxVal)
	}
	if cfg.Display.Colormap != "plasma" {
		t.Errorf("expected colormap 'plasma', got %q", cfg.Display.Colormap)
	}
	if cfg.Debounce.DataMS != 200 {
		t.Errorf("expected data_ms 200, got %d", cfg.Debounce.DataMS)
	}
	if cfg.Cache.RasterEntries != 4 {
		t.Errorf("expected raster_entries 4, got %d", cfg.Cache.RasterEntries)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	content := `
server:
  port: 0
data:
  dir: "/data/mrms"
`
	cfg := loadFromString(t, content)

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Display.MaxVal != 3.0 {
		t.Errorf("expected default max_val 3.0, got %v", cfg.Display.MaxVal)
	}
	if cfg.Display.GreyThreshold != 0.01 {
		t.Errorf("expected default grey_threshold 0.01, got %v", cfg.Display.GreyThreshold)
	}
	if cfg.Display.BinsPerUnit != 10 {
		t.Errorf("expected default bins_per_unit 10, got %d", cfg.Display.BinsPerUnit)
	}
	if cfg.Debounce.DataMS != 100 || cfg.Debounce.ClickMS != 50 {
		t.Errorf("unexpected debounce defaults: %+v", cfg.Debounce)
	}
	if cfg.Cache.OverlaySizeMB != 128 {
		t.Errorf("expected default overlay_size_mb 128, got %d", cfg.Cache.OverlaySizeMB)
	}
	if cfg.Data.Dir != "/data/mrms" {
		t.Errorf("explicit data dir overwritten: %s", cfg.Data.Dir)
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	defaults := DefaultConfig()
	if cfg.Server.Port != defaults.Server.Port {
		t.Errorf("expected default port %d, got %d", defaults.Server.Port, cfg.Server.Port)
	}
	if cfg.Display.Colormap != defaults.Display.Colormap {
		t.Errorf("expected default colormap %q, got %q", defaults.Display.Colormap, cfg.Display.Colormap)
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server: [not a mapping"), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed yaml")
	}
}

func TestDebounceDelays(t *testing.T) {
	d := DebounceConfig{DataMS: 100, ViewportMS: 100, ClickMS: 50}
	if d.DataDelay() != 100*time.Millisecond {
		t.Errorf("unexpected data delay: %v", d.DataDelay())
	}
	if d.ClickDelay() != 50*time.Millisecond {
		t.Errorf("unexpected click delay: %v", d.ClickDelay())
	}
}

func loadFromString(t *testing.T, content string) *Config {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	return cfg
}
