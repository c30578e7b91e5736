// Package config handles configuration loading for the precipitation viewer.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Data     DataConfig     `yaml:"data"`
	Display  DisplayConfig  `yaml:"display"`
	Debounce DebounceConfig `yaml:"debounce"`
	Cache    CacheConfig    `yaml:"cache"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// DataConfig contains data source settings.
type DataConfig struct {
	Dir string `yaml:"dir"`
}

// DisplayConfig contains overlay and histogram display settings.
type DisplayConfig struct {
	MaxVal        float64 `yaml:"max_val"`
	GreyThreshold float64 `yaml:"grey_threshold"`
	Alpha         float64 `yaml:"alpha"`
	BinsPerUnit   int     `yaml:"bins_per_unit"`
	Colormap      string  `yaml:"colormap"`
}

// DebounceConfig contains per-channel dispatch delays in milliseconds.
type DebounceConfig struct {
	DataMS     int `yaml:"data_ms"`
	ViewportMS int `yaml:"viewport_ms"`
	ClickMS    int `yaml:"click_ms"`
}

// CacheConfig contains caching settings.
type CacheConfig struct {
	OverlaySizeMB     int `yaml:"overlay_size_mb"`
	OverlayTTLMinutes int `yaml:"overlay_ttl_minutes"`
	RasterEntries     int `yaml:"raster_entries"`
}

// DataDelay returns the data channel debounce as a duration.
func (d DebounceConfig) DataDelay() time.Duration {
	return time.Duration(d.DataMS) * time.Millisecond
}

// ViewportDelay returns the viewport channel debounce as a duration.
func (d DebounceConfig) ViewportDelay() time.Duration {
	return time.Duration(d.ViewportMS) * time.Millisecond
}

// ClickDelay returns the click channel debounce as a duration.
func (d DebounceConfig) ClickDelay() time.Duration {
	return time.Duration(d.ClickMS) * time.Millisecond
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		// Return default config if file doesn't exist
		return DefaultConfig(), nil
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Apply defaults for missing values
	applyDefaults(&cfg)

	return &cfg, nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Data: DataConfig{
			Dir: "~/.mrms",
		},
		Display: DisplayConfig{
			MaxVal:        3.0,
			GreyThreshold: 0.01,
			Alpha:         0.7,
			BinsPerUnit:   10,
			Colormap:      "viridis",
		},
		Debounce: DebounceConfig{
			DataMS:     100,
			ViewportMS: 100,
			ClickMS:    50,
		},
		Cache: CacheConfig{
			OverlaySizeMB:     128,
			OverlayTTLMinutes: 30,
			RasterEntries:     8,
		},
	}
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaults.Server.Port
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = defaults.Server.CORSOrigins
	}
	if cfg.Data.Dir == "" {
		cfg.Data.Dir = defaults.Data.Dir
	}
	if cfg.Display.MaxVal == 0 {
		cfg.Display.MaxVal = defaults.Display.MaxVal
	}
	if cfg.Display.GreyThreshold == 0 {
		cfg.Display.GreyThreshold = defaults.Display.GreyThreshold
	}
	if cfg.Display.Alpha == 0 {
		cfg.Display.Alpha = defaults.Display.Alpha
	}
	if cfg.Display.BinsPerUnit == 0 {
		cfg.Display.BinsPerUnit = defaults.Display.BinsPerUnit
	}
	if cfg.Display.Colormap == "" {
		cfg.Display.Colormap = defaults.Display.Colormap
	}
	if cfg.Debounce.DataMS == 0 {
		cfg.Debounce.DataMS = defaults.Debounce.DataMS
	}
	if cfg.Debounce.ViewportMS == 0 {
		cfg.Debounce.ViewportMS = defaults.Debounce.ViewportMS
	}
	if cfg.Debounce.ClickMS == 0 {
		cfg.Debounce.ClickMS = defaults.Debounce.ClickMS
	}
	if cfg.Cache.OverlaySizeMB == 0 {
		cfg.Cache.OverlaySizeMB = defaults.Cache.OverlaySizeMB
	}
	if cfg.Cache.OverlayTTLMinutes == 0 {
		cfg.Cache.OverlayTTLMinutes = defaults.Cache.OverlayTTLMinutes
	}
	if cfg.Cache.RasterEntries == 0 {
		cfg.Cache.RasterEntries = defaults.Cache.RasterEntries
	}
}
