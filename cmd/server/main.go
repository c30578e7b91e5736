// Package main is the entry point for the precipitation viewer server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mrms-view/server/internal/api"
	"github.com/mrms-view/server/internal/binning"
	"github.com/mrms-view/server/internal/cache"
	"github.com/mrms-view/server/internal/config"
	"github.com/mrms-view/server/internal/data/npz"
	"github.com/mrms-view/server/internal/raster"
	"github.com/mrms-view/server/internal/render"
	"github.com/mrms-view/server/internal/service"
	"github.com/mrms-view/server/internal/view"
	"github.com/mrms-view/server/pkg/colormap"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config/server.yaml", "Path to configuration file")
	dataDir := flag.String("data", "", "Archive directory (overrides config)")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if env := os.Getenv("MRMS_DATADIR"); env != "" {
		cfg.Data.Dir = env
	}
	if *dataDir != "" {
		cfg.Data.Dir = *dataDir
	}

	log.Printf("Starting precipitation viewer on port %d", cfg.Server.Port)
	log.Printf("Archive directory: %s", cfg.Data.Dir)

	// Initialize cache manager
	cacheManager, err := cache.NewManager(cache.Config{
		OverlaySizeMB:   cfg.Cache.OverlaySizeMB,
		OverlayTTL:      time.Duration(cfg.Cache.OverlayTTLMinutes) * time.Minute,
		RasterCacheSize: cfg.Cache.RasterEntries,
	})
	if err != nil {
		log.Fatalf("Failed to initialize cache: %v", err)
	}
	defer cacheManager.Close()

	// Initialize archive loader and raster service
	loader := npz.NewLoader(cfg.Data.Dir, 0)
	rasterService := service.NewRasterService(service.RasterServiceConfig{
		Loader: loader,
		Cache:  cacheManager,
	})

	// Build the binning pipeline from display settings
	edges, err := binning.InsertNearZero(
		binning.Levels(cfg.Display.MaxVal, cfg.Display.BinsPerUnit),
		cfg.Display.GreyThreshold,
	)
	if err != nil {
		log.Fatalf("Failed to build bin edges: %v", err)
	}
	histogrammer, err := binning.NewHistogrammer(edges)
	if err != nil {
		log.Fatalf("Failed to build histogrammer: %v", err)
	}
	colorizer := binning.NewColorizer(binning.ColorizerConfig{
		Ramp:          colormap.DefaultRamp(cfg.Display.Colormap),
		MinVal:        0,
		MaxVal:        cfg.Display.MaxVal,
		GreyThreshold: cfg.Display.GreyThreshold,
		Alpha:         cfg.Display.Alpha,
	})

	// Initialize the view pipeline
	hub := api.NewHub()
	coordinator, err := view.NewCoordinator(view.Config{
		Store:         raster.NewStore(),
		Loader:        rasterService,
		Histogrammer:  histogrammer,
		Colorizer:     colorizer,
		Publisher:     hub,
		MinVal:        0,
		MaxVal:        cfg.Display.MaxVal,
		DataDelay:     cfg.Debounce.DataDelay(),
		ViewportDelay: cfg.Debounce.ViewportDelay(),
		ClickDelay:    cfg.Debounce.ClickDelay(),
	})
	if err != nil {
		log.Fatalf("Failed to initialize view coordinator: %v", err)
	}
	defer coordinator.Stop()

	// Load the newest archive on startup
	coordinator.DataSelect(npz.Latest)

	// Set up HTTP router
	router := api.NewRouter(api.RouterConfig{
		Hub:         hub,
		Controller:  coordinator,
		Times:       rasterService,
		Renderer:    render.NewRenderer(render.Config{}),
		Colorizer:   colorizer,
		Cache:       cacheManager,
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on http://localhost:%d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
