// Package api provides HTTP handlers for the precipitation viewer server.
package api

import (
	"encoding/json"
	"math"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/mrms-view/server/internal/binning"
	"github.com/mrms-view/server/internal/cache"
	"github.com/mrms-view/server/internal/data/npz"
	"github.com/mrms-view/server/internal/grid"
	"github.com/mrms-view/server/internal/render"
)

// TimeLister enumerates the available archive times.
type TimeLister interface {
	ListTimes() ([]npz.TimeEntry, error)
}

// Controller accepts viewer events for debounced processing.
type Controller interface {
	DataSelect(id string)
	ViewportChange(e grid.Extent)
	Click(x, y float64)
}

// RouterConfig contains router configuration.
type RouterConfig struct {
	Hub         *Hub
	Controller  Controller
	Times       TimeLister
	Renderer    *render.Renderer
	Colorizer   *binning.Colorizer
	Cache       *cache.Manager
	CORSOrigins []string
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/times", timesHandler(cfg.Times))
		r.Get("/status", statusHandler(cfg.Hub, cfg.Cache))
		r.Post("/select", selectHandler(cfg.Controller))
		r.Post("/viewport", viewportHandler(cfg.Controller))
		r.Post("/click", clickHandler(cfg.Controller))
		r.Get("/histogram", histogramHandler(cfg.Hub))
		r.Get("/readout", readoutHandler(cfg.Hub))
		r.Get("/marker", markerHandler(cfg.Hub))
	})

	r.Route("/view", func(r chi.Router) {
		r.Get("/overlay.png", overlayImageHandler(cfg.Hub, cfg.Renderer, cfg.Cache))
		r.Get("/histogram.png", histogramImageHandler(cfg.Hub, cfg.Renderer, cfg.Colorizer))
	})

	return r
}

// timesHandler returns the list of available archive times.
func timesHandler(times TimeLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := times.ListTimes()
		if err != nil {
			http.Error(w, "failed to list times: "+err.Error(), http.StatusInternalServerError)
			return
		}

		latest := ""
		if len(entries) > 0 {
			latest = entries[len(entries)-1].Label
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"times":  entries,
			"latest": latest,
		})
	}
}

func statusHandler(hub *Hub, cm *cache.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{}
		if ov := hub.Overlay(); ov != nil {
			response["valid_time"] = ov.ValidTime
			response["label"] = npz.Label(ov.ValidTime)
		}
		if err := hub.LastError(); err != nil {
			response["error"] = err.Error()
		}
		if cm != nil {
			response["cache"] = cm.Stats()
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}
}

type selectRequest struct {
	Time string `json:"time"`
}

// selectHandler schedules a time selection. The work is debounced, so the
// response only acknowledges the request.
func selectHandler(ctl Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req selectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		req.Time = strings.TrimSpace(req.Time)
		if req.Time == "" {
			http.Error(w, "time is required", http.StatusBadRequest)
			return
		}

		ctl.DataSelect(req.Time)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"scheduled": true,
			"time":      req.Time,
		})
	}
}

func viewportHandler(ctl Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var e grid.Extent
		if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		if !finite(e.Left) || !finite(e.Right) || !finite(e.Bottom) || !finite(e.Top) {
			http.Error(w, "extent values must be finite", http.StatusBadRequest)
			return
		}

		ctl.ViewportChange(e)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]interface{}{"scheduled": true})
	}
}

type clickRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func clickHandler(ctl Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req clickRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		if !finite(req.X) || !finite(req.Y) {
			http.Error(w, "coordinates must be finite", http.StatusBadRequest)
			return
		}

		ctl.Click(req.X, req.Y)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]interface{}{"scheduled": true})
	}
}

func histogramHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := hub.Histogram()
		if h == nil {
			http.Error(w, "no histogram published yet", http.StatusNotFound)
			return
		}
		response := map[string]interface{}{
			"counts": h.Counts,
			"edges":  h.Edges,
			"mean":   h.Mean,
			"extent": h.Extent,
		}
		if m := hub.Marker(); m != nil {
			response["line"] = m.Line
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}
}

func readoutHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m := hub.Marker()
		if m == nil {
			http.Error(w, "no selection published yet", http.StatusNotFound)
			return
		}
		response := map[string]interface{}{
			"x":     m.X,
			"y":     m.Y,
			"value": m.Value,
			"valid": m.Valid,
		}
		if h := hub.Histogram(); h != nil {
			response["mean"] = h.Mean
		}
		if ov := hub.Overlay(); ov != nil {
			response["label"] = npz.Label(ov.ValidTime)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}
}

func markerHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m := hub.Marker()
		if m == nil {
			http.Error(w, "no selection published yet", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"x":     m.X,
			"y":     m.Y,
			"value": m.Value,
			"valid": m.Valid,
			"line":  m.Line,
		})
	}
}

// overlayImageHandler serves the current overlay as PNG. Encodes at most once
// per valid time; repeat requests hit the byte cache.
func overlayImageHandler(hub *Hub, rd *render.Renderer, cm *cache.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ov := hub.Overlay()
		if ov == nil {
			http.Error(w, "no overlay published yet", http.StatusNotFound)
			return
		}

		key := cache.OverlayKey(ov.ValidTime)
		data, ok := cm.GetOverlay(key)
		if !ok {
			var err error
			data, err = rd.EncodeOverlay(ov.Image)
			if err != nil {
				http.Error(w, "failed to encode overlay: "+err.Error(), http.StatusInternalServerError)
				return
			}
			cm.SetOverlay(key, data)
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("X-Overlay-Bounds", boundsHeader(ov.Bounds))
		w.Write(data)
	}
}

func histogramImageHandler(hub *Hub, rd *render.Renderer, col *binning.Colorizer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := hub.Histogram()
		if h == nil {
			http.Error(w, "no histogram published yet", http.StatusNotFound)
			return
		}
		line := math.NaN()
		if m := hub.Marker(); m != nil {
			line = m.Line
		}

		data, err := rd.RenderHistogram(h.Counts, h.Edges, col.BinColors(h.Edges), line)
		if err != nil {
			http.Error(w, "failed to render histogram: "+err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Write(data)
	}
}

func boundsHeader(b binning.BBox) string {
	data, _ := json.Marshal(b)
	return string(data)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
