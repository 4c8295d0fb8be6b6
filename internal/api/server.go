// Package api provides the HTTP API for querying the planet grid.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"log/slog"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/talgya/planetgrid/internal/entropy"
	"github.com/talgya/planetgrid/internal/geom"
	"github.com/talgya/planetgrid/internal/metrics"
	"github.com/talgya/planetgrid/internal/persistence"
	"github.com/talgya/planetgrid/internal/world"
)

const (
	defaultMapWidth  = 720
	defaultMaxPixels = 4096 * 2048
)

// Server serves the grid over HTTP.
type Server struct {
	Grid     *world.Grid
	DB       *persistence.DB // Optional. Regenerated worlds are saved here.
	Entropy  *entropy.Client // Seed source for regeneration without a seed.
	Port     string
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	LocatePerMinute float64
	LocateBurst     int
	MaxMapPixels    int
	TrustedProxies  []string // IPs or CIDRs allowed to set X-Forwarded-For

	// mu guards Grid: handlers read under RLock, regeneration writes.
	mu  sync.RWMutex
	srv *http.Server

	limiterOnce sync.Once
	limiter     *RateLimiter
}

// locateLimiter returns the server's one locate limiter, building it on
// first use. Every Handler shares it.
func (s *Server) locateLimiter() *RateLimiter {
	s.limiterOnce.Do(func() {
		perMin, burst := s.LocatePerMinute, s.LocateBurst
		if perMin <= 0 {
			perMin = 120
		}
		if burst <= 0 {
			burst = 20
		}
		s.limiter = NewRateLimiter(perMin, burst)
		if err := s.limiter.TrustProxies(s.TrustedProxies...); err != nil {
			slog.Warn("ignoring trusted proxies", "error", err)
		}
	})
	return s.limiter
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	locateLimiter := s.locateLimiter()

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.getOnly(s.handleStatus))
	mux.HandleFunc("/api/v1/seed", s.getOnly(s.handleSeed))
	mux.HandleFunc("/api/v1/plates", s.getOnly(s.handlePlates))
	mux.HandleFunc("/api/v1/locate", s.getOnly(RateLimitMiddleware(locateLimiter, s.handleLocate)))
	mux.HandleFunc("/api/v1/cell/", s.getOnly(s.handleCell))
	mux.HandleFunc("/api/v1/map.png", s.getOnly(s.handleMap))
	mux.Handle("/metrics", metrics.Handler())

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/regenerate", s.adminOnly(s.handleRegenerate))

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := ":" + s.Port
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// Shutdown stops the server started by Start and the locate limiter's
// cleanup goroutine.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.locateLimiter().Close()
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS env var to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require POST with bearer token auth.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no PLANETGRID_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// getOnly rejects non-GET requests and requests made before the first
// world exists.
func (s *Server) getOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.mu.RLock()
		defer s.mu.RUnlock()
		if !s.Grid.Generated() {
			http.Error(w, "world not generated", http.StatusServiceUnavailable)
			return
		}
		next(w, r)
	}
}

type cellView struct {
	ID        uint32  `json:"id"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Elevation float64 `json:"elevation"`
	Plate     int32   `json:"plate"`
	Tier      string  `json:"tier"`
	Crust     string  `json:"crust"`
}

func (s *Server) viewCell(c *world.Cell) cellView {
	lat, lon, _ := geom.ToSpherical(c.Centroid)
	v := cellView{
		ID:        c.ID,
		Lat:       degrees(lat),
		Lon:       degrees(lon),
		Elevation: c.Elevation,
		Plate:     c.Plate,
	}
	if p := s.Grid.PlateOf(c); p != nil {
		v.Tier, v.Crust = p.Tier(), p.Crust()
	}
	return v
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	g := s.Grid
	cfg := g.Config()
	stats := g.Stats()
	writeJSON(w, map[string]any{
		"seed":            strconv.FormatUint(g.Seed(), 10),
		"cells":           stats.Cells,
		"depth":           g.Depth(),
		"plates":          len(g.Plates()),
		"radius":          cfg.Radius,
		"max_cell_edge":   cfg.MaxCellEdge,
		"generation_ms":   stats.Total().Milliseconds(),
		"placement_draws": stats.Draws,
	})
}

// handleSeed returns the seed as a string; JSON numbers lose precision
// above 2^53 in most clients.
func (s *Server) handleSeed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"seed": strconv.FormatUint(s.Grid.Seed(), 10),
	})
}

func (s *Server) handlePlates(w http.ResponseWriter, r *http.Request) {
	type plateSummary struct {
		Index      int     `json:"index"`
		Tier       string  `json:"tier"`
		Crust      string  `json:"crust"`
		CenterCell uint32  `json:"center_cell"`
		CenterLat  float64 `json:"center_lat"`
		CenterLon  float64 `json:"center_lon"`
		Cells      int     `json:"cells"`
		Share      float64 `json:"share"`
	}

	plates := s.Grid.Plates()
	counts := s.Grid.PlateCellCounts()
	total := float64(s.Grid.Stats().Cells)
	out := make([]plateSummary, 0, len(plates))
	for i := range plates {
		p := &plates[i]
		lat, lon, _ := geom.ToSpherical(p.Center.Centroid)
		out = append(out, plateSummary{
			Index:      p.Index,
			Tier:       p.Tier(),
			Crust:      p.Crust(),
			CenterCell: p.Center.ID,
			CenterLat:  degrees(lat),
			CenterLon:  degrees(lon),
			Cells:      counts[i],
			Share:      float64(counts[i]) / total,
		})
	}
	writeJSON(w, out)
}

// handleLocate returns the cell under ?lat=&lon= (degrees).
func (s *Server) handleLocate(w http.ResponseWriter, r *http.Request) {
	lat, err := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	if err != nil || !(lat >= -90 && lat <= 90) {
		http.Error(w, "lat must be a number in [-90, 90]", http.StatusBadRequest)
		return
	}
	lon, err := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if err != nil || math.IsNaN(lon) || math.IsInf(lon, 0) {
		http.Error(w, "lon must be a finite number", http.StatusBadRequest)
		return
	}

	metrics.LocateRequests.Inc()
	c := s.Grid.LocateLatLon(lat*math.Pi/180, lon*math.Pi/180)
	writeJSON(w, s.viewCell(c))
}

// handleCell returns one cell by ID: GET /api/v1/cell/:id.
func (s *Server) handleCell(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(r.URL.Path, "/")
	if len(parts) < 5 || parts[4] == "" {
		http.Error(w, "missing cell id", http.StatusBadRequest)
		return
	}
	id, err := strconv.ParseUint(parts[4], 10, 32)
	if err != nil {
		http.Error(w, "invalid cell id", http.StatusBadRequest)
		return
	}

	c, ok := s.Grid.Cell(uint32(id))
	if !ok {
		http.Error(w, "cell not found", http.StatusNotFound)
		return
	}

	type vertex struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	}
	var verts []vertex
	for _, v := range s.Grid.CellVertices(c) {
		lat, lon, _ := geom.ToSpherical(v)
		verts = append(verts, vertex{degrees(lat), degrees(lon)})
	}
	writeJSON(w, map[string]any{
		"cell":     s.viewCell(c),
		"vertices": verts,
	})
}

// handleMap renders the plate map as PNG: GET /api/v1/map.png?w=&h=.
func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	width, height := defaultMapWidth, 0
	if v := r.URL.Query().Get("w"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "invalid width", http.StatusBadRequest)
			return
		}
		width = n
	}
	if v := r.URL.Query().Get("h"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "invalid height", http.StatusBadRequest)
			return
		}
		height = n
	}
	if height == 0 {
		height = max(1, width/2)
	}
	maxPixels := s.MaxMapPixels
	if maxPixels <= 0 {
		maxPixels = defaultMaxPixels
	}
	if width > maxPixels/height {
		http.Error(w, "image too large", http.StatusBadRequest)
		return
	}

	img := world.RenderPlates(s.Grid, width, height)
	w.Header().Set("Content-Type", "image/png")
	if err := png.Encode(w, img); err != nil {
		slog.Debug("map encode failed", "error", err)
	}
}

// handleRegenerate replaces the world: POST /api/v1/regenerate[?seed=N].
// Without a seed a fresh one is drawn from the entropy source.
func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	var seed uint64
	if v := r.URL.Query().Get("seed"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			http.Error(w, "invalid seed", http.StatusBadRequest)
			return
		}
		seed = n
	} else {
		seed = s.Entropy.Seed(r.Context())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.Grid.Generate(seed)
	metrics.ObserveGeneration(s.Grid, err)
	if errors.Is(err, world.ErrPlatePlacement) {
		slog.Warn("regenerate failed", "seed", seed, "error", err)
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	if err != nil {
		slog.Error("regenerate failed", "seed", seed, "error", err)
		http.Error(w, "regenerate failed", http.StatusInternalServerError)
		return
	}

	saved := false
	if s.DB != nil {
		if err := s.DB.SaveWorld(s.Grid); err != nil {
			slog.Error("save after regenerate failed", "error", err)
		} else {
			saved = true
		}
	}

	writeJSON(w, map[string]any{
		"seed":    strconv.FormatUint(seed, 10),
		"cells":   s.Grid.Stats().Cells,
		"plates":  len(s.Grid.Plates()),
		"saved":   saved,
		"message": "world regenerated",
	})
}

func degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
