// Package api provides the HTTP API for observing and steering the fall.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/infall/internal/engine"
	"github.com/talgya/infall/internal/persistence"
)

const maxSSEConns = 2

// commandTimeout bounds how long a POST waits for the tick goroutine.
const commandTimeout = 5 * time.Second

// Server serves the simulation state over HTTP.
type Server struct {
	Sim      *engine.Simulation
	Eng      *engine.Engine
	DB       *persistence.DB // Optional; nil serves history from memory
	RunID    string
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.
	RelayKey string // Bearer token for SSE stream endpoint. Empty = streaming disabled.

	// FrameInterval is how often the stream pushes a frame summary.
	FrameInterval time.Duration

	// Active SSE connection count (atomic).
	sseConns int32
}

// Handler builds the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	sessionLimiter := NewRateLimiter(30, time.Minute)

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/frame", s.handleFrame)
	mux.HandleFunc("/api/v1/bodies", s.handleBodies)
	mux.HandleFunc("/api/v1/body/", s.handleBodyDetail)
	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.HandleFunc("/api/v1/history", s.handleHistory)

	// SSE streaming endpoint (GET, requires bearer token, relay only).
	mux.HandleFunc("/api/v1/stream", s.handleStream)

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))
	mux.HandleFunc("/api/v1/session", s.adminOnly(RateLimitMiddleware(sessionLimiter, s.handleSession)))
	mux.HandleFunc("/api/v1/reset", s.adminOnly(RateLimitMiddleware(sessionLimiter, s.handleReset)))

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine. Shut the returned server
// down to stop it.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "", "relay_auth", s.RelayKey != "")

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()
	return srv
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

func (s *Server) checkBearerToken(r *http.Request, key string) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == key
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
// GET requests pass through (for endpoints that support both GET and POST).
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no INFALL_ADMIN_KEY set)", http.StatusForbidden)
				return
			}
			if !s.checkBearerToken(r, s.AdminKey) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

// command runs fn on the tick goroutine on behalf of a request.
func (s *Server) command(r *http.Request, fn func()) error {
	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()
	return s.Eng.Do(ctx, fn)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	f := s.Sim.Frame()
	cfg := s.Sim.Config()
	writeJSON(w, map[string]any{
		"name":        "infall",
		"run_id":      s.RunID,
		"tick":        f.Tick,
		"cycle":       f.Cycle,
		"status":      f.Status,
		"speed":       s.Eng.Speed(),
		"running":     s.Eng.Running(),
		"mass_solar":  cfg.Physics.MassSolar,
		"rs":          f.Rs,
		"law":         cfg.Integrator.Law.String(),
		"strategy":    f.Strategy,
		"body_count":  len(f.Bodies),
		"stats":       f.Stats,
		"cooldown_ms": cfg.Lifecycle.Cooldown.Milliseconds(),
	})
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Frame())
}

func (s *Server) handleBodies(w http.ResponseWriter, r *http.Request) {
	f := s.Sim.Frame()
	aliveOnly := r.URL.Query().Get("alive") == "true"

	type bodyEntry struct {
		ID      uint32  `json:"id"`
		RRs     float64 `json:"r_rs"`
		Tau     float64 `json:"tau"`
		Stretch float64 `json:"stretch"`
		Opacity float64 `json:"opacity"`
		Alive   bool    `json:"alive"`
		Cause   string  `json:"cause,omitempty"`
	}

	out := make([]bodyEntry, 0, len(f.Bodies))
	for _, b := range f.Bodies {
		if aliveOnly && !b.Alive {
			continue
		}
		e := bodyEntry{
			ID:      uint32(b.ID),
			RRs:     b.R / f.Rs,
			Tau:     b.Tau,
			Stretch: b.Stretch,
			Opacity: b.Opacity,
			Alive:   b.Alive,
		}
		if !b.Alive {
			e.Cause = b.Cause.String()
		}
		out = append(out, e)
	}
	writeJSON(w, out)
}

// handleBodyDetail serves GET /api/v1/body/:id.
func (s *Server) handleBodyDetail(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/api/v1/body/")
	id, err := strconv.Atoi(idStr)
	if err != nil || id < 0 {
		http.Error(w, "invalid body id", http.StatusBadRequest)
		return
	}

	f := s.Sim.Frame()
	if id >= len(f.Bodies) {
		http.Error(w, "body not found", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]any{
		"body":     f.Bodies[id],
		"snapshot": f.Snapshots[id],
		"r_rs":     f.Bodies[id].R / f.Rs,
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	events := s.Sim.RecentEvents(limit)
	if cat := r.URL.Query().Get("category"); cat != "" {
		filtered := events[:0]
		for _, e := range events {
			if e.Category == cat {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}
	writeJSON(w, events)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	if s.DB != nil && s.RunID != "" {
		cycles, err := s.DB.Cycles(s.RunID, limit)
		if err != nil {
			slog.Error("history query failed", "error", err)
			http.Error(w, "history unavailable", http.StatusInternalServerError)
			return
		}
		writeJSON(w, cycles)
		return
	}

	cycles := s.Sim.History()
	if len(cycles) > limit {
		cycles = cycles[len(cycles)-limit:]
	}
	writeJSON(w, cycles)
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Speed < 0 || req.Speed > 100 {
			http.Error(w, "speed must be 0-100", http.StatusBadRequest)
			return
		}
		s.Eng.SetSpeed(req.Speed)
		slog.Info("speed changed", "speed", req.Speed)
	}

	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

// handleSession serves POST /api/v1/session {"action": "start"|"end"}.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Action string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	var fn func()
	switch req.Action {
	case "start":
		fn = s.Sim.StartSession
	case "end":
		fn = s.Sim.EndSession
	default:
		http.Error(w, `action must be "start" or "end"`, http.StatusBadRequest)
		return
	}
	if err := s.command(r, fn); err != nil {
		http.Error(w, "simulation busy", http.StatusServiceUnavailable)
		return
	}
	slog.Info("session command", "action", req.Action)

	f := s.Sim.Frame()
	writeJSON(w, map[string]any{"status": f.Status, "cycle": f.Cycle, "tick": f.Tick})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.command(r, s.Sim.Reset); err != nil {
		http.Error(w, "simulation busy", http.StatusServiceUnavailable)
		return
	}
	f := s.Sim.Frame()
	writeJSON(w, map[string]any{"status": f.Status, "cycle": f.Cycle, "tick": f.Tick})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
