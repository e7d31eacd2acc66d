package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/talgya/infall/internal/engine"
)

// frameSummary is the compact per-frame payload pushed over the stream.
type frameSummary struct {
	Tick   uint64          `json:"tick"`
	Cycle  uint64          `json:"cycle"`
	Status string          `json:"status"`
	Stats  engine.SimStats `json:"stats"`
}

// handleStream serves GET /api/v1/stream: lifecycle events plus periodic
// frame summaries as server-sent events.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	// Auth check uses the relay key, not the admin key.
	if s.RelayKey == "" {
		http.Error(w, "streaming disabled (no relay key)", http.StatusForbidden)
		return
	}
	if !s.checkBearerToken(r, s.RelayKey) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	// Connection limit.
	current := atomic.AddInt32(&s.sseConns, 1)
	if current > maxSSEConns {
		atomic.AddInt32(&s.sseConns, -1)
		http.Error(w, "too many SSE connections", http.StatusServiceUnavailable)
		return
	}
	defer atomic.AddInt32(&s.sseConns, -1)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	subID, ch := s.Sim.Subscribe()
	defer s.Sim.Unsubscribe(subID)

	// Catch-up: the last 50 events and the current frame.
	for _, e := range s.Sim.RecentEvents(50) {
		writeSSEEvent(w, e.Category, e)
	}
	lastTick := s.writeFrame(w, ^uint64(0))
	flusher.Flush()

	slog.Info("SSE client connected", "sub_id", subID)

	interval := s.FrameInterval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	frames := time.NewTicker(interval)
	defer frames.Stop()
	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return
			}
			writeSSEEvent(w, e.Category, e)
			flusher.Flush()
		case <-frames.C:
			if tick := s.writeFrame(w, lastTick); tick != lastTick {
				lastTick = tick
				flusher.Flush()
			}
		case <-heartbeat.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			slog.Info("SSE client disconnected", "sub_id", subID)
			return
		}
	}
}

// writeFrame pushes a frame summary unless the frame at lastTick was already
// sent. Returns the tick of the current frame.
func (s *Server) writeFrame(w http.ResponseWriter, lastTick uint64) uint64 {
	f := s.Sim.Frame()
	if f.Tick == lastTick {
		return lastTick
	}
	writeSSEEvent(w, "frame", frameSummary{Tick: f.Tick, Cycle: f.Cycle, Status: f.Status, Stats: f.Stats})
	return f.Tick
}

// writeSSEEvent writes a single event in SSE format.
func writeSSEEvent(w http.ResponseWriter, name string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
}
