package engine

import (
	"github.com/talgya/infall/internal/bodies"
	"github.com/talgya/infall/internal/render"
)

// Frame is an immutable picture of the simulation after a tick. A new frame
// is published only once every body has been integrated, so readers never
// see a half-updated arena.
type Frame struct {
	Tick     uint64 `json:"tick"`
	Cycle    uint64 `json:"cycle"`
	Status   string `json:"status"` // "running", "cooldown" or "paused"
	Strategy string `json:"strategy"`

	Rs       float64         `json:"rs"`
	Horizon  render.Horizon  `json:"horizon"`
	Observer render.Observer `json:"observer"`
	Stats    SimStats        `json:"stats"`

	Snapshots []render.Snapshot `json:"snapshots"`
	Bodies    []bodies.Body     `json:"bodies"`
}

// Status returns the externally visible lifecycle state.
func (s *Simulation) Status() string {
	if s.Paused {
		return "paused"
	}
	return s.Phase.String()
}

// publish swaps in a fresh frame built from the current arena.
func (s *Simulation) publish() {
	arena := make([]bodies.Body, len(s.Bodies))
	copy(arena, s.Bodies)

	f := &Frame{
		Tick:      s.LastTick,
		Cycle:     s.Cycle,
		Status:    s.Status(),
		Strategy:  s.Mapper.Strategy().String(),
		Rs:        s.K.Rs,
		Horizon:   s.Mapper.Horizon(),
		Observer:  s.Mapper.Observer(),
		Stats:     s.Stats,
		Snapshots: s.Mapper.MapAll(make([]render.Snapshot, 0, len(arena)), arena),
		Bodies:    arena,
	}
	s.frame.Store(f)
}

// Frame returns the latest published frame. Safe from any goroutine; the
// returned value must not be modified.
func (s *Simulation) Frame() *Frame {
	return s.frame.Load()
}
