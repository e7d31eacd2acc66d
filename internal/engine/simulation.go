// Simulation ties the physics, tidal and render systems together and runs the
// body lifecycle each tick.
package engine

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/infall/internal/bodies"
	"github.com/talgya/infall/internal/config"
	"github.com/talgya/infall/internal/physics"
	"github.com/talgya/infall/internal/render"
)

// Phase is the lifecycle state of the current cycle.
type Phase uint8

const (
	PhaseRunning  Phase = iota // Bodies are falling
	PhaseCooldown              // Every body is dead; waiting to reset
)

func (p Phase) String() string {
	if p == PhaseCooldown {
		return "cooldown"
	}
	return "running"
}

// maxHistory bounds the in-memory cycle summaries.
const maxHistory = 100

// Simulation holds the body arena and the systems that advance it.
// Every mutating method runs on the tick goroutine; other goroutines read
// the published Frame, the event log, and History.
type Simulation struct {
	K          physics.Constants
	Lattice    *bodies.Lattice
	Integrator *physics.Integrator
	Tidal      *physics.TidalModel
	Mapper     *render.Mapper

	Bodies   []bodies.Body // Arena, indexed by BodyID
	Phase    Phase
	Paused   bool
	LastTick uint64 // Most recent tick processed
	Cycle    uint64 // 1-based cycle counter

	// OnCycle is called on the tick goroutine when a cycle ends.
	OnCycle func(CycleSummary)

	// Statistics for the current cycle.
	Stats SimStats

	cfg        config.Config
	sched      *Scheduler
	cooldown   *Task
	cycleStart uint64
	cycleTicks uint64

	events  *eventLog
	frame   atomic.Pointer[Frame]
	histMu  sync.Mutex
	history []CycleSummary
}

// SimStats tracks aggregate statistics for the current cycle.
type SimStats struct {
	Alive       int     `json:"alive"`
	Absorbed    int     `json:"absorbed"`
	Crossed     int     `json:"crossed"`
	Faded       int     `json:"faded"`
	Destroyed   int     `json:"destroyed"`
	MinRadiusRs float64 `json:"min_radius_rs"` // Smallest r/rs among live bodies
	MaxStretch  float64 `json:"max_stretch"`
	MeanOpacity float64 `json:"mean_opacity"`
	MaxTau      float64 `json:"max_tau"`
}

// NewSimulation builds every system from a validated configuration and
// populates the arena in its initial state.
func NewSimulation(cfg config.Config) (*Simulation, error) {
	k, err := cfg.Constants()
	if err != nil {
		return nil, err
	}
	lat, err := bodies.NewLattice(cfg.Lattice(k.Rs))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", physics.ErrInvalidConfig, err)
	}
	integ, err := physics.NewIntegrator(k, cfg.IntegratorParams())
	if err != nil {
		return nil, err
	}
	tidal, err := physics.NewTidalModel(k, cfg.TidalParams(k.Rs))
	if err != nil {
		return nil, err
	}
	mapper, err := render.NewMapper(k.Rs, cfg.RenderParams())
	if err != nil {
		return nil, err
	}

	s := &Simulation{
		K:          k,
		Lattice:    lat,
		Integrator: integ,
		Tidal:      tidal,
		Mapper:     mapper,
		Bodies:     lat.Populate(),
		Cycle:      1,
		cfg:        cfg,
		sched:      NewScheduler(),
		events:     newEventLog(),
	}
	for i := range s.Bodies {
		s.Bodies[i].Opacity = s.opacity(s.Bodies[i].R)
	}
	s.updateStats()
	s.publish()
	return s, nil
}

// CurrentTick returns the most recently processed tick number.
func (s *Simulation) CurrentTick() uint64 {
	return s.LastTick
}

// Config returns the configuration the simulation was built from.
func (s *Simulation) Config() config.Config {
	return s.cfg
}

// Scheduler exposes the virtual clock driving deferred lifecycle tasks.
func (s *Simulation) Scheduler() *Scheduler {
	return s.sched
}

// Tick advances the simulation by one frame. elapsed is the scaled wall time
// since the previous frame. Nothing changes while paused.
func (s *Simulation) Tick(tick uint64, elapsed time.Duration) {
	if s.Paused {
		return
	}
	s.LastTick = tick

	// Deferred tasks first: a due reset starts this frame's cycle.
	s.sched.Advance(elapsed)

	if s.Phase == PhaseRunning {
		s.stepBodies(tick, s.physicsElapsed(elapsed))
		s.cycleTicks++
	}
	s.updateStats()

	if s.Phase == PhaseRunning && s.Stats.Alive == 0 {
		s.enterCooldown(tick)
	}
	s.publish()
}

// physicsElapsed converts frame time into integrator time. Zero requests one
// nominal step per body.
func (s *Simulation) physicsElapsed(elapsed time.Duration) float64 {
	if s.cfg.Integrator.TimeScale <= 0 {
		return 0
	}
	return elapsed.Seconds() * s.cfg.Integrator.TimeScale
}

// stepBodies integrates every live body, applies tidal stretch, refreshes
// opacity, then retires bodies that meet a death condition.
func (s *Simulation) stepBodies(tick uint64, elapsed float64) {
	for i := range s.Bodies {
		b := &s.Bodies[i]
		if !b.Alive {
			continue
		}

		// Tides grow at each sub-step's radius, and a crossing or despawn
		// ends the frame for that body.
		var res physics.TidalResult
		s.Integrator.AdvanceEach(b, elapsed, func(dt float64) bool {
			res = s.Tidal.Apply(b, dt)
			return !res.Crossed && !res.Destroyed
		})
		b.Opacity = s.opacity(b.R)

		if cause := s.deathCause(b, res); cause != bodies.CauseNone {
			b.Kill(cause, tick)
			s.recordDeath(b)
		}
	}
}

// deathCause checks the retirement conditions in priority order.
func (s *Simulation) deathCause(b *bodies.Body, res physics.TidalResult) bodies.Cause {
	switch {
	case b.R <= s.Integrator.FloorRadius():
		return bodies.CauseAbsorbed
	case res.Crossed:
		return bodies.CauseCrossed
	case res.Destroyed:
		return bodies.CauseDestroyed
	case physics.DilationFactor(s.K.Rs, b.R, s.cfg.Lifecycle.DilationFloor) < s.cfg.Lifecycle.VisibilityCutoff:
		return bodies.CauseFaded
	}
	return bodies.CauseNone
}

func (s *Simulation) opacity(r float64) float64 {
	return physics.Opacity(s.K.Rs, r, s.cfg.Lifecycle.DilationFloor)
}

func (s *Simulation) recordDeath(b *bodies.Body) {
	s.EmitEvent(Event{
		Tick: b.DiedTick,
		Description: fmt.Sprintf("body %d %s at %.4f rs after τ=%s, stretch %.2f",
			b.ID, b.Cause, b.R/s.K.Rs, humanize.SIWithDigits(b.Tau, 3, "s"), b.Stretch),
		Category: b.Cause.String(),
	})
}

// enterCooldown schedules the reset for the finished cycle. At most one
// cooldown is pending at any time.
func (s *Simulation) enterCooldown(tick uint64) {
	if s.cooldown.Pending() {
		return
	}
	s.Phase = PhaseCooldown
	s.finishCycle(tick)

	delay := s.cfg.Lifecycle.Cooldown.Duration
	s.EmitEvent(Event{
		Tick:        tick,
		Description: fmt.Sprintf("all bodies gone, resetting in %s", delay),
		Category:    CategoryCooldown,
	})
	s.cooldown = s.sched.After(delay, func() {
		s.cooldown = nil
		s.Reset()
	})
}

// CooldownPending reports whether a reset is scheduled.
func (s *Simulation) CooldownPending() bool {
	return s.cooldown.Pending()
}

// Reset returns every body to its initial state and starts a new cycle,
// cancelling any pending cooldown. Resetting an untouched arena changes
// nothing.
func (s *Simulation) Reset() {
	s.cooldown.Cancel()
	s.cooldown = nil

	for i := range s.Bodies {
		s.Lattice.Reset(&s.Bodies[i])
		s.Bodies[i].Opacity = s.opacity(s.Bodies[i].R)
	}

	fresh := s.Phase == PhaseRunning && s.cycleTicks == 0
	s.Phase = PhaseRunning
	if !fresh {
		s.Cycle++
		s.cycleStart = s.LastTick
		s.cycleTicks = 0
		s.EmitEvent(Event{
			Tick:        s.LastTick,
			Description: fmt.Sprintf("cycle %d started with %d bodies", s.Cycle, len(s.Bodies)),
			Category:    CategoryReset,
		})
	}
	s.updateStats()
	s.publish()
}

// Pause freezes the simulation. It reports whether anything changed.
func (s *Simulation) Pause() bool {
	if s.Paused {
		return false
	}
	s.Paused = true
	s.publish()
	return true
}

// Resume unfreezes the simulation. It reports whether anything changed.
func (s *Simulation) Resume() bool {
	if !s.Paused {
		return false
	}
	s.Paused = false
	s.publish()
	return true
}

// StartSession begins a fresh run: any pending cooldown is dropped, the
// arena is reset and the simulation resumes.
func (s *Simulation) StartSession() {
	s.Reset()
	s.Resume()
	s.EmitEvent(Event{
		Tick:        s.LastTick,
		Description: fmt.Sprintf("session started, cycle %d", s.Cycle),
		Category:    CategorySession,
	})
	s.publish()
}

// EndSession pauses the simulation. Body state is kept for inspection.
func (s *Simulation) EndSession() {
	if !s.Pause() {
		return
	}
	s.EmitEvent(Event{
		Tick:        s.LastTick,
		Description: fmt.Sprintf("session ended, cycle %d, %d bodies alive", s.Cycle, s.Stats.Alive),
		Category:    CategorySession,
	})
}

// updateStats recomputes the aggregate statistics.
func (s *Simulation) updateStats() {
	st := SimStats{MinRadiusRs: math.Inf(1)}
	opacity := 0.0
	for i := range s.Bodies {
		b := &s.Bodies[i]
		switch b.Cause {
		case bodies.CauseAbsorbed:
			st.Absorbed++
		case bodies.CauseCrossed:
			st.Crossed++
		case bodies.CauseFaded:
			st.Faded++
		case bodies.CauseDestroyed:
			st.Destroyed++
		}
		st.MaxStretch = math.Max(st.MaxStretch, b.Stretch)
		st.MaxTau = math.Max(st.MaxTau, b.Tau)
		if !b.Alive {
			continue
		}
		st.Alive++
		opacity += b.Opacity
		st.MinRadiusRs = math.Min(st.MinRadiusRs, b.R/s.K.Rs)
	}
	if st.Alive > 0 {
		st.MeanOpacity = opacity / float64(st.Alive)
	} else {
		st.MinRadiusRs = 0
	}
	s.Stats = st
}

// LogStatus writes a one-line status report.
func (s *Simulation) LogStatus() {
	slog.Info("status",
		"tick", humanize.Comma(int64(s.LastTick)),
		"cycle", s.Cycle,
		"phase", s.Phase,
		"paused", s.Paused,
		"alive", s.Stats.Alive,
		"min_r_rs", fmt.Sprintf("%.4f", s.Stats.MinRadiusRs),
		"max_stretch", fmt.Sprintf("%.2f", s.Stats.MaxStretch),
	)
}
