package physics

import (
	"fmt"
	"math"
	"strings"

	"github.com/talgya/infall/internal/bodies"
)

// VelocityLaw selects how the radial coordinate evolves.
type VelocityLaw uint8

const (
	// LawProperTime integrates dr/dτ = -c·sqrt(rs/r) with adaptive steps.
	// The body reaches the horizon in finite proper time.
	LawProperTime VelocityLaw = iota

	// LawExternalObserver integrates dr/dt = -c·(1 - rs/r) with a fixed
	// coordinate step. The body only approaches the horizon asymptotically.
	LawExternalObserver
)

// String returns the configuration name of the law.
func (l VelocityLaw) String() string {
	switch l {
	case LawProperTime:
		return "proper-time"
	case LawExternalObserver:
		return "external-observer"
	default:
		return fmt.Sprintf("VelocityLaw(%d)", uint8(l))
	}
}

// UnmarshalText parses "proper-time" or "external-observer".
func (l *VelocityLaw) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "proper-time", "proper":
		*l = LawProperTime
	case "external-observer", "external", "observer":
		*l = LawExternalObserver
	default:
		return fmt.Errorf("%w: unknown velocity law %q", ErrInvalidConfig, text)
	}
	return nil
}

// MarshalText returns the configuration name of the law.
func (l VelocityLaw) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// IntegratorConfig holds the tunable parameters of the integrator.
type IntegratorConfig struct {
	Law           VelocityLaw
	Epsilon       float64 // Adaptive step fraction for LawProperTime (≈5e-4)
	FixedStep     float64 // Coordinate step for LawExternalObserver (s)
	Floor         float64 // Radius is clamped to rs·(1+Floor)
	DilationFloor float64 // Lower bound under the time-dilation square root
	MaxSubsteps   int     // Sub-step cap when integrating an elapsed interval
}

// Integrator advances a body's radial coordinate and proper time.
type Integrator struct {
	k   Constants
	cfg IntegratorConfig
}

// NewIntegrator validates the configuration and returns an integrator.
func NewIntegrator(k Constants, cfg IntegratorConfig) (*Integrator, error) {
	switch cfg.Law {
	case LawProperTime:
		if !positive(cfg.Epsilon) || cfg.Epsilon >= 1 {
			return nil, fmt.Errorf("%w: epsilon must be in (0, 1), got %g", ErrInvalidConfig, cfg.Epsilon)
		}
	case LawExternalObserver:
		if !positive(cfg.FixedStep) {
			return nil, fmt.Errorf("%w: fixed step must be positive, got %g", ErrInvalidConfig, cfg.FixedStep)
		}
	default:
		return nil, fmt.Errorf("%w: unknown velocity law %d", ErrInvalidConfig, cfg.Law)
	}
	if !positive(cfg.Floor) {
		return nil, fmt.Errorf("%w: horizon floor must be positive, got %g", ErrInvalidConfig, cfg.Floor)
	}
	if cfg.DilationFloor < 0 || cfg.DilationFloor >= 1 {
		return nil, fmt.Errorf("%w: dilation floor must be in [0, 1), got %g", ErrInvalidConfig, cfg.DilationFloor)
	}
	if cfg.MaxSubsteps < 1 {
		cfg.MaxSubsteps = 1
	}
	return &Integrator{k: k, cfg: cfg}, nil
}

// Law returns the configured velocity law.
func (in *Integrator) Law() VelocityLaw {
	return in.cfg.Law
}

// FloorRadius returns the clamp radius rs·(1+floor).
func (in *Integrator) FloorRadius() float64 {
	return in.k.Rs * (1 + in.cfg.Floor)
}

// Velocity returns dr/dτ or dr/dt at r, depending on the law. Always ≤ 0.
func (in *Integrator) Velocity(r float64) float64 {
	switch in.cfg.Law {
	case LawExternalObserver:
		return ObserverVelocity(in.k, r)
	default:
		return ProperVelocity(in.k, r)
	}
}

// ProperVelocity returns dr/dτ = -c·sqrt(rs/r). Its magnitude stays below c
// for every r > rs and grows as r shrinks.
func ProperVelocity(k Constants, r float64) float64 {
	return -k.C * math.Sqrt(k.Rs/r)
}

// ObserverVelocity returns dr/dt = -c·(1 - rs/r), which vanishes at the horizon.
func ObserverVelocity(k Constants, r float64) float64 {
	return -k.C * (1 - k.Rs/r)
}

// Step returns the time step the law would take at r: ε·r/|dr/dτ| for
// proper time, the fixed coordinate step otherwise.
func (in *Integrator) Step(r float64) float64 {
	if in.cfg.Law == LawExternalObserver {
		return in.cfg.FixedStep
	}
	return in.cfg.Epsilon * r / math.Abs(ProperVelocity(in.k, r))
}

// Advance integrates one body in place and returns the amount of time
// integrated. elapsed <= 0 takes exactly one nominal step; otherwise the
// interval is covered in sub-steps no larger than Step, up to MaxSubsteps.
// A non-finite or non-positive radius on entry is a caller defect and panics.
func (in *Integrator) Advance(b *bodies.Body, elapsed float64) float64 {
	return in.AdvanceEach(b, elapsed, nil)
}

// AdvanceEach is Advance with a hook run after every clamped sub-step with
// that sub-step's duration. Returning false from each stops the interval
// early. A nil hook always continues.
func (in *Integrator) AdvanceEach(b *bodies.Body, elapsed float64, each func(dt float64) bool) float64 {
	if !(b.R > 0) || math.IsInf(b.R, 0) {
		panic(fmt.Sprintf("physics: advance body %d with invalid radius %g", b.ID, b.R))
	}

	floor := in.FloorRadius()
	if elapsed <= 0 {
		dt := in.substep(b, math.Inf(1))
		in.clamp(b, floor)
		if each != nil {
			each(dt)
		}
		return dt
	}

	done := 0.0
	for i := 0; i < in.cfg.MaxSubsteps && done < elapsed && b.R > floor; i++ {
		dt := in.substep(b, elapsed-done)
		in.clamp(b, floor)
		done += dt
		if each != nil && !each(dt) {
			break
		}
	}
	return done
}

// substep takes one explicit step of at most limit seconds.
func (in *Integrator) substep(b *bodies.Body, limit float64) float64 {
	dt := math.Min(in.Step(b.R), limit)
	switch in.cfg.Law {
	case LawExternalObserver:
		b.Tau += dt * DilationFactor(in.k.Rs, b.R, in.cfg.DilationFloor)
		b.R += ObserverVelocity(in.k, b.R) * dt
	default:
		b.R += ProperVelocity(in.k, b.R) * dt
		b.Tau += dt
	}
	b.Steps++
	return dt
}

func (in *Integrator) clamp(b *bodies.Body, floor float64) {
	if b.R < floor || math.IsNaN(b.R) {
		b.R = floor
	}
}
