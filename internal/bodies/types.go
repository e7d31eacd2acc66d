// Package bodies provides the body record simulated by the engine and the
// lattice that subdivides one falling object into independent elements.
package bodies

import (
	"github.com/go-gl/mathgl/mgl64"
)

// BodyID is the index of a body in the simulation arena.
type BodyID uint32

// Cause records why a body stopped being simulated.
type Cause uint8

const (
	CauseNone      Cause = iota
	CauseAbsorbed        // Radius reached the horizon floor
	CauseCrossed         // Stretched nearest face would cross the horizon
	CauseFaded           // Redshift dimmed it below the visibility cutoff
	CauseDestroyed       // Stretch exceeded the despawn ceiling
)

// String returns the event category name for a cause.
func (c Cause) String() string {
	switch c {
	case CauseAbsorbed:
		return "absorbed"
	case CauseCrossed:
		return "crossed"
	case CauseFaded:
		return "faded"
	case CauseDestroyed:
		return "destroyed"
	default:
		return "none"
	}
}

// Body is one simulated element of the falling object.
// Offset, Direction and Size are fixed at creation; the physical fields are
// mutated in place by the integrator and tidal model while Alive.
type Body struct {
	ID BodyID `json:"id"`

	// Geometry
	Offset    mgl64.Vec3 `json:"offset"`    // Lattice offset from the object center (m)
	Direction mgl64.Vec3 `json:"direction"` // Unit vector from the hole toward the body
	Size      float64    `json:"size"`      // Element extent (m)

	// Physical state
	R       float64 `json:"r"`       // Radial coordinate (m)
	Tau     float64 `json:"tau"`     // Proper time (s)
	Stretch float64 `json:"stretch"` // Tidal stretch factor, >= 1
	Opacity float64 `json:"opacity"` // 0.0–1.0, derived from time dilation

	// Lifecycle
	Alive    bool   `json:"alive"`
	Cause    Cause  `json:"cause"`
	DiedTick uint64 `json:"died_tick,omitempty"`
	Steps    uint64 `json:"steps"`
}

// Position returns the body's location relative to the hole (m).
func (b *Body) Position() mgl64.Vec3 {
	return b.Direction.Mul(b.R)
}

// NearestFace returns the radius of the stretched face closest to the hole.
func (b *Body) NearestFace() float64 {
	return b.R - b.Stretch*b.Size/2
}

// Kill freezes the body with the given cause.
func (b *Body) Kill(cause Cause, tick uint64) {
	b.Alive = false
	b.Cause = cause
	b.DiedTick = tick
	b.Opacity = 0
}
