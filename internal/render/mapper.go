// Package render converts physical body state into renderable transforms.
// Nothing in this package feeds back into the physics.
package render

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/talgya/infall/internal/bodies"
)

// ErrInvalidConfig is returned for unusable mapping parameters.
var ErrInvalidConfig = errors.New("invalid render configuration")

// Strategy selects how physical radius maps onto display distance.
type Strategy uint8

const (
	// StrategyLinear scales meters directly into display units.
	StrategyLinear Strategy = iota

	// StrategyCompressed maps log(r/rs) so the region near the horizon
	// stays visible at display scale.
	StrategyCompressed
)

// String returns the configuration name of the strategy.
func (s Strategy) String() string {
	switch s {
	case StrategyLinear:
		return "linear"
	case StrategyCompressed:
		return "compressed"
	default:
		return fmt.Sprintf("Strategy(%d)", uint8(s))
	}
}

// UnmarshalText parses "linear" or "compressed".
func (s *Strategy) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "linear":
		*s = StrategyLinear
	case "compressed", "log":
		*s = StrategyCompressed
	default:
		return fmt.Errorf("%w: unknown render strategy %q", ErrInvalidConfig, text)
	}
	return nil
}

// MarshalText returns the configuration name of the strategy.
func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Config holds display mapping parameters.
type Config struct {
	Strategy         Strategy
	MetersToUnits    float64 // Display units per meter
	CompressionGain  float64 // Display radii (in horizon radii) per e-fold of r/rs
	ObserverRadiusRs float64 // Observer distance from the hole, in rs
	EyeHeight        float64 // Observer eye height above the infall plane (display units)
}

// Snapshot is the read-only render state of one body.
// Scale is expressed in the body's local frame, whose +Z axis Orientation
// rotates onto the direction toward the hole.
type Snapshot struct {
	ID          bodies.BodyID `json:"id"`
	Position    mgl64.Vec3    `json:"position"`
	Scale       mgl64.Vec3    `json:"scale"`
	Orientation mgl64.Quat    `json:"orientation"`
	Opacity     float64       `json:"opacity"`
	Visible     bool          `json:"visible"`
}

// Matrix returns the model matrix translate · rotate · scale.
func (s Snapshot) Matrix() mgl64.Mat4 {
	t := mgl64.Translate3D(s.Position.X(), s.Position.Y(), s.Position.Z())
	sc := mgl64.Scale3D(s.Scale.X(), s.Scale.Y(), s.Scale.Z())
	return t.Mul4(s.Orientation.Mat4()).Mul4(sc)
}

// Horizon describes the event-horizon ring in display units.
type Horizon struct {
	Radius float64 `json:"radius"`
	Inner  float64 `json:"inner"`
	Outer  float64 `json:"outer"`
}

// Observer is the fixed viewpoint, looking at the hole.
type Observer struct {
	Position mgl64.Vec3 `json:"position"`
	LookAt   mgl64.Vec3 `json:"look_at"`
}

// Mapper maps bodies to snapshots for one hole.
type Mapper struct {
	rs  float64
	cfg Config
}

// NewMapper validates the configuration for a hole of radius rs.
func NewMapper(rs float64, cfg Config) (*Mapper, error) {
	if !(rs > 0) {
		return nil, fmt.Errorf("%w: schwarzschild radius must be positive, got %g", ErrInvalidConfig, rs)
	}
	if !(cfg.MetersToUnits > 0) {
		return nil, fmt.Errorf("%w: meters-to-units must be positive, got %g", ErrInvalidConfig, cfg.MetersToUnits)
	}
	switch cfg.Strategy {
	case StrategyLinear:
	case StrategyCompressed:
		if !(cfg.CompressionGain > 0) {
			return nil, fmt.Errorf("%w: compression gain must be positive, got %g", ErrInvalidConfig, cfg.CompressionGain)
		}
	default:
		return nil, fmt.Errorf("%w: unknown strategy %d", ErrInvalidConfig, cfg.Strategy)
	}
	if cfg.ObserverRadiusRs < 0 {
		return nil, fmt.Errorf("%w: observer radius must be non-negative, got %g", ErrInvalidConfig, cfg.ObserverRadiusRs)
	}
	return &Mapper{rs: rs, cfg: cfg}, nil
}

// Strategy returns the configured strategy.
func (m *Mapper) Strategy() Strategy {
	return m.cfg.Strategy
}

// Radius converts a physical radius (m) to a display distance.
func (m *Mapper) Radius(r float64) float64 {
	if m.cfg.Strategy == StrategyCompressed {
		rsUnits := m.rs * m.cfg.MetersToUnits
		return rsUnits * (1 + m.cfg.CompressionGain*math.Log(math.Max(1, r/m.rs)))
	}
	return r * m.cfg.MetersToUnits
}

// Map converts a body into its render snapshot. The body is taken by value;
// mapping never changes physics state.
func (m *Mapper) Map(b bodies.Body) Snapshot {
	inward := b.Direction.Mul(-1)
	s := math.Max(1, b.Stretch)
	side := 1 / math.Sqrt(s)

	return Snapshot{
		ID:          b.ID,
		Position:    b.Direction.Mul(m.Radius(b.R)),
		Scale:       mgl64.Vec3{side, side, s},
		Orientation: mgl64.QuatBetweenVectors(mgl64.Vec3{0, 0, 1}, inward),
		Opacity:     b.Opacity,
		Visible:     b.Alive && b.Opacity > 0,
	}
}

// MapAll maps every body in the arena into dst, reusing its capacity.
func (m *Mapper) MapAll(dst []Snapshot, arena []bodies.Body) []Snapshot {
	dst = dst[:0]
	for i := range arena {
		dst = append(dst, m.Map(arena[i]))
	}
	return dst
}

// Horizon returns the horizon ring, drawn 2% either side of rs.
func (m *Mapper) Horizon() Horizon {
	r := m.Radius(m.rs)
	return Horizon{Radius: r, Inner: r * 0.98, Outer: r * 1.02}
}

// Observer returns the viewpoint at ObserverRadiusRs along +Z.
func (m *Mapper) Observer() Observer {
	return Observer{
		Position: mgl64.Vec3{0, m.cfg.EyeHeight, m.Radius(m.cfg.ObserverRadiusRs * m.rs)},
	}
}
