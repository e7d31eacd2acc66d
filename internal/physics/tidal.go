package physics

import (
	"fmt"
	"math"

	"github.com/talgya/infall/internal/bodies"
)

// TidalConfig holds the stretch accumulation policy.
// Growth has no physical derivation; it is a visual tuning knob.
type TidalConfig struct {
	Growth           float64 // Stretch gained per unit of tidal acceleration per second
	ActivationRadius float64 // Stretch only accumulates below this radius (m); 0 = always
	DespawnStretch   float64 // Stretch at which a body counts as destroyed; 0 = never
}

// TidalModel accumulates and clamps the stretch factor of a body.
type TidalModel struct {
	k   Constants
	cfg TidalConfig
}

// TidalResult reports what happened to a body in one tidal update.
type TidalResult struct {
	Stretch   float64 // Applied stretch
	Crossed   bool    // The previous stretch no longer fits above the horizon
	Destroyed bool    // Stretch reached the despawn ceiling
}

// NewTidalModel validates the configuration and returns a tidal model.
func NewTidalModel(k Constants, cfg TidalConfig) (*TidalModel, error) {
	if cfg.Growth < 0 || math.IsNaN(cfg.Growth) || math.IsInf(cfg.Growth, 0) {
		return nil, fmt.Errorf("%w: tidal growth must be non-negative, got %g", ErrInvalidConfig, cfg.Growth)
	}
	if cfg.ActivationRadius < 0 {
		return nil, fmt.Errorf("%w: activation radius must be non-negative, got %g", ErrInvalidConfig, cfg.ActivationRadius)
	}
	if cfg.DespawnStretch != 0 && cfg.DespawnStretch <= 1 {
		return nil, fmt.Errorf("%w: despawn stretch must exceed 1, got %g", ErrInvalidConfig, cfg.DespawnStretch)
	}
	return &TidalModel{k: k, cfg: cfg}, nil
}

// Acceleration returns 2GM/r³ · size, the leading-order differential pull
// across a body of the given extent.
func (m *TidalModel) Acceleration(r, size float64) float64 {
	return 2 * m.k.G * m.k.M / (r * r * r) * size
}

// MaxStretch returns max(1, 2(r - rs)/size): the largest stretch for which
// the nearest face r - stretch·size/2 stays at or above rs.
func (m *TidalModel) MaxStretch(r, size float64) float64 {
	return math.Max(1, 2*(r-m.k.Rs)/size)
}

// Active reports whether stretch accumulates at r.
func (m *TidalModel) Active(r float64) bool {
	return m.cfg.ActivationRadius == 0 || r < m.cfg.ActivationRadius
}

// Apply grows the body's stretch over dt seconds and clamps it to the
// geometric maximum and the despawn ceiling.
func (m *TidalModel) Apply(b *bodies.Body, dt float64) TidalResult {
	prev := b.Stretch
	next := prev
	if m.Active(b.R) && dt > 0 {
		next += m.Acceleration(b.R, b.Size) * m.cfg.Growth * dt
	}

	next = math.Min(next, m.MaxStretch(b.R, b.Size))
	if m.cfg.DespawnStretch > 0 {
		next = math.Min(next, m.cfg.DespawnStretch)
	}
	b.Stretch = math.Max(1, next)

	return TidalResult{
		Stretch:   b.Stretch,
		Crossed:   b.R-prev*b.Size/2 < m.k.Rs,
		Destroyed: m.cfg.DespawnStretch > 0 && b.Stretch >= m.cfg.DespawnStretch,
	}
}
