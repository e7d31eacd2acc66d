// Package physics provides the Schwarzschild free-fall model: constants, the
// radial integrator with its two velocity laws, the tidal stretch model, and
// time-dilation helpers.
package physics

import (
	"errors"
	"fmt"
	"math"
)

// SI reference values.
const (
	// GravitationalConstant in m³ kg⁻¹ s⁻².
	GravitationalConstant = 6.67430e-11

	// SpeedOfLight in m/s.
	SpeedOfLight = 299792458.0

	// SolarMass in kg.
	SolarMass = 1.98847e30
)

// ErrInvalidConfig marks configuration values that would make the simulation
// meaningless (non-positive mass, size, step). Callers match it with errors.Is.
var ErrInvalidConfig = errors.New("invalid configuration")

// Constants holds the physical constants of one simulation. Set once at
// construction; never mutated.
type Constants struct {
	G  float64 // Gravitational constant
	C  float64 // Speed of light
	M  float64 // Black-hole mass (kg)
	Rs float64 // Schwarzschild radius (m)
}

// SchwarzschildRadius returns 2GM/c².
func SchwarzschildRadius(g, c, mass float64) (float64, error) {
	if !positive(mass) {
		return 0, fmt.Errorf("%w: black-hole mass must be positive, got %g", ErrInvalidConfig, mass)
	}
	if !positive(g) {
		return 0, fmt.Errorf("%w: gravitational constant must be positive, got %g", ErrInvalidConfig, g)
	}
	if !positive(c) {
		return 0, fmt.Errorf("%w: speed of light must be positive, got %g", ErrInvalidConfig, c)
	}
	return 2 * g * mass / (c * c), nil
}

// NewConstants derives the Schwarzschild radius for the given mass.
func NewConstants(g, c, mass float64) (Constants, error) {
	rs, err := SchwarzschildRadius(g, c, mass)
	if err != nil {
		return Constants{}, err
	}
	return Constants{G: g, C: c, M: mass, Rs: rs}, nil
}

// SolarMasses is a shorthand for NewConstants with SI G and c.
func SolarMasses(n float64) (Constants, error) {
	return NewConstants(GravitationalConstant, SpeedOfLight, n*SolarMass)
}

// positive reports whether v is finite and > 0.
func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}
