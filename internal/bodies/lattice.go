// Lattice construction: subdivides one falling object into a regular 3D grid
// of elements, each simulated as an independent body.

package bodies

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	opensimplex "github.com/ojrac/opensimplex-go"
	"gonum.org/v1/gonum/floats"
)

// LatticeConfig controls how the object is subdivided and where it starts.
type LatticeConfig struct {
	BodySize     float64    // Edge length of the whole object (m)
	Subdivisions int        // Elements per axis; the lattice holds Subdivisions³ bodies
	StartRadius  float64    // Radius of the object center at reset (m)
	Axis         mgl64.Vec3 // Direction from the hole toward the object center
	Jitter       float64    // Offset noise amplitude as a fraction of element size (0 = regular grid)
	Seed         int64      // Noise seed for Jitter
}

// Lattice holds the immutable per-element offsets and radial directions.
type Lattice struct {
	cfg         LatticeConfig
	elementSize float64
	offsets     []mgl64.Vec3
	directions  []mgl64.Vec3
}

// NewLattice builds the element grid. Offsets and directions never change
// afterwards, so every reset places the bodies identically.
func NewLattice(cfg LatticeConfig) (*Lattice, error) {
	if cfg.BodySize <= 0 || math.IsNaN(cfg.BodySize) || math.IsInf(cfg.BodySize, 0) {
		return nil, fmt.Errorf("body size must be positive, got %g", cfg.BodySize)
	}
	if cfg.Subdivisions < 1 {
		return nil, fmt.Errorf("subdivisions must be at least 1, got %d", cfg.Subdivisions)
	}
	if cfg.StartRadius <= 0 {
		return nil, fmt.Errorf("start radius must be positive, got %g", cfg.StartRadius)
	}
	if cfg.Jitter < 0 || cfg.Jitter > 0.5 {
		return nil, fmt.Errorf("jitter must be in [0, 0.5], got %g", cfg.Jitter)
	}

	axis := cfg.Axis
	if axis.Len() == 0 {
		axis = mgl64.Vec3{0, 0, 1}
	}
	cfg.Axis = axis.Normalize()

	n := cfg.Subdivisions
	elem := cfg.BodySize / float64(n)
	centers := axisCenters(cfg.BodySize, n)

	l := &Lattice{
		cfg:         cfg,
		elementSize: elem,
		offsets:     make([]mgl64.Vec3, 0, n*n*n),
		directions:  make([]mgl64.Vec3, 0, n*n*n),
	}

	// Three noise fields, one per axis, so jitter components are independent.
	var noise [3]opensimplex.Noise
	if cfg.Jitter > 0 {
		for k := range noise {
			noise[k] = opensimplex.New(cfg.Seed + int64(k))
		}
	}

	for ix := 0; ix < n; ix++ {
		for iy := 0; iy < n; iy++ {
			for iz := 0; iz < n; iz++ {
				off := mgl64.Vec3{centers[ix], centers[iy], centers[iz]}
				if cfg.Jitter > 0 {
					off = off.Add(jitterAt(noise, ix, iy, iz).Mul(cfg.Jitter * elem))
				}
				l.offsets = append(l.offsets, off)
				l.directions = append(l.directions, cfg.Axis.Mul(cfg.StartRadius).Add(off).Normalize())
			}
		}
	}

	return l, nil
}

// axisCenters returns the element centers along one axis, symmetric about 0.
func axisCenters(size float64, n int) []float64 {
	if n == 1 {
		return []float64{0}
	}
	half := size / 2
	inset := size / float64(2*n)
	return floats.Span(make([]float64, n), -half+inset, half-inset)
}

// jitterAt samples the noise fields at a lattice index. Values are in [-1, 1].
func jitterAt(noise [3]opensimplex.Noise, ix, iy, iz int) mgl64.Vec3 {
	const freq = 0.73
	x, y, z := float64(ix)*freq, float64(iy)*freq, float64(iz)*freq
	return mgl64.Vec3{
		noise[0].Eval3(x, y, z),
		noise[1].Eval3(x, y, z),
		noise[2].Eval3(x, y, z),
	}
}

// Len returns the number of elements.
func (l *Lattice) Len() int {
	return len(l.offsets)
}

// ElementSize returns the edge length of one element (m).
func (l *Lattice) ElementSize() float64 {
	return l.elementSize
}

// Offset returns the fixed offset of element i.
func (l *Lattice) Offset(i int) mgl64.Vec3 {
	return l.offsets[i]
}

// StartRadius returns the reset radius of element i: the configured start
// radius staggered by the magnitude of the element's offset.
func (l *Lattice) StartRadius(i int) float64 {
	return l.cfg.StartRadius + l.offsets[i].Len()
}

// Populate creates a fresh body arena in the reset state.
func (l *Lattice) Populate() []Body {
	arena := make([]Body, len(l.offsets))
	for i := range arena {
		arena[i] = Body{
			ID:        BodyID(i),
			Offset:    l.offsets[i],
			Direction: l.directions[i],
			Size:      l.elementSize,
		}
		l.Reset(&arena[i])
	}
	return arena
}

// Reset reinitializes the physical and lifecycle fields of a body from its
// fixed lattice slot. The result depends only on the body's ID.
func (l *Lattice) Reset(b *Body) {
	i := int(b.ID)
	b.Offset = l.offsets[i]
	b.Direction = l.directions[i]
	b.Size = l.elementSize
	b.R = l.StartRadius(i)
	b.Tau = 0
	b.Stretch = 1
	b.Opacity = 1
	b.Alive = true
	b.Cause = CauseNone
	b.DiedTick = 0
	b.Steps = 0
}
