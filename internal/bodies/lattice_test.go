package bodies

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLatticeConfig() LatticeConfig {
	return LatticeConfig{
		BodySize:     300,
		Subdivisions: 3,
		StartRadius:  1.2e5,
	}
}

func TestNewLatticeRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*LatticeConfig)
	}{
		{"zero size", func(c *LatticeConfig) { c.BodySize = 0 }},
		{"negative size", func(c *LatticeConfig) { c.BodySize = -1 }},
		{"nan size", func(c *LatticeConfig) { c.BodySize = math.NaN() }},
		{"no subdivisions", func(c *LatticeConfig) { c.Subdivisions = 0 }},
		{"zero start", func(c *LatticeConfig) { c.StartRadius = 0 }},
		{"jitter too large", func(c *LatticeConfig) { c.Jitter = 0.9 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testLatticeConfig()
			tt.mod(&cfg)
			_, err := NewLattice(cfg)
			assert.Error(t, err)
		})
	}
}

func TestLatticeGrid(t *testing.T) {
	l, err := NewLattice(testLatticeConfig())
	require.NoError(t, err)

	assert.Equal(t, 27, l.Len())
	assert.InDelta(t, 100.0, l.ElementSize(), 1e-12)

	// Centers sit at -100, 0, 100 on each axis.
	assert.InDelta(t, -100.0, l.Offset(0).X(), 1e-9)
	assert.InDelta(t, 100.0, l.Offset(26).Z(), 1e-9)
	assert.InDelta(t, 0.0, l.Offset(13).Len(), 1e-9, "middle element is the object center")

	var sum mgl64.Vec3
	for i := 0; i < l.Len(); i++ {
		sum = sum.Add(l.Offset(i))
	}
	assert.InDelta(t, 0.0, sum.Len(), 1e-9, "grid is symmetric about the center")
}

func TestLatticeSingleElement(t *testing.T) {
	cfg := testLatticeConfig()
	cfg.Subdivisions = 1
	l, err := NewLattice(cfg)
	require.NoError(t, err)

	require.Equal(t, 1, l.Len())
	assert.Equal(t, mgl64.Vec3{}, l.Offset(0))
	assert.Equal(t, cfg.StartRadius, l.StartRadius(0))
}

func TestLatticeStartRadiusStaggered(t *testing.T) {
	cfg := testLatticeConfig()
	l, err := NewLattice(cfg)
	require.NoError(t, err)

	for i := 0; i < l.Len(); i++ {
		want := cfg.StartRadius + l.Offset(i).Len()
		assert.Equal(t, want, l.StartRadius(i))
	}
}

func TestPopulateAndReset(t *testing.T) {
	l, err := NewLattice(testLatticeConfig())
	require.NoError(t, err)

	arena := l.Populate()
	require.Len(t, arena, l.Len())

	for i := range arena {
		b := &arena[i]
		assert.Equal(t, BodyID(i), b.ID)
		assert.True(t, b.Alive)
		assert.Equal(t, 1.0, b.Stretch)
		assert.InDelta(t, 1.0, b.Direction.Len(), 1e-12)
		assert.Greater(t, b.Direction.Z(), 0.99, "elements fall along the +Z axis")
	}

	fresh := arena[5]
	b := &arena[5]
	b.R = 42
	b.Tau = 3
	b.Stretch = 7
	b.Kill(CauseCrossed, 99)

	l.Reset(b)
	assert.Equal(t, fresh, *b)
}

func TestLatticeJitterDeterministic(t *testing.T) {
	cfg := testLatticeConfig()
	cfg.Jitter = 0.25
	cfg.Seed = 7

	a, err := NewLattice(cfg)
	require.NoError(t, err)
	b, err := NewLattice(cfg)
	require.NoError(t, err)

	regular, err := NewLattice(testLatticeConfig())
	require.NoError(t, err)

	moved := 0
	for i := 0; i < a.Len(); i++ {
		assert.Equal(t, a.Offset(i), b.Offset(i))
		d := a.Offset(i).Sub(regular.Offset(i)).Len()
		assert.LessOrEqual(t, d, math.Sqrt(3)*0.25*a.ElementSize()+1e-9)
		if d > 0 {
			moved++
		}
	}
	assert.Positive(t, moved)
}

func TestCauseString(t *testing.T) {
	assert.Equal(t, "absorbed", CauseAbsorbed.String())
	assert.Equal(t, "crossed", CauseCrossed.String())
	assert.Equal(t, "faded", CauseFaded.String())
	assert.Equal(t, "destroyed", CauseDestroyed.String())
	assert.Equal(t, "none", CauseNone.String())
}

func TestNearestFace(t *testing.T) {
	b := Body{R: 1000, Size: 10, Stretch: 4}
	assert.Equal(t, 980.0, b.NearestFace())
	b.Direction = mgl64.Vec3{0, 0, 1}
	assert.Equal(t, mgl64.Vec3{0, 0, 1000}, b.Position())
}
