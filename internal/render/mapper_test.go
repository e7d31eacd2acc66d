package render

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/infall/internal/bodies"
)

const testRs = 29535.0

func linearMapper(t *testing.T) *Mapper {
	t.Helper()
	m, err := NewMapper(testRs, Config{
		Strategy:         StrategyLinear,
		MetersToUnits:    1e-3,
		ObserverRadiusRs: 50,
		EyeHeight:        1.6,
	})
	require.NoError(t, err)
	return m
}

func compressedMapper(t *testing.T) *Mapper {
	t.Helper()
	m, err := NewMapper(testRs, Config{
		Strategy:        StrategyCompressed,
		MetersToUnits:   1e-3,
		CompressionGain: 2,
	})
	require.NoError(t, err)
	return m
}

func fallingBody(r, stretch float64) bodies.Body {
	return bodies.Body{
		ID:        3,
		Direction: mgl64.Vec3{0.6, 0, 0.8},
		Size:      100,
		R:         r,
		Stretch:   stretch,
		Opacity:   0.4,
		Alive:     true,
	}
}

func TestNewMapperValidation(t *testing.T) {
	_, err := NewMapper(0, Config{MetersToUnits: 1})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = NewMapper(testRs, Config{MetersToUnits: 0})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = NewMapper(testRs, Config{Strategy: StrategyCompressed, MetersToUnits: 1})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = NewMapper(testRs, Config{Strategy: Strategy(7), MetersToUnits: 1})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLinearPosition(t *testing.T) {
	m := linearMapper(t)
	b := fallingBody(4*testRs, 1)

	s := m.Map(b)
	want := b.Direction.Mul(4 * testRs * 1e-3)
	assert.Less(t, s.Position.Sub(want).Len(), 1e-9, "got %v want %v", s.Position, want)
}

func TestCompressedRadius(t *testing.T) {
	m := compressedMapper(t)
	rsUnits := testRs * 1e-3

	assert.InDelta(t, rsUnits, m.Radius(testRs), 1e-12)
	assert.InDelta(t, rsUnits*(1+2*math.Log(4)), m.Radius(4*testRs), 1e-9)
	assert.InDelta(t, rsUnits, m.Radius(0.5*testRs), 1e-12, "never maps inside the horizon")

	prev := 0.0
	for x := 1.0; x < 100; x *= 1.3 {
		d := m.Radius(x * testRs)
		assert.Greater(t, d, prev)
		prev = d
	}
}

func TestScaleVolumePreserving(t *testing.T) {
	m := linearMapper(t)
	for _, stretch := range []float64{1, 2, 9, 400} {
		s := m.Map(fallingBody(2*testRs, stretch))
		assert.InDelta(t, stretch, s.Scale.Z(), 1e-12)
		assert.InDelta(t, 1/math.Sqrt(stretch), s.Scale.X(), 1e-12)
		assert.InDelta(t, s.Scale.X(), s.Scale.Y(), 1e-15)
		assert.InDelta(t, 1.0, s.Scale.X()*s.Scale.Y()*s.Scale.Z(), 1e-9)
	}
}

func TestOrientationPointsAtHole(t *testing.T) {
	m := linearMapper(t)

	for _, dir := range []mgl64.Vec3{
		{0.6, 0, 0.8},
		{0, 0, 1},
		{0, 0, -1},
		{0, 1, 0},
	} {
		b := fallingBody(3*testRs, 2)
		b.Direction = dir
		s := m.Map(b)

		radial := s.Orientation.Rotate(mgl64.Vec3{0, 0, 1})
		assert.Less(t, radial.Sub(dir.Mul(-1)).Len(), 1e-9, "dir %v radial %v", dir, radial)
	}
}

func TestMapDoesNotMutate(t *testing.T) {
	m := compressedMapper(t)
	arena := []bodies.Body{fallingBody(2*testRs, 3), fallingBody(1.5*testRs, 5)}
	before := append([]bodies.Body(nil), arena...)

	snaps := m.MapAll(nil, arena)
	require.Len(t, snaps, 2)
	assert.Equal(t, before, arena)

	// Reuse keeps capacity and overwrites.
	again := m.MapAll(snaps, arena[:1])
	assert.Len(t, again, 1)
}

func TestVisibilityAndOpacity(t *testing.T) {
	m := linearMapper(t)

	b := fallingBody(2*testRs, 1)
	s := m.Map(b)
	assert.True(t, s.Visible)
	assert.Equal(t, 0.4, s.Opacity)

	b.Kill(bodies.CauseFaded, 10)
	s = m.Map(b)
	assert.False(t, s.Visible)
	assert.Equal(t, 0.0, s.Opacity)
}

func TestMatrixPlacesOrigin(t *testing.T) {
	m := linearMapper(t)
	s := m.Map(fallingBody(2*testRs, 4))

	origin := s.Matrix().Mul4x1(mgl64.Vec4{0, 0, 0, 1}).Vec3()
	assert.Less(t, origin.Sub(s.Position).Len(), 1e-9)

	// The local +Z tip lands stretch units toward the hole.
	tip := s.Matrix().Mul4x1(mgl64.Vec4{0, 0, 1, 1}).Vec3()
	assert.InDelta(t, 4.0, tip.Sub(s.Position).Len(), 1e-9)
	assert.Less(t, tip.Len(), s.Position.Len())
}

func TestHorizonAndObserver(t *testing.T) {
	m := linearMapper(t)
	h := m.Horizon()
	assert.InDelta(t, testRs*1e-3, h.Radius, 1e-12)
	assert.InDelta(t, h.Radius*0.98, h.Inner, 1e-12)
	assert.InDelta(t, h.Radius*1.02, h.Outer, 1e-12)

	o := m.Observer()
	assert.InDelta(t, 50*testRs*1e-3, o.Position.Z(), 1e-9)
	assert.Equal(t, 1.6, o.Position.Y())
	assert.Equal(t, mgl64.Vec3{}, o.LookAt)
}

func TestStrategyText(t *testing.T) {
	var s Strategy
	require.NoError(t, s.UnmarshalText([]byte("compressed")))
	assert.Equal(t, StrategyCompressed, s)
	assert.ErrorIs(t, s.UnmarshalText([]byte("cubic")), ErrInvalidConfig)
	assert.Equal(t, "linear", StrategyLinear.String())
}
