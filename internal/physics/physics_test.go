package physics

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/infall/internal/bodies"
)

func tenSolar(t *testing.T) Constants {
	t.Helper()
	k, err := SolarMasses(10)
	require.NoError(t, err)
	return k
}

func TestSchwarzschildRadiusTenSolarMasses(t *testing.T) {
	rs, err := SchwarzschildRadius(6.6743e-11, 2.99792458e8, 10*1.98847e30)
	require.NoError(t, err)
	assert.InEpsilon(t, 29540.0, rs, 0.01)
}

func TestSchwarzschildRadiusRejectsNonPositiveMass(t *testing.T) {
	for _, m := range []float64{0, -1, math.NaN()} {
		_, err := SchwarzschildRadius(GravitationalConstant, SpeedOfLight, m)
		assert.True(t, errors.Is(err, ErrInvalidConfig), "mass %g", m)
	}
	_, err := NewConstants(0, SpeedOfLight, SolarMass)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = NewConstants(GravitationalConstant, -3, SolarMass)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestProperVelocityBelowLightAndIncreasing(t *testing.T) {
	k := tenSolar(t)

	prev := 0.0
	// Walk inward from 1000 rs to just above rs.
	for x := 1000.0; x > 1.0000001; x = 1 + (x-1)*0.8 {
		v := math.Abs(ProperVelocity(k, x*k.Rs))
		assert.Less(t, v, k.C, "r = %g rs", x)
		assert.Greater(t, v, prev, "r = %g rs", x)
		prev = v
	}
}

func TestObserverVelocityVanishesAtHorizon(t *testing.T) {
	k := tenSolar(t)
	assert.InDelta(t, 0.0, ObserverVelocity(k, k.Rs), 1e-6)
	assert.Less(t, ObserverVelocity(k, 2*k.Rs), 0.0)
	assert.InDelta(t, -k.C/2, ObserverVelocity(k, 2*k.Rs), 1e-6)
}

func properIntegrator(t *testing.T, k Constants, eps float64) *Integrator {
	t.Helper()
	in, err := NewIntegrator(k, IntegratorConfig{
		Law:           LawProperTime,
		Epsilon:       eps,
		Floor:         1e-3,
		DilationFloor: 1e-6,
		MaxSubsteps:   16,
	})
	require.NoError(t, err)
	return in
}

func TestNewIntegratorValidation(t *testing.T) {
	k := tenSolar(t)
	bad := []IntegratorConfig{
		{Law: LawProperTime, Epsilon: 0, Floor: 1e-3},
		{Law: LawProperTime, Epsilon: -1, Floor: 1e-3},
		{Law: LawProperTime, Epsilon: 1.5, Floor: 1e-3},
		{Law: LawExternalObserver, FixedStep: 0, Floor: 1e-3},
		{Law: LawProperTime, Epsilon: 1e-3, Floor: 0},
		{Law: LawProperTime, Epsilon: 1e-3, Floor: 1e-3, DilationFloor: 1},
		{Law: VelocityLaw(9), Epsilon: 1e-3, Floor: 1e-3},
	}
	for i, cfg := range bad {
		_, err := NewIntegrator(k, cfg)
		assert.ErrorIs(t, err, ErrInvalidConfig, "case %d", i)
	}
}

func TestAdvanceProperTimeNominalStep(t *testing.T) {
	k := tenSolar(t)
	in := properIntegrator(t, k, 5e-4)

	b := bodies.Body{R: 4 * k.Rs, Stretch: 1, Alive: true}
	dt := in.Advance(&b, 0)

	// One adaptive step moves the body by exactly ε·r.
	assert.InEpsilon(t, 4*k.Rs*(1-5e-4), b.R, 1e-12)
	assert.Equal(t, dt, b.Tau)
	assert.Equal(t, uint64(1), b.Steps)
	assert.InEpsilon(t, 5e-4*4*k.Rs/math.Abs(ProperVelocity(k, 4*k.Rs)), dt, 1e-12)
}

func TestAdvanceStepShrinksTowardHorizon(t *testing.T) {
	k := tenSolar(t)
	in := properIntegrator(t, k, 5e-4)
	assert.Less(t, in.Step(1.01*k.Rs), in.Step(2*k.Rs))
	assert.Less(t, in.Step(2*k.Rs), in.Step(10*k.Rs))
}

func TestAdvanceClampsToFloor(t *testing.T) {
	k := tenSolar(t)
	in := properIntegrator(t, k, 0.5)

	b := bodies.Body{R: 1.0012 * k.Rs}
	in.Advance(&b, 0)
	assert.Equal(t, in.FloorRadius(), b.R)

	obs, err := NewIntegrator(k, IntegratorConfig{
		Law:       LawExternalObserver,
		FixedStep: 1, // far larger than rs/c
		Floor:     1e-3,
	})
	require.NoError(t, err)
	b = bodies.Body{R: 3 * k.Rs}
	obs.Advance(&b, 0)
	assert.Equal(t, obs.FloorRadius(), b.R)
}

func TestAdvanceExternalObserverDilatesProperTime(t *testing.T) {
	k := tenSolar(t)
	in, err := NewIntegrator(k, IntegratorConfig{
		Law:           LawExternalObserver,
		FixedStep:     1e-6,
		Floor:         1e-3,
		DilationFloor: 1e-6,
	})
	require.NoError(t, err)

	b := bodies.Body{R: 2 * k.Rs}
	dt := in.Advance(&b, 0)
	assert.Equal(t, 1e-6, dt)
	assert.InEpsilon(t, 1e-6*math.Sqrt(0.5), b.Tau, 1e-12)
	assert.Less(t, b.R, 2*k.Rs)
}

func TestAdvanceElapsedUsesSubsteps(t *testing.T) {
	k := tenSolar(t)
	in := properIntegrator(t, k, 5e-4)

	b := bodies.Body{R: 4 * k.Rs}
	want := 3.5 * in.Step(b.R)
	got := in.Advance(&b, want)
	assert.InEpsilon(t, want, got, 1e-9)
	assert.Equal(t, uint64(4), b.Steps)

	// The sub-step cap bounds the work done per call.
	b = bodies.Body{R: 4 * k.Rs}
	got = in.Advance(&b, 1e3)
	assert.Equal(t, uint64(16), b.Steps)
	assert.Less(t, got, 1e3)
}

func TestAdvanceEachRunsHookPerSubstep(t *testing.T) {
	k := tenSolar(t)
	in := properIntegrator(t, k, 5e-4)

	b := bodies.Body{R: 4 * k.Rs}
	var dts []float64
	got := in.AdvanceEach(&b, 3.5*in.Step(b.R), func(dt float64) bool {
		dts = append(dts, dt)
		return true
	})
	require.Len(t, dts, 4)
	sum := 0.0
	for _, dt := range dts {
		sum += dt
	}
	assert.InEpsilon(t, got, sum, 1e-12)

	// A false return ends the interval after that sub-step.
	b = bodies.Body{R: 4 * k.Rs}
	calls := 0
	in.AdvanceEach(&b, 1e3, func(float64) bool {
		calls++
		return calls < 2
	})
	assert.Equal(t, 2, calls)
	assert.Equal(t, uint64(2), b.Steps)

	// A nominal step runs the hook once.
	b = bodies.Body{R: 4 * k.Rs}
	calls = 0
	in.AdvanceEach(&b, 0, func(float64) bool { calls++; return true })
	assert.Equal(t, 1, calls)
}

func TestAdvancePanicsOnInvalidRadius(t *testing.T) {
	k := tenSolar(t)
	in := properIntegrator(t, k, 5e-4)
	for _, r := range []float64{0, -5, math.NaN(), math.Inf(1)} {
		b := bodies.Body{R: r}
		assert.Panics(t, func() { in.Advance(&b, 0) }, "r = %g", r)
	}
}

func TestVelocityLawText(t *testing.T) {
	var l VelocityLaw
	require.NoError(t, l.UnmarshalText([]byte("external-observer")))
	assert.Equal(t, LawExternalObserver, l)
	require.NoError(t, l.UnmarshalText([]byte(" Proper-Time ")))
	assert.Equal(t, LawProperTime, l)
	assert.ErrorIs(t, l.UnmarshalText([]byte("newtonian")), ErrInvalidConfig)

	text, err := LawExternalObserver.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "external-observer", string(text))
}

func TestTidalAcceleration(t *testing.T) {
	k := tenSolar(t)
	m, err := NewTidalModel(k, TidalConfig{Growth: 1e-3})
	require.NoError(t, err)

	r := 4 * k.Rs
	want := 2 * k.G * k.M / (r * r * r) * 10
	assert.InEpsilon(t, want, m.Acceleration(r, 10), 1e-12)
	assert.InEpsilon(t, 8.0, m.Acceleration(r/2, 10)/m.Acceleration(r, 10), 1e-12)
}

func TestMaxStretchMonotoneAndClampHoldsHorizon(t *testing.T) {
	k := tenSolar(t)
	m, err := NewTidalModel(k, TidalConfig{Growth: 1e9})
	require.NoError(t, err)

	const tol = 1e-9
	for _, size := range []float64{0.5, 1, 10, 100, 1000} {
		prevMax := 0.0
		for x := 1.0 + size/(2*k.Rs); x < 20; x *= 1.05 {
			r := x * k.Rs
			mx := m.MaxStretch(r, size)
			assert.GreaterOrEqual(t, mx, prevMax, "size %g r %g rs", size, x)
			prevMax = mx

			b := bodies.Body{R: r, Size: size, Stretch: 1}
			m.Apply(&b, 1)
			assert.GreaterOrEqual(t, b.NearestFace(), k.Rs-tol*k.Rs, "size %g r %g rs", size, x)
			assert.GreaterOrEqual(t, b.Stretch, 1.0)
		}
	}
}

func TestTidalApplyPolicies(t *testing.T) {
	k := tenSolar(t)
	r := 3 * k.Rs

	always, err := NewTidalModel(k, TidalConfig{Growth: 1e-5})
	require.NoError(t, err)
	b := bodies.Body{R: r, Size: 10, Stretch: 1}
	res := always.Apply(&b, 1e-4)
	assert.Greater(t, res.Stretch, 1.0)
	assert.False(t, res.Crossed)
	assert.False(t, res.Destroyed)

	gated, err := NewTidalModel(k, TidalConfig{Growth: 1e-5, ActivationRadius: 2 * k.Rs})
	require.NoError(t, err)
	b = bodies.Body{R: r, Size: 10, Stretch: 1}
	res = gated.Apply(&b, 1e-4)
	assert.Equal(t, 1.0, res.Stretch, "no growth above the activation radius")
	b.R = 1.5 * k.Rs
	res = gated.Apply(&b, 1e-4)
	assert.Greater(t, res.Stretch, 1.0)

	capped, err := NewTidalModel(k, TidalConfig{Growth: 1, DespawnStretch: 5})
	require.NoError(t, err)
	b = bodies.Body{R: r, Size: 10, Stretch: 1}
	res = capped.Apply(&b, 1)
	assert.True(t, res.Destroyed)
	assert.Equal(t, 5.0, res.Stretch)
}

func TestTidalApplyReportsCrossing(t *testing.T) {
	k := tenSolar(t)
	m, err := NewTidalModel(k, TidalConfig{Growth: 0})
	require.NoError(t, err)

	// Stretch 10 fit at the previous radius but not at this one.
	b := bodies.Body{R: k.Rs + 40, Size: 10, Stretch: 10}
	res := m.Apply(&b, 1)
	assert.True(t, res.Crossed)
	assert.InDelta(t, 8.0, res.Stretch, 1e-9)
	assert.InDelta(t, k.Rs, b.NearestFace(), 1e-9)
}

func TestNewTidalModelValidation(t *testing.T) {
	k := tenSolar(t)
	for _, cfg := range []TidalConfig{
		{Growth: -1},
		{Growth: math.NaN()},
		{Growth: 1, ActivationRadius: -1},
		{Growth: 1, DespawnStretch: 0.5},
	} {
		_, err := NewTidalModel(k, cfg)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	}
}

func TestOpacityFromDilation(t *testing.T) {
	k := tenSolar(t)
	const floor = 1e-6

	o := Opacity(k.Rs, 1.5*k.Rs, floor)
	assert.Greater(t, o, 0.0)
	assert.Less(t, o, math.Sqrt(1-1/1.5))

	prev := o
	for x := 1.4; x > 1.00001; x = 1 + (x-1)/2 {
		cur := Opacity(k.Rs, x*k.Rs, floor)
		assert.Less(t, cur, prev)
		prev = cur
	}
	assert.InDelta(t, 0.0, Opacity(k.Rs, k.Rs, floor), 1e-12)
	assert.InDelta(t, 1.0, Opacity(k.Rs, 1e12*k.Rs, floor), 1e-3)
	assert.InDelta(t, math.Sqrt(floor), DilationFactor(k.Rs, k.Rs, floor), 1e-15)
}
