package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/infall/internal/physics"
	"github.com/talgya/infall/internal/render"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	k, err := cfg.Constants()
	require.NoError(t, err)
	assert.InEpsilon(t, 29540.0, k.Rs, 0.01)

	lat := cfg.Lattice(k.Rs)
	assert.Equal(t, 4*k.Rs, lat.StartRadius)
	assert.Equal(t, 3, lat.Subdivisions)
	assert.Equal(t, time.Second/60, cfg.FrameInterval())
}

func TestLoadStringOverridesDefaults(t *testing.T) {
	cfg, err := LoadString(`
[physics]
mass-solar = 4e6

[integrator]
law = external-observer
fixed-step = 0.01

[tidal]
activation-radius-rs = 2.5
despawn-stretch = 40

[lifecycle]
cooldown = 1500ms

[render]
strategy = compressed
compression-gain = 3

[server]
port = 9090
`)
	require.NoError(t, err)

	assert.Equal(t, 4e6, cfg.Physics.MassSolar)
	assert.Equal(t, physics.LawExternalObserver, cfg.Integrator.Law)
	assert.Equal(t, 0.01, cfg.Integrator.FixedStep)
	assert.Equal(t, 1500*time.Millisecond, cfg.Lifecycle.Cooldown.Duration)
	assert.Equal(t, render.StrategyCompressed, cfg.Render.Strategy)
	assert.Equal(t, 9090, cfg.Server.Port)

	// Untouched values keep their defaults.
	assert.Equal(t, 300.0, cfg.Body.Size)
	assert.Equal(t, 5e-4, cfg.Integrator.Epsilon)

	k, err := cfg.Constants()
	require.NoError(t, err)
	tidal := cfg.TidalParams(k.Rs)
	assert.InEpsilon(t, 2.5*k.Rs, tidal.ActivationRadius, 1e-12)
	assert.Equal(t, 40.0, tidal.DespawnStretch)
	assert.Equal(t, 1e-6, cfg.IntegratorParams().DilationFloor)
}

func TestLoadStringRejectsBadValues(t *testing.T) {
	for name, text := range map[string]string{
		"mass":       "[physics]\nmass-solar = 0",
		"law":        "[integrator]\nlaw = newtonian",
		"epsilon":    "[integrator]\nepsilon = 1.5",
		"floor":      "[integrator]\nfloor = 0",
		"start":      "[body]\nstart-radius-rs = 1",
		"subdivide":  "[body]\nsubdivisions = 0",
		"despawn":    "[tidal]\ndespawn-stretch = 1",
		"cutoff":     "[lifecycle]\nvisibility-cutoff = 1",
		"dilation":   "[lifecycle]\ndilation-floor = 0",
		"cooldown":   "[lifecycle]\ncooldown = soon",
		"strategy":   "[render]\nstrategy = cubic",
		"refresh":    "[server]\nrefresh-hz = 0",
		"unknownKey": "[body]\ncolour = red",
	} {
		_, err := LoadString(text)
		assert.Error(t, err, name)
	}

	_, err := LoadString("[integrator]\nepsilon = 2")
	assert.ErrorIs(t, err, physics.ErrInvalidConfig)

	// Step settings are checked whichever law is active.
	_, err = LoadString("[integrator]\nlaw = observer\nepsilon = 0")
	assert.ErrorIs(t, err, physics.ErrInvalidConfig)
	_, err = LoadString("[integrator]\nlaw = proper-time\nfixed-step = -1")
	assert.ErrorIs(t, err, physics.ErrInvalidConfig)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "infall.conf")
	require.NoError(t, os.WriteFile(path, []byte("[body]\nsubdivisions = 5\nseed = 7\n"), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Body.Subdivisions)
	assert.Equal(t, int64(7), cfg.Body.Seed)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.conf"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"INFALL_PORT":      "7000",
		"INFALL_DB":        "/tmp/x.db",
		"INFALL_ADMIN_KEY": "secret",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(lookup))
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "/tmp/x.db", cfg.Server.DBPath)
	assert.Equal(t, "secret", cfg.Server.AdminKey)
	assert.Equal(t, "", cfg.Server.RelayKey)

	env["INFALL_PORT"] = "http"
	assert.ErrorIs(t, cfg.ApplyEnv(lookup), physics.ErrInvalidConfig)
}

func TestDurationText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("2.5")))
	assert.Equal(t, 2500*time.Millisecond, d.Duration)
	require.NoError(t, d.UnmarshalText([]byte("1m")))
	assert.Equal(t, time.Minute, d.Duration)

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m0s", string(text))
}
