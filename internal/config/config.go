// Package config loads simulation settings from an INI-style file, applies
// environment overrides, and validates everything once before the engine is
// built.
package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"gopkg.in/gcfg.v1"

	"github.com/talgya/infall/internal/bodies"
	"github.com/talgya/infall/internal/physics"
	"github.com/talgya/infall/internal/render"
)

// Config is the full configuration surface, one struct per file section.
type Config struct {
	Physics    PhysicsConfig
	Body       BodyConfig
	Integrator IntegratorConfig
	Tidal      TidalConfig
	Lifecycle  LifecycleConfig
	Render     RenderConfig
	Server     ServerConfig
}

// PhysicsConfig is the [physics] section.
type PhysicsConfig struct {
	GravitationalConstant float64 `gcfg:"gravitational-constant"`
	SpeedOfLight          float64 `gcfg:"speed-of-light"`
	MassSolar             float64 `gcfg:"mass-solar"`
}

// BodyConfig is the [body] section.
type BodyConfig struct {
	Size          float64 `gcfg:"size"`            // Edge length of the whole object (m)
	Subdivisions  int     `gcfg:"subdivisions"`    // Lattice elements per axis
	StartRadiusRs float64 `gcfg:"start-radius-rs"` // Start radius of the object center, in rs
	Jitter        float64 `gcfg:"jitter"`          // Lattice noise, fraction of element size
	Seed          int64   `gcfg:"seed"`
}

// IntegratorConfig is the [integrator] section.
type IntegratorConfig struct {
	Law         physics.VelocityLaw `gcfg:"law"`
	Epsilon     float64             `gcfg:"epsilon"`
	FixedStep   float64             `gcfg:"fixed-step"`   // Coordinate step for the external-observer law (s)
	Floor       float64             `gcfg:"floor"`        // Horizon floor as a fraction of rs
	TimeScale   float64             `gcfg:"time-scale"`   // Simulated seconds per wall second; 0 = one nominal step per frame
	MaxSubsteps int                 `gcfg:"max-substeps"` // Cap on sub-steps per frame when time-scale > 0
}

// TidalConfig is the [tidal] section.
type TidalConfig struct {
	Growth             float64 `gcfg:"growth"`
	ActivationRadiusRs float64 `gcfg:"activation-radius-rs"` // 0 = stretch everywhere
	DespawnStretch     float64 `gcfg:"despawn-stretch"`      // 0 = no ceiling
}

// LifecycleConfig is the [lifecycle] section.
type LifecycleConfig struct {
	VisibilityCutoff float64  `gcfg:"visibility-cutoff"` // Dilation factor below which a body fades out
	DilationFloor    float64  `gcfg:"dilation-floor"`
	Cooldown         Duration `gcfg:"cooldown"`
}

// RenderConfig is the [render] section.
type RenderConfig struct {
	Strategy         render.Strategy `gcfg:"strategy"`
	MetersToUnits    float64         `gcfg:"meters-to-units"`
	CompressionGain  float64         `gcfg:"compression-gain"`
	ObserverRadiusRs float64         `gcfg:"observer-radius-rs"`
	EyeHeight        float64         `gcfg:"eye-height"`
}

// ServerConfig is the [server] section.
type ServerConfig struct {
	Port      int     `gcfg:"port"`
	DBPath    string  `gcfg:"db-path"`
	RefreshHz float64 `gcfg:"refresh-hz"`
	AdminKey  string  `gcfg:"admin-key"`
	RelayKey  string  `gcfg:"relay-key"`
}

// Duration is a time.Duration that parses from strings like "3s".
type Duration struct {
	time.Duration
}

// UnmarshalText parses a Go duration string. A bare number is seconds.
func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		d.Duration = time.Duration(secs * float64(time.Second))
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("%w: bad duration %q", physics.ErrInvalidConfig, s)
	}
	d.Duration = v
	return nil
}

// MarshalText returns the duration in Go syntax.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration used when no file is given: a ten solar
// mass hole and a 300 m object split into 27 elements, falling from 4 rs.
func Default() Config {
	return Config{
		Physics: PhysicsConfig{
			GravitationalConstant: physics.GravitationalConstant,
			SpeedOfLight:          physics.SpeedOfLight,
			MassSolar:             10,
		},
		Body: BodyConfig{
			Size:          300,
			Subdivisions:  3,
			StartRadiusRs: 4,
			Seed:          42,
		},
		Integrator: IntegratorConfig{
			Law:         physics.LawProperTime,
			Epsilon:     5e-4,
			FixedStep:   2e-6,
			Floor:       1e-3,
			MaxSubsteps: 64,
		},
		Tidal: TidalConfig{
			Growth: 2e-5,
		},
		Lifecycle: LifecycleConfig{
			VisibilityCutoff: 0.05,
			DilationFloor:    1e-6,
			Cooldown:         Duration{3 * time.Second},
		},
		Render: RenderConfig{
			Strategy:         render.StrategyLinear,
			MetersToUnits:    1e-3,
			CompressionGain:  1,
			ObserverRadiusRs: 50,
			EyeHeight:        1.6,
		},
		Server: ServerConfig{
			Port:      8080,
			DBPath:    "data/infall.db",
			RefreshHz: 60,
		},
	}
}

// LoadFile reads path on top of the defaults and validates the result.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if err := gcfg.ReadFileInto(&cfg, path); err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// LoadString parses configuration text on top of the defaults.
func LoadString(text string) (Config, error) {
	cfg := Default()
	if err := gcfg.ReadStringInto(&cfg, text); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides server settings from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("INFALL_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: INFALL_PORT %q is not a number", physics.ErrInvalidConfig, v)
		}
		c.Server.Port = port
	}
	if v, ok := lookup("INFALL_DB"); ok && v != "" {
		c.Server.DBPath = v
	}
	if v, ok := lookup("INFALL_ADMIN_KEY"); ok {
		c.Server.AdminKey = v
	}
	if v, ok := lookup("INFALL_RELAY_KEY"); ok {
		c.Server.RelayKey = v
	}
	return nil
}

// Validate checks every option. Errors wrap physics.ErrInvalidConfig.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: "+format, append([]any{physics.ErrInvalidConfig}, args...)...)
	}

	if _, err := c.Constants(); err != nil {
		return err
	}

	if !finitePositive(c.Body.Size) {
		return invalid("body size must be positive, got %g", c.Body.Size)
	}
	if c.Body.Subdivisions < 1 {
		return invalid("subdivisions must be at least 1, got %d", c.Body.Subdivisions)
	}
	if c.Body.Jitter < 0 || c.Body.Jitter > 0.5 {
		return invalid("jitter must be in [0, 0.5], got %g", c.Body.Jitter)
	}

	// Both step settings are checked whichever law is selected.
	if !finitePositive(c.Integrator.Epsilon) || c.Integrator.Epsilon >= 1 {
		return invalid("epsilon must be in (0, 1), got %g", c.Integrator.Epsilon)
	}
	if !finitePositive(c.Integrator.FixedStep) {
		return invalid("fixed-step must be positive, got %g", c.Integrator.FixedStep)
	}
	if !finitePositive(c.Integrator.Floor) {
		return invalid("floor must be positive, got %g", c.Integrator.Floor)
	}
	if c.Integrator.TimeScale < 0 {
		return invalid("time-scale must be non-negative, got %g", c.Integrator.TimeScale)
	}
	if c.Integrator.MaxSubsteps < 1 {
		return invalid("max-substeps must be at least 1, got %d", c.Integrator.MaxSubsteps)
	}
	if c.Body.StartRadiusRs <= 1+c.Integrator.Floor {
		return invalid("start-radius-rs must lie above the horizon floor, got %g", c.Body.StartRadiusRs)
	}

	if c.Tidal.Growth < 0 {
		return invalid("tidal growth must be non-negative, got %g", c.Tidal.Growth)
	}
	if c.Tidal.ActivationRadiusRs < 0 {
		return invalid("activation-radius-rs must be non-negative, got %g", c.Tidal.ActivationRadiusRs)
	}
	if c.Tidal.DespawnStretch != 0 && c.Tidal.DespawnStretch <= 1 {
		return invalid("despawn-stretch must exceed 1, got %g", c.Tidal.DespawnStretch)
	}

	if c.Lifecycle.VisibilityCutoff < 0 || c.Lifecycle.VisibilityCutoff >= 1 {
		return invalid("visibility-cutoff must be in [0, 1), got %g", c.Lifecycle.VisibilityCutoff)
	}
	if !(c.Lifecycle.DilationFloor > 0) || c.Lifecycle.DilationFloor >= 1 {
		return invalid("dilation-floor must be in (0, 1), got %g", c.Lifecycle.DilationFloor)
	}
	if c.Lifecycle.Cooldown.Duration < 0 {
		return invalid("cooldown must be non-negative, got %s", c.Lifecycle.Cooldown)
	}

	if !finitePositive(c.Render.MetersToUnits) {
		return invalid("meters-to-units must be positive, got %g", c.Render.MetersToUnits)
	}
	if c.Render.Strategy == render.StrategyCompressed && !finitePositive(c.Render.CompressionGain) {
		return invalid("compression-gain must be positive, got %g", c.Render.CompressionGain)
	}

	if c.Server.RefreshHz <= 0 {
		return invalid("refresh-hz must be positive, got %g", c.Server.RefreshHz)
	}
	return nil
}

// Constants derives the physical constants.
func (c *Config) Constants() (physics.Constants, error) {
	return physics.NewConstants(
		c.Physics.GravitationalConstant,
		c.Physics.SpeedOfLight,
		c.Physics.MassSolar*physics.SolarMass,
	)
}

// Lattice returns the lattice parameters for a hole of radius rs.
func (c *Config) Lattice(rs float64) bodies.LatticeConfig {
	return bodies.LatticeConfig{
		BodySize:     c.Body.Size,
		Subdivisions: c.Body.Subdivisions,
		StartRadius:  c.Body.StartRadiusRs * rs,
		Jitter:       c.Body.Jitter,
		Seed:         c.Body.Seed,
	}
}

// IntegratorParams returns the integrator parameters.
func (c *Config) IntegratorParams() physics.IntegratorConfig {
	return physics.IntegratorConfig{
		Law:           c.Integrator.Law,
		Epsilon:       c.Integrator.Epsilon,
		FixedStep:     c.Integrator.FixedStep,
		Floor:         c.Integrator.Floor,
		DilationFloor: c.Lifecycle.DilationFloor,
		MaxSubsteps:   c.Integrator.MaxSubsteps,
	}
}

// TidalParams returns the tidal parameters for a hole of radius rs.
func (c *Config) TidalParams(rs float64) physics.TidalConfig {
	return physics.TidalConfig{
		Growth:           c.Tidal.Growth,
		ActivationRadius: c.Tidal.ActivationRadiusRs * rs,
		DespawnStretch:   c.Tidal.DespawnStretch,
	}
}

// RenderParams returns the display mapping parameters.
func (c *Config) RenderParams() render.Config {
	return render.Config{
		Strategy:         c.Render.Strategy,
		MetersToUnits:    c.Render.MetersToUnits,
		CompressionGain:  c.Render.CompressionGain,
		ObserverRadiusRs: c.Render.ObserverRadiusRs,
		EyeHeight:        c.Render.EyeHeight,
	}
}

// FrameInterval returns the display refresh period.
func (c *Config) FrameInterval() time.Duration {
	return time.Duration(float64(time.Second) / c.Server.RefreshHz)
}

func finitePositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}
