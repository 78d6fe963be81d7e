package config

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/msalah0e/canopy/internal/disclosure"
	"github.com/msalah0e/canopy/internal/force"
	"github.com/msalah0e/canopy/internal/ingest"
	"github.com/msalah0e/canopy/internal/interact"
	"github.com/msalah0e/canopy/internal/layout"
	"gonum.org/v1/gonum/spatial/r2"
)

// Config holds canopy configuration.
type Config struct {
	Engine   EngineConfig   `toml:"engine"`
	Layout   LayoutConfig   `toml:"layout"`
	Server   ServerConfig   `toml:"server"`
	UI       UIConfig       `toml:"ui"`
	Log      LogConfig      `toml:"log"`
	Parallel ParallelConfig `toml:"parallel"`
}

// EngineConfig controls clustering and gestures.
type EngineConfig struct {
	ClusterThreshold int     `toml:"cluster_threshold"`
	HitRadius        float64 `toml:"hit_radius"`
	ClickThreshold   float64 `toml:"click_threshold"`
	ExpandRadius     float64 `toml:"expand_radius"`
	ExpandJitter     float64 `toml:"expand_jitter"`
	Seed             uint64  `toml:"seed"` // 0 = random
}

// LayoutConfig holds the canvas and force constants.
type LayoutConfig struct {
	Width             float64  `toml:"width"`
	Height            float64  `toml:"height"`
	LinkDistance      float64  `toml:"link_distance"`
	LinkStrength      float64  `toml:"link_strength"`
	ChargeStrength    float64  `toml:"charge_strength"`
	ChargeDistanceMax float64  `toml:"charge_distance_max"`
	Theta             float64  `toml:"theta"`
	CollideRadius     float64  `toml:"collide_radius"`
	CollideStrength   float64  `toml:"collide_strength"`
	VelocityDecay     float64  `toml:"velocity_decay"`
	AlphaMin          float64  `toml:"alpha_min"`
	AlphaDecay        float64  `toml:"alpha_decay"`
	DragAlphaTarget   float64  `toml:"drag_alpha_target"`
	TickInterval      Duration `toml:"tick_interval"`
	MaxTicks          int      `toml:"max_ticks"`
}

// ServerConfig controls the live viewer.
type ServerConfig struct {
	Addr   string `toml:"addr"`
	MaxFPS int    `toml:"max_fps"`
}

// UIConfig controls display options.
type UIConfig struct {
	Color bool `toml:"color"`
}

// LogConfig controls diagnostic logging.
type LogConfig struct {
	Level string `toml:"level"` // debug, info, warn, error
	Dir   string `toml:"dir"`   // empty = stderr only
}

// ParallelConfig controls concurrent layouts.
type ParallelConfig struct {
	Concurrency int `toml:"concurrency"`
}

// Duration is a time.Duration written as a string such as "16ms".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			ClusterThreshold: ingest.DefaultClusterThreshold,
			HitRadius:        interact.DefaultHitRadius,
			ClickThreshold:   interact.DefaultClickThreshold,
			ExpandRadius:     disclosure.DefaultExpandRadius,
			ExpandJitter:     disclosure.DefaultExpandJitter,
		},
		Layout: LayoutConfig{
			Width:             layout.DefaultWidth,
			Height:            layout.DefaultHeight,
			LinkDistance:      force.DefaultLinkDistance,
			LinkStrength:      force.DefaultLinkStrength,
			ChargeStrength:    force.DefaultChargeStrength,
			ChargeDistanceMax: force.DefaultChargeDistanceMax,
			Theta:             force.DefaultTheta,
			CollideRadius:     force.DefaultCollideRadius,
			CollideStrength:   force.DefaultCollideStrength,
			VelocityDecay:     force.DefaultVelocityDecay,
			AlphaMin:          force.DefaultAlphaMin,
			AlphaDecay:        force.DefaultAlphaDecay,
			DragAlphaTarget:   layout.DefaultDragAlphaTarget,
			TickInterval:      Duration{16 * time.Millisecond},
			MaxTicks:          1000,
		},
		Server:   ServerConfig{Addr: ":8080", MaxFPS: 30},
		UI:       UIConfig{Color: true},
		Log:      LogConfig{Level: "info"},
		Parallel: ParallelConfig{Concurrency: 4},
	}
}

// ConfigDir returns the canopy config directory path.
func ConfigDir() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "canopy")
}

// Path returns the config file location.
func Path() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// Load reads the config file, falling back to defaults if it doesn't exist
// or cannot be parsed.
func Load() *Config {
	cfg, err := LoadFile(Path())
	if err != nil {
		return Default()
	}
	return cfg
}

// LoadFile reads path over the defaults. A missing file yields the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to the default path.
func Save(cfg *Config) error {
	return SaveFile(Path(), cfg)
}

// SaveFile writes cfg to path, creating parent directories.
func SaveFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// EnsureExists creates the config file with defaults if it doesn't exist.
func EnsureExists() error {
	if _, err := os.Stat(Path()); err == nil {
		return nil // already exists
	}
	return Save(Default())
}

// Validate reports every out-of-range setting.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	check(c.Engine.ClusterThreshold >= 0, "engine.cluster_threshold must be >= 0, got %d", c.Engine.ClusterThreshold)
	check(c.Engine.HitRadius > 0, "engine.hit_radius must be > 0, got %g", c.Engine.HitRadius)
	check(c.Engine.ClickThreshold > 0, "engine.click_threshold must be > 0, got %g", c.Engine.ClickThreshold)
	check(c.Engine.ExpandJitter >= 0 && c.Engine.ExpandJitter < 1, "engine.expand_jitter must be in [0,1), got %g", c.Engine.ExpandJitter)
	check(c.Layout.Width > 0 && c.Layout.Height > 0, "layout canvas must be positive, got %gx%g", c.Layout.Width, c.Layout.Height)
	check(c.Layout.VelocityDecay >= 0 && c.Layout.VelocityDecay <= 1, "layout.velocity_decay must be in [0,1], got %g", c.Layout.VelocityDecay)
	check(c.Layout.AlphaDecay > 0 && c.Layout.AlphaDecay < 1, "layout.alpha_decay must be in (0,1), got %g", c.Layout.AlphaDecay)
	check(c.Layout.AlphaMin > 0, "layout.alpha_min must be > 0, got %g", c.Layout.AlphaMin)
	check(c.Layout.TickInterval.Duration > 0, "layout.tick_interval must be > 0, got %s", c.Layout.TickInterval)
	check(c.Server.MaxFPS > 0, "server.max_fps must be > 0, got %d", c.Server.MaxFPS)
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	return errors.Join(errs...)
}

// Rand returns a seeded source when engine.seed is set, or nil.
func (c *Config) Rand(stream uint64) *rand.Rand {
	if c.Engine.Seed == 0 {
		return nil
	}
	return rand.New(rand.NewPCG(c.Engine.Seed, stream))
}

// DisclosureOptions converts the engine section for disclosure.New.
func (c *Config) DisclosureOptions() disclosure.Options {
	return disclosure.Options{
		ClusterThreshold: c.Engine.ClusterThreshold,
		ExpandRadius:     c.Engine.ExpandRadius,
		ExpandJitter:     c.Engine.ExpandJitter,
		Rand:             c.Rand(1),
	}
}

// InteractConfig converts the gesture thresholds.
func (c *Config) InteractConfig() interact.Config {
	return interact.Config{HitRadius: c.Engine.HitRadius, ClickThreshold: c.Engine.ClickThreshold}
}

// LayoutOptions converts the layout section for layout.New.
func (c *Config) LayoutOptions() layout.Options {
	l := c.Layout
	return layout.Options{
		Force: force.Config{
			LinkDistance:      l.LinkDistance,
			LinkStrength:      l.LinkStrength,
			ChargeStrength:    l.ChargeStrength,
			ChargeDistanceMin: force.DefaultChargeDistanceMin,
			ChargeDistanceMax: l.ChargeDistanceMax,
			Theta:             l.Theta,
			CollideRadius:     l.CollideRadius,
			CollideStrength:   l.CollideStrength,
			Center:            r2.Vec{X: l.Width / 2, Y: l.Height / 2},
			VelocityDecay:     l.VelocityDecay,
			AlphaMin:          l.AlphaMin,
			AlphaDecay:        l.AlphaDecay,
		},
		Width:           l.Width,
		Height:          l.Height,
		DragAlphaTarget: l.DragAlphaTarget,
		Rand:            c.Rand(2),
	}
}
