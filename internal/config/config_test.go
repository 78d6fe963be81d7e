package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Engine.ClusterThreshold != 3 {
		t.Errorf("expected cluster threshold 3, got %d", cfg.Engine.ClusterThreshold)
	}
	if cfg.Engine.HitRadius != 20 {
		t.Errorf("expected hit radius 20, got %g", cfg.Engine.HitRadius)
	}
	if cfg.Engine.ClickThreshold != 5 {
		t.Errorf("expected click threshold 5, got %g", cfg.Engine.ClickThreshold)
	}
	if cfg.Layout.Width != 960 || cfg.Layout.Height != 600 {
		t.Errorf("expected 960x600 canvas, got %gx%g", cfg.Layout.Width, cfg.Layout.Height)
	}
	if cfg.Layout.TickInterval.Duration != 16*time.Millisecond {
		t.Errorf("expected 16ms tick, got %s", cfg.Layout.TickInterval)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("expected addr :8080, got %q", cfg.Server.Addr)
	}
	if !cfg.UI.Color {
		t.Error("default color should be true")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestConfigDir(t *testing.T) {
	// Test with XDG_CONFIG_HOME set
	t.Setenv("XDG_CONFIG_HOME", "/tmp/test-xdg")
	dir := ConfigDir()
	if dir != "/tmp/test-xdg/canopy" {
		t.Errorf("expected /tmp/test-xdg/canopy, got %q", dir)
	}

	// Test without XDG_CONFIG_HOME
	t.Setenv("XDG_CONFIG_HOME", "")
	dir = ConfigDir()
	home, _ := os.UserHomeDir()
	expected := filepath.Join(home, ".config", "canopy")
	if dir != expected {
		t.Errorf("expected %q, got %q", expected, dir)
	}
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	cfg := Default()
	cfg.Engine.ClusterThreshold = 8
	cfg.Layout.TickInterval = Duration{40 * time.Millisecond}
	cfg.UI.Color = false

	if err := Save(cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := os.ReadFile(Path())
	if err != nil {
		t.Fatalf("read saved config: %v", err)
	}
	if !strings.Contains(string(data), `tick_interval = "40ms"`) {
		t.Errorf("durations should be written as strings:\n%s", data)
	}

	loaded := Load()
	if loaded.Engine.ClusterThreshold != 8 {
		t.Errorf("expected threshold 8, got %d", loaded.Engine.ClusterThreshold)
	}
	if loaded.Layout.TickInterval.Duration != 40*time.Millisecond {
		t.Errorf("expected 40ms, got %s", loaded.Layout.TickInterval)
	}
	if loaded.UI.Color {
		t.Error("expected color false after load")
	}
}

func TestLoadFilePartialOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	os.WriteFile(path, []byte("[engine]\ncluster_threshold = 10\n\n[server]\naddr = \"127.0.0.1:9000\"\n"), 0o644)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Engine.ClusterThreshold != 10 {
		t.Errorf("expected threshold 10, got %d", cfg.Engine.ClusterThreshold)
	}
	if cfg.Server.Addr != "127.0.0.1:9000" {
		t.Errorf("expected overridden addr, got %q", cfg.Server.Addr)
	}
	if cfg.Engine.HitRadius != 20 {
		t.Errorf("unset keys keep defaults, got hit radius %g", cfg.Engine.HitRadius)
	}
}

func TestLoadFileMissing(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.Layout.MaxTicks != 1000 {
		t.Errorf("expected defaults, got max ticks %d", cfg.Layout.MaxTicks)
	}
}

func TestLoadFileRejectsInvalid(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.toml")
	os.WriteFile(bad, []byte("[engine\n"), 0o644)
	if _, err := LoadFile(bad); err == nil {
		t.Error("expected parse error")
	}

	out := filepath.Join(dir, "range.toml")
	os.WriteFile(out, []byte("[engine]\nhit_radius = -1\n\n[log]\nlevel = \"loud\"\n"), 0o644)
	_, err := LoadFile(out)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"hit_radius", "log.level"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should mention %s", err, want)
		}
	}

	dur := filepath.Join(dir, "dur.toml")
	os.WriteFile(dur, []byte("[layout]\ntick_interval = \"soon\"\n"), 0o644)
	if _, err := LoadFile(dur); err == nil {
		t.Error("expected duration parse error")
	}
}

func TestLoadFallsBackOnBrokenFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)
	os.MkdirAll(ConfigDir(), 0o755)
	os.WriteFile(Path(), []byte("not = [toml"), 0o644)

	cfg := Load()
	if cfg.Engine.ClusterThreshold != 3 {
		t.Errorf("expected defaults, got threshold %d", cfg.Engine.ClusterThreshold)
	}
}

func TestEnsureExists(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	if err := EnsureExists(); err != nil {
		t.Fatalf("EnsureExists failed: %v", err)
	}

	path := filepath.Join(tmpDir, "canopy", "config.toml")
	if _, err := os.Stat(path); err != nil {
		t.Errorf("config file not created: %v", err)
	}

	// Second call should be no-op
	if err := EnsureExists(); err != nil {
		t.Fatalf("EnsureExists second call failed: %v", err)
	}
}

func TestConversions(t *testing.T) {
	cfg := Default()
	cfg.Engine.Seed = 42
	cfg.Layout.Width = 1000
	cfg.Layout.Height = 500

	lo := cfg.LayoutOptions()
	if lo.Force.Center.X != 500 || lo.Force.Center.Y != 250 {
		t.Errorf("center should be the canvas midpoint, got %v", lo.Force.Center)
	}
	if lo.Force.ChargeStrength != -500 {
		t.Errorf("expected charge -500, got %g", lo.Force.ChargeStrength)
	}
	if lo.Rand == nil {
		t.Error("a seed should produce a deterministic source")
	}

	do := cfg.DisclosureOptions()
	if do.ExpandRadius != 100 || do.ClusterThreshold != 3 {
		t.Errorf("unexpected disclosure options %+v", do)
	}

	ic := cfg.InteractConfig()
	if ic.HitRadius != 20 || ic.ClickThreshold != 5 {
		t.Errorf("unexpected interact config %+v", ic)
	}

	cfg.Engine.Seed = 0
	if cfg.Rand(1) != nil {
		t.Error("no seed means nondeterministic")
	}
}
