package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultFileConfig(t *testing.T) {
	cfg := DefaultFileConfig()
	if !cfg.Camera.PreferIR {
		t.Error("expected prefer_ir default true")
	}
	if cfg.Recognition.IRTolerance != 0.45 {
		t.Errorf("expected ir_tolerance 0.45, got %f", cfg.Recognition.IRTolerance)
	}
	if cfg.Recognition.RGBTolerance != 0.50 {
		t.Errorf("expected rgb_tolerance 0.50, got %f", cfg.Recognition.RGBTolerance)
	}
	if !cfg.IREmitter.Enabled {
		t.Error("expected ir_emitter enabled by default")
	}
}

func TestLoadFilePartialOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{"camera": {"prefer_ir": false}, "recognition": {"ir_tolerance": 0.3}}`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Camera.PreferIR {
		t.Error("expected prefer_ir overridden to false")
	}
	if cfg.Recognition.IRTolerance != 0.3 {
		t.Errorf("expected overridden ir_tolerance 0.3, got %f", cfg.Recognition.IRTolerance)
	}
	// Untouched fields keep their defaults.
	if cfg.Recognition.RGBTolerance != 0.50 {
		t.Errorf("expected default rgb_tolerance preserved, got %f", cfg.Recognition.RGBTolerance)
	}
}

func TestLoadFileMissingReturnsError(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestLoadDefaultFallsBackWhenNothingFound(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg := LoadDefault()
	if cfg.Recognition.IRTolerance != 0.45 {
		t.Errorf("expected default fallback, got %+v", cfg)
	}
}

func TestFromFileConfig(t *testing.T) {
	fc := DefaultFileConfig()
	fc.Camera.PreferIR = false
	fc.Recognition.AuthTimeout = 3.0

	ac := FromFileConfig(fc)
	if ac.PreferIR {
		t.Error("expected PreferIR false")
	}
	if ac.Timeout.Seconds() != 3.0 {
		t.Errorf("expected 3s timeout, got %v", ac.Timeout)
	}
}

func TestToleranceFor(t *testing.T) {
	ac := DefaultAuthConfig()
	if ac.ToleranceFor(true) != 0.45 {
		t.Errorf("expected IR tolerance 0.45, got %f", ac.ToleranceFor(true))
	}
	if ac.ToleranceFor(false) != 0.50 {
		t.Errorf("expected RGB tolerance 0.50, got %f", ac.ToleranceFor(false))
	}
}
