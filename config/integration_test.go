package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestLoadConfig_AllLayersPriority(t *testing.T) {
	// Create a temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "multicam.yaml")

	// Config file sets interval, drift and slots
	configContent := `composite:
  switch_interval: 4
playback:
  drift_epsilon: 0.3
import:
  probe_slots: 6
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to create temp config: %v", err)
	}

	// CLI flags override interval and slots
	fs := newFlagSet(t,
		"--config", configPath,
		"--switch-interval", "2",
		"--probe-slots", "1",
	)

	cfg, err := LoadConfig(fs)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	// Verify priority: CLI > File > Defaults
	if cfg.Composite.SwitchInterval != 2 {
		t.Errorf("Expected switch interval 2 (from CLI), got %f", cfg.Composite.SwitchInterval)
	}
	if cfg.Import.ProbeSlots != 1 {
		t.Errorf("Expected probe slots 1 (from CLI), got %d", cfg.Import.ProbeSlots)
	}
	if cfg.Playback.DriftEpsilon != 0.3 {
		t.Errorf("Expected drift epsilon 0.3 (from file), got %f", cfg.Playback.DriftEpsilon)
	}
	if cfg.Grouping.GapEpsilon != 0.5 {
		t.Errorf("Expected gap epsilon 0.5 (default), got %f", cfg.Grouping.GapEpsilon)
	}
}

func TestLoadConfig_ValidationFails(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "multicam.yaml")
	if err := os.WriteFile(configPath, []byte("sessions:\n  gap: 0\n"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadConfig(newFlagSet(t, "--config", configPath))
	if err == nil {
		t.Fatal("Expected validation error")
	}
	if !strings.Contains(err.Error(), "session gap must be positive") || !strings.Contains(err.Error(), configPath) {
		t.Errorf("Expected validation error naming %s, got %v", configPath, err)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(newFlagSet(t, "--config", "/nonexistent/multicam.yaml")); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestLoadConfig_NilFlagSet(t *testing.T) {
	tmpDir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	isolateConfigSearch(t, tmpDir)
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	if err := os.WriteFile("multicam.yaml", []byte("strict_mode: true\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig((*pflag.FlagSet)(nil))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if !cfg.StrictMode {
		t.Error("Expected strict mode from ./multicam.yaml")
	}
	if cfg.Source != "./multicam.yaml" {
		t.Errorf("Expected source ./multicam.yaml, got %s", cfg.Source)
	}
}
