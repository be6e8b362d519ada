package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// EnvConfig names a config file that takes precedence over the search list.
const EnvConfig = "MULTICAM_CONFIG"

const configHeader = "# multicam configuration. Durations use Go syntax (100ms, 1s).\n"

// LoadConfigFile loads configuration from a YAML file. Keys missing from the
// file keep their defaults and unknown keys are an error. An empty file
// yields the defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid multicam config %s: %w", path, err)
	}

	cfg.Source = path
	return cfg, nil
}

// ConfigLocations returns the config file search list in priority order:
// the working directory, the user config directory, ~/.multicam and
// /etc/multicam.
func ConfigLocations() []string {
	locations := []string{"./multicam.yaml", "./multicam.yml"}

	if dir, err := os.UserConfigDir(); err == nil {
		locations = append(locations,
			filepath.Join(dir, "multicam", "config.yaml"),
			filepath.Join(dir, "multicam", "config.yml"),
		)
	}
	if home, err := os.UserHomeDir(); err == nil {
		locations = append(locations,
			filepath.Join(home, ".multicam", "config.yaml"),
			filepath.Join(home, ".multicam", "config.yml"),
		)
	}

	return append(locations, "/etc/multicam/config.yaml", "/etc/multicam/config.yml")
}

// FindConfigFile returns the file named by MULTICAM_CONFIG, or else the first
// regular file in ConfigLocations. It returns "" when none exists.
func FindConfigFile() string {
	if path := os.Getenv(EnvConfig); path != "" {
		return path
	}
	for _, path := range ConfigLocations() {
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return path
		}
	}
	return ""
}

// SaveConfigFile writes cfg as YAML, replacing path atomically.
func SaveConfigFile(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory %s: %w", dir, err)
	}

	body, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot encode config: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".multicam-*.yaml")
	if err != nil {
		return fmt.Errorf("cannot write config: %w", err)
	}
	defer os.Remove(tmp.Name())

	err = tmp.Chmod(0o644)
	if err == nil {
		_, err = tmp.WriteString(configHeader)
	}
	if err == nil {
		_, err = tmp.Write(body)
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("cannot write config: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("cannot replace %s: %w", path, err)
	}
	return nil
}
