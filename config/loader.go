package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// LoadConfig resolves the effective configuration. Each layer overrides the
// previous one: defaults, then the config file (--config, MULTICAM_CONFIG or
// the first file in ConfigLocations), then the flags the user changed on fs.
// fs may be nil.
func LoadConfig(fs *pflag.FlagSet) (*Config, error) {
	path := ""
	if fs != nil && fs.Lookup(FlagConfig) != nil {
		path, _ = fs.GetString(FlagConfig)
	}
	if path == "" {
		path = FindConfigFile()
	}

	cfg := DefaultConfig()
	if path != "" {
		fileCfg, err := LoadConfigFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}

	if fs != nil {
		if err := cfg.MergeFromFlags(fs); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		if cfg.Source != "" {
			return nil, fmt.Errorf("config from %s: %w", cfg.Source, err)
		}
		return nil, err
	}
	return cfg, nil
}
