package config

import (
	"time"

	"multicam/composite"
	"multicam/grouper"
	"multicam/internal/logging"
	"multicam/library"
	"multicam/models"
	"multicam/playback"
	"multicam/rangeindex"
)

// Config holds all engine configuration options
type Config struct {
	Grouping   GroupingConfig   `yaml:"grouping"`
	Sessions   SessionsConfig   `yaml:"sessions"`
	Playback   PlaybackConfig   `yaml:"playback"`
	Composite  CompositeConfig  `yaml:"composite"`
	Import     ImportConfig     `yaml:"import"`
	Thumbnails ThumbnailsConfig `yaml:"thumbnails"`
	Prefs      PrefsConfig      `yaml:"prefs"`
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`

	// Behavioral flags
	StrictMode bool `yaml:"strict_mode"` // Fail exports that leave gaps in the composite

	// Source is the file the config was loaded from, empty for defaults
	Source string `yaml:"-"`
}

// GroupingConfig holds continuity settings
type GroupingConfig struct {
	GapEpsilon float64 `yaml:"gap_epsilon"` // seconds between files that still count as continuous
}

// SessionsConfig holds session range settings
type SessionsConfig struct {
	Gap float64 `yaml:"gap"` // seconds between recordings that start a new session
}

// PlaybackConfig holds synchronizer and switcher settings
type PlaybackConfig struct {
	DriftEpsilon   float64       `yaml:"drift_epsilon"`   // seconds of follower drift before a corrective seek
	UpdateInterval time.Duration `yaml:"update_interval"` // clock update throttle
	EndEpsilon     float64       `yaml:"end_epsilon"`     // seconds before the end a finished handle is parked
	SeekGrace      time.Duration `yaml:"seek_grace"`
	SeekTimeout    time.Duration `yaml:"seek_timeout"`
	SettleDelay    time.Duration `yaml:"settle_delay"`   // camera switch settle time
	Representation string        `yaml:"representation"` // "absolute" or "relative"
}

// CompositeConfig holds composite scheduling settings
type CompositeConfig struct {
	Kind               string  `yaml:"kind"`            // "video" or "audio"
	SwitchInterval     float64 `yaml:"switch_interval"` // seconds per camera
	IncludeTransitions bool    `yaml:"include_transitions"`
	TransitionDuration float64 `yaml:"transition_duration"`
}

// ImportConfig holds media import settings
type ImportConfig struct {
	FFprobe    string `yaml:"ffprobe"`     // ffprobe binary
	ProbeSlots int    `yaml:"probe_slots"` // concurrent probes
}

// ThumbnailsConfig holds thumbnail request settings
type ThumbnailsConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// PrefsConfig holds preference storage settings
type PrefsConfig struct {
	Path string `yaml:"path"` // empty keeps preferences in memory
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // trace, debug, info, warn, error
	Format string `yaml:"format"` // console, json
}

// DefaultConfig returns configuration with sensible defaults
func DefaultConfig() *Config {
	syncDefaults := playback.DefaultOptions()
	compositeDefaults := composite.DefaultOptions()

	return &Config{
		Grouping: GroupingConfig{GapEpsilon: grouper.GapEpsilon},
		Sessions: SessionsConfig{Gap: rangeindex.SessionGap},

		Playback: PlaybackConfig{
			DriftEpsilon:   syncDefaults.DriftEpsilon,
			UpdateInterval: syncDefaults.UpdateInterval,
			EndEpsilon:     syncDefaults.EndEpsilon,
			SeekGrace:      syncDefaults.SeekGrace,
			SeekTimeout:    syncDefaults.SeekTimeout,
			SettleDelay:    playback.DefaultSettleDelay,
			Representation: "absolute",
		},

		Composite: CompositeConfig{
			Kind:               string(compositeDefaults.Kind),
			SwitchInterval:     compositeDefaults.SwitchInterval,
			IncludeTransitions: compositeDefaults.IncludeTransitions,
			TransitionDuration: compositeDefaults.TransitionDuration,
		},

		Import: ImportConfig{
			FFprobe:    "ffprobe",
			ProbeSlots: library.DefaultProbeSlots,
		},

		Thumbnails: ThumbnailsConfig{Debounce: library.DefaultThumbnailDelay},

		Prefs:  PrefsConfig{Path: ""},
		Server: ServerConfig{Addr: "127.0.0.1:8420"},
		Log:    LogConfig{Level: "info", Format: logging.FormatConsole},

		StrictMode: false, // Report gaps instead of failing
	}
}

// Copy creates a copy of the config
func (c *Config) Copy() *Config {
	copy := *c
	return &copy
}

// PlaybackOptions converts the playback section into synchronizer options
func (c *Config) PlaybackOptions() playback.Options {
	opts := playback.DefaultOptions()
	opts.DriftEpsilon = c.Playback.DriftEpsilon
	opts.UpdateInterval = c.Playback.UpdateInterval
	opts.EndEpsilon = c.Playback.EndEpsilon
	opts.SeekGrace = c.Playback.SeekGrace
	opts.SeekTimeout = c.Playback.SeekTimeout
	return opts
}

// CompositeOptions converts the composite section into scheduler options
func (c *Config) CompositeOptions() composite.Options {
	return composite.Options{
		Kind:               models.StreamKind(c.Composite.Kind),
		SwitchInterval:     c.Composite.SwitchInterval,
		IncludeTransitions: c.Composite.IncludeTransitions,
		TransitionDuration: c.Composite.TransitionDuration,
	}
}

// RepresentationValues returns valid clock representation values
func RepresentationValues() []string {
	return []string{"absolute", "relative"}
}

// LogFormatValues returns valid log format values
func LogFormatValues() []string {
	return []string{logging.FormatConsole, logging.FormatJSON}
}
