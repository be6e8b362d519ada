package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/samber/lo"
)

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errors []string

	if !isPositive(c.Grouping.GapEpsilon) {
		errors = append(errors, "grouping gap epsilon must be positive")
	}

	if !isPositive(c.Sessions.Gap) {
		errors = append(errors, "session gap must be positive")
	}

	if err := c.Playback.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("playback config: %v", err))
	}

	if err := c.CompositeOptions().Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("composite config: %v", err))
	}

	if c.Import.FFprobe == "" {
		errors = append(errors, "ffprobe binary is required")
	}
	if c.Import.ProbeSlots <= 0 {
		errors = append(errors, "probe slots must be positive")
	}

	if c.Thumbnails.Debounce < 0 {
		errors = append(errors, "thumbnail debounce cannot be negative")
	}

	if c.Server.Addr == "" {
		errors = append(errors, "server address is required")
	}

	if !lo.Contains(LogFormatValues(), c.Log.Format) {
		errors = append(errors, fmt.Sprintf("invalid log format '%s', must be one of: %s",
			c.Log.Format, strings.Join(LogFormatValues(), ", ")))
	}
	if c.Log.Level == "" {
		errors = append(errors, "log level is required")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

// Validate checks if playback configuration is valid
func (pc *PlaybackConfig) Validate() error {
	var errors []string

	if !isPositive(pc.DriftEpsilon) {
		errors = append(errors, "drift epsilon must be positive")
	}
	if pc.UpdateInterval < 0 {
		errors = append(errors, "update interval cannot be negative")
	}
	if math.IsNaN(pc.EndEpsilon) || pc.EndEpsilon < 0 {
		errors = append(errors, "end epsilon cannot be negative")
	}
	if pc.SeekGrace < 0 {
		errors = append(errors, "seek grace cannot be negative")
	}
	if pc.SeekTimeout <= pc.SeekGrace {
		errors = append(errors, "seek timeout must be longer than seek grace")
	}
	if pc.SettleDelay < 0 {
		errors = append(errors, "settle delay cannot be negative")
	}
	if !lo.Contains(RepresentationValues(), pc.Representation) {
		errors = append(errors, fmt.Sprintf("invalid representation '%s', must be one of: %s",
			pc.Representation, strings.Join(RepresentationValues(), ", ")))
	}

	if len(errors) > 0 {
		return fmt.Errorf("%s", strings.Join(errors, ", "))
	}

	return nil
}

func isPositive(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}
