package config

import (
	"fmt"
	"io"

	"github.com/spf13/pflag"
)

// Flag names shared by the CLI commands.
const (
	FlagConfig         = "config"
	FlagGapEpsilon     = "gap-epsilon"
	FlagSessionGap     = "session-gap"
	FlagDriftEpsilon   = "drift-epsilon"
	FlagSettleDelay    = "settle-delay"
	FlagRepresentation = "representation"
	FlagKind           = "kind"
	FlagSwitchInterval = "switch-interval"
	FlagTransition     = "transition"
	FlagNoTransitions  = "no-transitions"
	FlagFFprobe        = "ffprobe"
	FlagProbeSlots     = "probe-slots"
	FlagPrefs          = "prefs"
	FlagAddr           = "addr"
	FlagLogLevel       = "log-level"
	FlagLogFormat      = "log-format"
	FlagStrict         = "strict"
	FlagNoStrict       = "no-strict"
	FlagVerbose        = "verbose"
)

// RegisterFlags defines every config override on fs. Defaults shown in
// help text come from DefaultConfig; only flags the user changed are merged.
func RegisterFlags(fs *pflag.FlagSet) {
	d := DefaultConfig()

	fs.String(FlagConfig, "", "Path to config file (default: search ./multicam.yaml, ~/.multicam/config.yaml, /etc/multicam/config.yaml)")

	// Grouping and sessions
	fs.Float64(FlagGapEpsilon, d.Grouping.GapEpsilon, "Largest gap in seconds between files of one continuous segment")
	fs.Float64(FlagSessionGap, d.Sessions.Gap, "Largest gap in seconds between recordings of one session")

	// Playback
	fs.Float64(FlagDriftEpsilon, d.Playback.DriftEpsilon, "Follower drift in seconds tolerated before a corrective seek")
	fs.Duration(FlagSettleDelay, d.Playback.SettleDelay, "Camera switch settle delay")
	fs.String(FlagRepresentation, d.Playback.Representation, "Clock representation: absolute, relative")

	// Composite
	fs.String(FlagKind, d.Composite.Kind, "Composite kind: video, audio")
	fs.Float64(FlagSwitchInterval, d.Composite.SwitchInterval, "Seconds per camera in the composite")
	fs.Float64(FlagTransition, d.Composite.TransitionDuration, "Crossfade duration in seconds")
	fs.Bool(FlagNoTransitions, false, "Schedule hard cuts without crossfades")

	// Import
	fs.String(FlagFFprobe, d.Import.FFprobe, "ffprobe binary")
	fs.Int(FlagProbeSlots, d.Import.ProbeSlots, "Number of concurrent probes")

	// Storage and server
	fs.String(FlagPrefs, d.Prefs.Path, "Preferences file (empty keeps preferences in memory)")
	fs.String(FlagAddr, d.Server.Addr, "HTTP listen address")

	// Logging
	fs.String(FlagLogLevel, d.Log.Level, "Log level: trace, debug, info, warn, error")
	fs.String(FlagLogFormat, d.Log.Format, "Log format: console, json")
	fs.BoolP(FlagVerbose, "v", false, "Shortcut for --log-level debug")

	// Behavioral flags
	fs.Bool(FlagStrict, false, "Fail exports that leave gaps in the composite")
	fs.Bool(FlagNoStrict, false, "Report gaps instead of failing exports")
}

// MergeFromFlags overrides config values with the flags the user set on fs.
// Flags that were not registered are ignored.
func (c *Config) MergeFromFlags(fs *pflag.FlagSet) error {
	var err error
	changed := func(name string) bool {
		return err == nil && fs.Lookup(name) != nil && fs.Changed(name)
	}

	if changed(FlagGapEpsilon) {
		c.Grouping.GapEpsilon, err = fs.GetFloat64(FlagGapEpsilon)
	}
	if changed(FlagSessionGap) {
		c.Sessions.Gap, err = fs.GetFloat64(FlagSessionGap)
	}

	if changed(FlagDriftEpsilon) {
		c.Playback.DriftEpsilon, err = fs.GetFloat64(FlagDriftEpsilon)
	}
	if changed(FlagSettleDelay) {
		c.Playback.SettleDelay, err = fs.GetDuration(FlagSettleDelay)
	}
	if changed(FlagRepresentation) {
		c.Playback.Representation, err = fs.GetString(FlagRepresentation)
	}

	if changed(FlagKind) {
		c.Composite.Kind, err = fs.GetString(FlagKind)
	}
	if changed(FlagSwitchInterval) {
		c.Composite.SwitchInterval, err = fs.GetFloat64(FlagSwitchInterval)
	}
	if changed(FlagTransition) {
		c.Composite.TransitionDuration, err = fs.GetFloat64(FlagTransition)
		c.Composite.IncludeTransitions = true
	}
	if changed(FlagNoTransitions) {
		c.Composite.IncludeTransitions = false
	}

	if changed(FlagFFprobe) {
		c.Import.FFprobe, err = fs.GetString(FlagFFprobe)
	}
	if changed(FlagProbeSlots) {
		c.Import.ProbeSlots, err = fs.GetInt(FlagProbeSlots)
	}

	if changed(FlagPrefs) {
		c.Prefs.Path, err = fs.GetString(FlagPrefs)
	}
	if changed(FlagAddr) {
		c.Server.Addr, err = fs.GetString(FlagAddr)
	}

	if changed(FlagLogLevel) {
		c.Log.Level, err = fs.GetString(FlagLogLevel)
	}
	if changed(FlagLogFormat) {
		c.Log.Format, err = fs.GetString(FlagLogFormat)
	}
	if changed(FlagVerbose) {
		c.Log.Level = "debug"
	}

	if changed(FlagStrict) {
		c.StrictMode = true
	}
	if changed(FlagNoStrict) {
		c.StrictMode = false
	}

	if err != nil {
		return fmt.Errorf("failed to read flags: %w", err)
	}
	return nil
}

// PrintConfig prints the effective configuration
func (c *Config) PrintConfig(w io.Writer) {
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════")
	fmt.Fprintln(w, "                 Effective Configuration                  ")
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════")
	if c.Source != "" {
		fmt.Fprintf(w, "Config File:     %s\n", c.Source)
	} else {
		fmt.Fprintln(w, "Config File:     (defaults)")
	}
	fmt.Fprintf(w, "Gap Epsilon:     %.3f seconds\n", c.Grouping.GapEpsilon)
	fmt.Fprintf(w, "Session Gap:     %.0f seconds\n", c.Sessions.Gap)

	fmt.Fprintln(w, "\nPlayback Settings:")
	fmt.Fprintf(w, "  Drift Epsilon:   %.3f seconds\n", c.Playback.DriftEpsilon)
	fmt.Fprintf(w, "  Update Interval: %s\n", c.Playback.UpdateInterval)
	fmt.Fprintf(w, "  End Epsilon:     %.3f seconds\n", c.Playback.EndEpsilon)
	fmt.Fprintf(w, "  Seek Grace:      %s\n", c.Playback.SeekGrace)
	fmt.Fprintf(w, "  Seek Timeout:    %s\n", c.Playback.SeekTimeout)
	fmt.Fprintf(w, "  Settle Delay:    %s\n", c.Playback.SettleDelay)
	fmt.Fprintf(w, "  Representation:  %s\n", c.Playback.Representation)

	fmt.Fprintln(w, "\nComposite Settings:")
	fmt.Fprintf(w, "  Kind:            %s\n", c.Composite.Kind)
	fmt.Fprintf(w, "  Switch Interval: %.2f seconds\n", c.Composite.SwitchInterval)
	if c.Composite.IncludeTransitions {
		fmt.Fprintf(w, "  Transitions:     %.2f seconds\n", c.Composite.TransitionDuration)
	} else {
		fmt.Fprintln(w, "  Transitions:     off")
	}

	fmt.Fprintln(w, "\nImport Settings:")
	fmt.Fprintf(w, "  FFprobe:         %s\n", c.Import.FFprobe)
	fmt.Fprintf(w, "  Probe Slots:     %d\n", c.Import.ProbeSlots)
	fmt.Fprintf(w, "  Thumbnail Delay: %s\n", c.Thumbnails.Debounce)

	fmt.Fprintln(w, "\nServer:")
	fmt.Fprintf(w, "  Address:         %s\n", c.Server.Addr)
	if c.Prefs.Path != "" {
		fmt.Fprintf(w, "  Preferences:     %s\n", c.Prefs.Path)
	}

	fmt.Fprintln(w, "\nBehavioral Flags:")
	fmt.Fprintf(w, "  Strict Mode:     %v\n", c.StrictMode)
	fmt.Fprintf(w, "  Log:             %s (%s)\n", c.Log.Level, c.Log.Format)
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════")
}
