// Package timeutil provides time parsing and formatting helpers shared by
// the probe adapter, the CLI and plan exports.
package timeutil

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// creationTimeLayouts are the layouts seen in container creation_time tags.
var creationTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000000Z",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// FormatSeconds converts seconds to HH:MM:SS.MS format.
//
// Example:
//
//	FormatSeconds(0)      // "00:00:00.00"
//	FormatSeconds(90)     // "00:01:30.00"
//	FormatSeconds(3661)   // "01:01:01.00"
//	FormatSeconds(30.53)  // "00:00:30.53"
func FormatSeconds(seconds float64) string {
	hours := int(seconds) / 3600
	minutes := (int(seconds) % 3600) / 60
	secs := seconds - float64(hours*3600) - float64(minutes*60)
	return fmt.Sprintf("%02d:%02d:%05.2f", hours, minutes, secs)
}

// ParseCreationTime parses a creation_time tag into seconds since the Unix
// epoch, keeping sub-second precision. Timestamps without a zone are read as UTC.
func ParseCreationTime(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty creation time")
	}

	for _, layout := range creationTimeLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return EpochSeconds(t), nil
		}
	}
	return 0, fmt.Errorf("unrecognised creation time %q", value)
}

// EpochSeconds converts t into fractional seconds since the Unix epoch.
func EpochSeconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/float64(time.Second)
}

// FromEpochSeconds converts fractional epoch seconds back into a UTC time.
func FromEpochSeconds(seconds float64) time.Time {
	whole, frac := math.Modf(seconds)
	return time.Unix(int64(whole), int64(frac*float64(time.Second))).UTC()
}

// FormatEpoch renders epoch seconds as an RFC 3339 timestamp with milliseconds.
func FormatEpoch(seconds float64) string {
	return FromEpochSeconds(seconds).Format("2006-01-02T15:04:05.000Z07:00")
}
