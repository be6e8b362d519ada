// Package clock holds the single authoritative playback time.
package clock

import (
	"errors"
	"fmt"
	"math"
)

// Representation tags what a time value is measured against.
type Representation int

const (
	// Absolute values are seconds since the Unix epoch. They are used when
	// correlating tracks recorded in the same session.
	Absolute Representation = iota + 1
	// Relative values are 0-based offsets within one track or media file.
	Relative
)

func (r Representation) String() string {
	switch r {
	case Absolute:
		return "absolute"
	case Relative:
		return "relative"
	default:
		return "unknown"
	}
}

// ParseRepresentation parses "absolute" or "relative".
func ParseRepresentation(s string) (Representation, error) {
	switch s {
	case "absolute":
		return Absolute, nil
	case "relative":
		return Relative, nil
	}
	return 0, fmt.Errorf("invalid representation %q, must be absolute or relative", s)
}

// ErrRepresentationMismatch is returned when two times of different
// representations are combined without an explicit conversion.
var ErrRepresentationMismatch = errors.New("time representation mismatch")

// Time is a tagged playback time. The zero value is invalid; build values
// with AbsoluteTime or RelativeTime.
type Time struct {
	rep     Representation
	seconds float64
}

// AbsoluteTime returns an epoch-based time.
func AbsoluteTime(seconds float64) Time {
	return Time{rep: Absolute, seconds: seconds}
}

// RelativeTime returns a 0-based time.
func RelativeTime(seconds float64) Time {
	return Time{rep: Relative, seconds: seconds}
}

// Of builds a Time from a value and representation.
func Of(seconds float64, rep Representation) Time {
	return Time{rep: rep, seconds: seconds}
}

// Seconds returns the raw value. Callers must look at Rep before comparing it
// to anything.
func (t Time) Seconds() float64 { return t.seconds }

// Rep returns the representation tag.
func (t Time) Rep() Representation { return t.rep }

// IsZero reports whether t was never set.
func (t Time) IsZero() bool { return t.rep == 0 }

// ToRelative converts t to a 0-based offset from origin, the absolute start
// of the track or segment. Relative values are returned unchanged.
func (t Time) ToRelative(origin float64) Time {
	if t.rep == Relative {
		return t
	}
	return RelativeTime(t.seconds - origin)
}

// ToAbsolute converts t to epoch seconds given the absolute origin of the
// track it is relative to. Absolute values are returned unchanged.
func (t Time) ToAbsolute(origin float64) Time {
	if t.rep == Absolute {
		return t
	}
	return AbsoluteTime(t.seconds + origin)
}

// In converts t into rep using origin.
func (t Time) In(rep Representation, origin float64) Time {
	if rep == Absolute {
		return t.ToAbsolute(origin)
	}
	return t.ToRelative(origin)
}

// Sub returns t - u. Both must share a representation.
func (t Time) Sub(u Time) (float64, error) {
	if t.rep != u.rep {
		return 0, fmt.Errorf("%w: %s - %s", ErrRepresentationMismatch, t.rep, u.rep)
	}
	return t.seconds - u.seconds, nil
}

// Add returns t shifted by d seconds, keeping the representation.
func (t Time) Add(d float64) Time {
	return Time{rep: t.rep, seconds: t.seconds + d}
}

func (t Time) String() string {
	return fmt.Sprintf("%s(%.3f)", t.rep, t.seconds)
}

// MaxSeconds is the sanity bound for any time value: 100 years.
const MaxSeconds = 100 * 365.25 * 24 * 60 * 60

// Check reports why t is not an acceptable clock value, or nil.
func (t Time) Check() error {
	switch {
	case t.rep != Absolute && t.rep != Relative:
		return fmt.Errorf("untagged time value")
	case math.IsNaN(t.seconds) || math.IsInf(t.seconds, 0):
		return fmt.Errorf("value %v is not finite", t.seconds)
	case t.seconds < 0:
		return fmt.Errorf("value %.3f is negative", t.seconds)
	case t.seconds > MaxSeconds:
		return fmt.Errorf("value %.0f exceeds the %.0f second bound", t.seconds, MaxSeconds)
	}
	return nil
}
