// Package models provides core data structures for the timeline engine.
package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// StreamKind identifies the media kind of a stream or track.
type StreamKind string

const (
	KindVideo StreamKind = "video"
	KindAudio StreamKind = "audio"
)

// IsValid reports whether k is one of the known stream kinds.
func (k StreamKind) IsValid() bool {
	return k == KindVideo || k == KindAudio
}

// Rational is a frame rate expressed as a fraction (e.g., 30000/1001).
type Rational struct {
	Num int64 `json:"num" yaml:"num"`
	Den int64 `json:"den" yaml:"den"`
}

// ParseRational parses "30000/1001" or a plain integer such as "25".
func ParseRational(s string) (Rational, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Rational{}, fmt.Errorf("empty rational")
	}

	numStr, denStr, found := strings.Cut(s, "/")
	if !found {
		denStr = "1"
	}

	num, err := strconv.ParseInt(numStr, 10, 64)
	if err != nil {
		return Rational{}, fmt.Errorf("invalid numerator %q: %w", numStr, err)
	}
	den, err := strconv.ParseInt(denStr, 10, 64)
	if err != nil {
		return Rational{}, fmt.Errorf("invalid denominator %q: %w", denStr, err)
	}

	return Rational{Num: num, Den: den}, nil
}

// Float returns the rational as a float64, or 0 when the denominator is zero.
func (r Rational) Float() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// Stream describes one probed stream of a media file.
type Stream struct {
	Kind               StreamKind `json:"kind" yaml:"kind"`
	Codec              string     `json:"codec,omitempty" yaml:"codec,omitempty"`
	Profile            string     `json:"profile,omitempty" yaml:"profile,omitempty"`
	Width              int        `json:"width,omitempty" yaml:"width,omitempty"`
	Height             int        `json:"height,omitempty" yaml:"height,omitempty"`
	FrameRate          Rational   `json:"frame_rate" yaml:"frame_rate"`
	Rotation           int        `json:"rotation,omitempty" yaml:"rotation,omitempty"`
	DisplayAspectRatio string     `json:"display_aspect_ratio,omitempty" yaml:"display_aspect_ratio,omitempty"`
	SampleRate         int        `json:"sample_rate,omitempty" yaml:"sample_rate,omitempty"`
	Channels           int        `json:"channels,omitempty" yaml:"channels,omitempty"`
}

// MediaFile is the immutable descriptor of one imported media file.
//
// StartTime is the absolute creation time in seconds since the Unix epoch.
// It is nil when the probe could not find a creation timestamp; such files
// cannot be placed on the timeline and are rejected by the grouper.
//
// SourceID, when set, names the recording device explicitly and takes
// precedence over the camera key derived from stream geometry.
type MediaFile struct {
	ID        string   `json:"id" yaml:"id"`
	Path      string   `json:"path" yaml:"path"`
	SourceID  string   `json:"source_id,omitempty" yaml:"source_id,omitempty"`
	StartTime *float64 `json:"start_time,omitempty" yaml:"start_time,omitempty"`
	Duration  float64  `json:"duration" yaml:"duration"`
	Streams   []Stream `json:"streams" yaml:"streams"`
}

// Start returns the file's start time and whether it is known.
func (f MediaFile) Start() (float64, bool) {
	if f.StartTime == nil {
		return 0, false
	}
	return *f.StartTime, true
}

// End returns start + duration. The second value is false when the start is unknown.
func (f MediaFile) End() (float64, bool) {
	start, ok := f.Start()
	if !ok {
		return 0, false
	}
	return start + f.Duration, true
}

// Kind returns video if the file carries any video stream, otherwise audio.
// Files with no streams at all report an empty kind.
func (f MediaFile) Kind() StreamKind {
	var kind StreamKind
	for _, s := range f.Streams {
		if s.Kind == KindVideo {
			return KindVideo
		}
		if s.Kind == KindAudio {
			kind = KindAudio
		}
	}
	return kind
}

// PrimaryStream returns the first stream matching the file's Kind.
func (f MediaFile) PrimaryStream() (Stream, bool) {
	kind := f.Kind()
	for _, s := range f.Streams {
		if s.Kind == kind {
			return s, true
		}
	}
	return Stream{}, false
}

// CameraKey derives the identity used to group files into one logical camera.
//
// An explicit SourceID wins. Otherwise video files are keyed by
// resolution, codec and profile, and audio-only files by codec, profile,
// sample rate and channel count.
func (f MediaFile) CameraKey() string {
	if id := strings.TrimSpace(f.SourceID); id != "" {
		return "src:" + id
	}

	s, ok := f.PrimaryStream()
	if !ok {
		return ""
	}

	switch s.Kind {
	case KindVideo:
		return fmt.Sprintf("video:%dx%d:%s:%s", s.Width, s.Height, s.Codec, s.Profile)
	case KindAudio:
		return fmt.Sprintf("audio:%s:%s:%d:%d", s.Codec, s.Profile, s.SampleRate, s.Channels)
	}
	return ""
}

// Validate checks that the file carries everything the grouper needs.
//
// Returns an error if:
//   - Path is empty or whitespace-only
//   - StartTime is missing or not finite
//   - Duration is not a positive finite number
//   - no audio or video stream was probed
func (f MediaFile) Validate() error {
	if strings.TrimSpace(f.Path) == "" {
		return fmt.Errorf("path cannot be empty")
	}

	start, ok := f.Start()
	if !ok {
		return fmt.Errorf("creation time is missing")
	}
	if math.IsNaN(start) || math.IsInf(start, 0) {
		return fmt.Errorf("creation time is not finite")
	}

	if math.IsNaN(f.Duration) || math.IsInf(f.Duration, 0) || f.Duration <= 0 {
		return fmt.Errorf("duration must be a positive finite number")
	}

	if f.Kind() == "" {
		return fmt.Errorf("no audio or video stream")
	}

	return nil
}

// Seconds is a helper for building optional start times.
func Seconds(v float64) *float64 {
	return &v
}
