package models

import (
	"fmt"
	"math"
)

// Segment is a maximal run of files from one source with no gap larger
// than the continuity epsilon.
//
// Duration is the sum of member durations, so End may differ slightly
// from the last file's end when members overlap or leave tolerated gaps.
type Segment struct {
	ID       string      `json:"id"`
	TrackID  string      `json:"track_id"`
	Files    []MediaFile `json:"files"`
	Start    float64     `json:"start"`
	Duration float64     `json:"duration"`
}

// End returns Start + Duration.
func (s Segment) End() float64 {
	return s.Start + s.Duration
}

// Reach returns the latest end among the segment's files, or End when no
// file has a known start.
func (s Segment) Reach() float64 {
	reach, ok := 0.0, false
	for _, f := range s.Files {
		if end, known := f.End(); known && (!ok || end > reach) {
			reach, ok = end, true
		}
	}
	if !ok {
		return s.End()
	}
	return reach
}

// Track owns every segment recorded by one camera key.
type Track struct {
	ID               string     `json:"id"`
	CameraKey        string     `json:"camera_key"`
	Kind             StreamKind `json:"kind"`
	Segments         []Segment  `json:"segments"`
	CombinedDuration float64    `json:"combined_duration"`
}

// Start returns the start of the first segment, or 0 for an empty track.
func (t Track) Start() float64 {
	if len(t.Segments) == 0 {
		return 0
	}
	return t.Segments[0].Start
}

// End returns the latest segment end.
func (t Track) End() float64 {
	if len(t.Segments) == 0 {
		return 0
	}
	end := t.Segments[0].End()
	for _, s := range t.Segments[1:] {
		end = math.Max(end, s.End())
	}
	return end
}

// Span returns End - Start.
func (t Track) Span() float64 {
	return t.End() - t.Start()
}

// FileCount returns the number of files across all segments.
func (t Track) FileCount() int {
	n := 0
	for _, s := range t.Segments {
		n += len(s.Files)
	}
	return n
}

// Validate checks that segments are time-ordered, do not overlap and sum
// to the combined duration.
func (t Track) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("track id cannot be empty")
	}
	if !t.Kind.IsValid() {
		return fmt.Errorf("invalid track kind %q", t.Kind)
	}

	sum := 0.0
	for i, s := range t.Segments {
		if len(s.Files) == 0 {
			return fmt.Errorf("segment %d has no files", i)
		}
		if i > 0 && s.Start < t.Segments[i-1].Start {
			return fmt.Errorf("segment %d starts at %.3f before segment %d at %.3f",
				i, s.Start, i-1, t.Segments[i-1].Start)
		}
		if i > 0 {
			if reach := t.Segments[i-1].Reach(); s.Start < reach {
				return fmt.Errorf("segment %d starts at %.3f inside segment %d, which records until %.3f",
					i, s.Start, i-1, reach)
			}
		}
		sum += s.Duration
	}

	if math.Abs(sum-t.CombinedDuration) > 1e-6 {
		return fmt.Errorf("combined duration %.3f does not match segment sum %.3f", t.CombinedDuration, sum)
	}
	return nil
}

// TimeRange is a coarse recording-session bucket over all tracks.
type TimeRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns End - Start.
func (r TimeRange) Duration() float64 {
	return r.End - r.Start
}

// Contains reports whether t falls within [Start, End].
func (r TimeRange) Contains(t float64) bool {
	return t >= r.Start && t <= r.End
}

// Overlaps reports whether [start, end) intersects the range.
func (r TimeRange) Overlaps(start, end float64) bool {
	return start <= r.End && end >= r.Start
}

// Session groups the tracks that recorded during one TimeRange. Track
// segments outside the range are dropped, so a camera that recorded on two
// days appears in two sessions with different segments.
type Session struct {
	Index  int       `json:"index"`
	Range  TimeRange `json:"range"`
	Tracks []Track   `json:"tracks"`
}

// TracksOfKind returns the session's tracks of the given kind that have at
// least one segment. Segments may still have zero duration.
func (s Session) TracksOfKind(kind StreamKind) []Track {
	var out []Track
	for _, t := range s.Tracks {
		if t.Kind == kind && len(t.Segments) > 0 {
			out = append(out, t)
		}
	}
	return out
}
