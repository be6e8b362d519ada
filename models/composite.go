package models

import (
	"fmt"
	"strings"
)

// CompositeSegment is one time slice of a composite track.
//
// Offset and Duration are relative to the start of the composite span.
// Segments of a plan are ordered, contiguous and cover [0, TotalDuration)
// exactly once.
type CompositeSegment struct {
	Index         int     `json:"index"`
	SourceTrackID string  `json:"source_track_id"`
	Offset        float64 `json:"offset"`
	Duration      float64 `json:"duration"`
}

// End returns Offset + Duration.
func (c CompositeSegment) End() float64 {
	return c.Offset + c.Duration
}

// NewCompositeSegment creates a CompositeSegment with validation.
func NewCompositeSegment(index int, trackID string, offset, duration float64) (*CompositeSegment, error) {
	c := &CompositeSegment{
		Index:         index,
		SourceTrackID: trackID,
		Offset:        offset,
		Duration:      duration,
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid composite segment: %w", err)
	}
	return c, nil
}

// Validate checks if the CompositeSegment has valid data.
//
// Returns an error if:
//   - SourceTrackID is empty or whitespace-only
//   - Offset is negative
//   - Duration is not positive
func (c *CompositeSegment) Validate() error {
	if strings.TrimSpace(c.SourceTrackID) == "" {
		return fmt.Errorf("source_track_id cannot be empty")
	}
	if c.Offset < 0 {
		return fmt.Errorf("offset cannot be negative")
	}
	if c.Duration <= 0 {
		return fmt.Errorf("duration must be greater than 0")
	}
	return nil
}

// TransitionKind names the effect used between two composite segments.
type TransitionKind string

const TransitionCrossfade TransitionKind = "crossfade"

// Transition overlaps the tail of segment From and the head of segment To.
// Start and Duration are composite-relative; the window is centred on the
// cut between the two segments.
type Transition struct {
	Kind     TransitionKind `json:"kind"`
	From     int            `json:"from"`
	To       int            `json:"to"`
	Start    float64        `json:"start"`
	Duration float64        `json:"duration"`
}

// End returns Start + Duration.
func (t Transition) End() float64 {
	return t.Start + t.Duration
}

// SourcePiece is the part of one media file that renders a plan entry.
// In and Out are file-relative seconds; At is where the piece begins on the
// composite timeline.
type SourcePiece struct {
	FileID string  `json:"file_id"`
	Path   string  `json:"path"`
	In     float64 `json:"in"`
	Out    float64 `json:"out"`
	At     float64 `json:"at"`
}

// Duration returns Out - In.
func (p SourcePiece) Duration() float64 {
	return p.Out - p.In
}

// PlanEntry tells a renderer what to read for one composite segment.
//
// TimelineIn/TimelineOut are composite-relative and include the transition
// overlap with neighbouring entries. SourceIn/SourceOut are the absolute
// timestamps read from the source track. Covered is false when the source
// track has no media for part of the window; the renderer decides how to
// fill it.
type PlanEntry struct {
	Segment     int           `json:"segment"`
	SourceTrack string        `json:"source_track"`
	TimelineIn  float64       `json:"timeline_in"`
	TimelineOut float64       `json:"timeline_out"`
	SourceIn    float64       `json:"source_in"`
	SourceOut   float64       `json:"source_out"`
	Pieces      []SourcePiece `json:"pieces"`
	Covered     bool          `json:"covered"`
}

// AssemblyPlan is the declarative description of a composite track.
type AssemblyPlan struct {
	Kind          StreamKind         `json:"kind"`
	SpanStart     float64            `json:"span_start"`
	TotalDuration float64            `json:"total_duration"`
	Segments      []CompositeSegment `json:"segments"`
	Entries       []PlanEntry        `json:"entries"`
	Transitions   []Transition       `json:"transitions,omitempty"`
}
