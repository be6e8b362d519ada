// Package export turns an assembly plan into text formats external tools
// can render: an ffmpeg concat list and an HLS VOD playlist.
package export

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"multicam/models"
)

// minCutDuration drops slivers produced by float error at segment edges.
const minCutDuration = 1e-3

// Cut is one contiguous read from a source file, placed on the composite
// timeline without transition overlap.
type Cut struct {
	Segment     int
	SourceTrack string
	FileID      string
	Path        string
	In          float64
	Out         float64
	At          float64
}

// Duration returns Out - In.
func (c Cut) Duration() float64 {
	return c.Out - c.In
}

// Gap is a part of the composite timeline whose source track has no media.
type Gap struct {
	Segment int
	Start   float64
	End     float64
}

// Exporter converts plans to cut lists.
type Exporter struct {
	strictMode bool // If true, fail when a segment is not fully covered. If false, skip the gaps.
	log        zerolog.Logger
}

// NewExporter creates a new exporter
func NewExporter(strictMode bool) *Exporter {
	return &Exporter{
		strictMode: strictMode,
		log:        zerolog.Nop(),
	}
}

// SetLogger sets the logger.
func (e *Exporter) SetLogger(log zerolog.Logger) *Exporter {
	e.log = log
	return e
}

// Cuts clips every entry's pieces to its own segment window and returns
// them in timeline order. Transition overlap is dropped because neither
// output format can blend two sources. Uncovered time is returned as gaps;
// in strict mode any gap is an error.
func (e *Exporter) Cuts(plan *models.AssemblyPlan) ([]Cut, []Gap, error) {
	if plan == nil || len(plan.Entries) == 0 {
		return nil, nil, fmt.Errorf("plan has no entries")
	}
	if len(plan.Entries) != len(plan.Segments) {
		return nil, nil, fmt.Errorf("plan has %d entries for %d segments", len(plan.Entries), len(plan.Segments))
	}

	var (
		cuts []Cut
		gaps []Gap
	)
	for i, entry := range plan.Entries {
		seg := plan.Segments[i]
		cursor := seg.Offset

		for _, p := range entry.Pieces {
			start := math.Max(p.At, seg.Offset)
			end := math.Min(p.At+p.Duration(), seg.End())
			if end-start < minCutDuration {
				continue
			}
			if start-cursor >= minCutDuration {
				gaps = append(gaps, Gap{Segment: seg.Index, Start: cursor, End: start})
			}
			cuts = append(cuts, Cut{
				Segment:     seg.Index,
				SourceTrack: entry.SourceTrack,
				FileID:      p.FileID,
				Path:        p.Path,
				In:          p.In + (start - p.At),
				Out:         p.In + (end - p.At),
				At:          start,
			})
			cursor = end
		}
		if seg.End()-cursor >= minCutDuration {
			gaps = append(gaps, Gap{Segment: seg.Index, Start: cursor, End: seg.End()})
		}
	}

	if len(gaps) > 0 {
		if e.strictMode {
			return nil, gaps, fmt.Errorf("strict mode: %d uncovered gap(s), first at %.3f", len(gaps), gaps[0].Start)
		}
		e.log.Warn().Int("gaps", len(gaps)).Msg("plan has uncovered time, gaps are skipped")
	}
	if len(cuts) == 0 {
		return nil, gaps, fmt.Errorf("plan has no media to export")
	}
	return cuts, gaps, nil
}
