// Package rangeindex merges file timestamps into coarse recording-session
// ranges and assigns tracks to those sessions.
package rangeindex

import (
	"math"
	"sort"

	"github.com/samber/lo"

	"multicam/models"
)

const (
	// SessionGap is the largest gap in seconds between recordings that still
	// belongs to the same session. It is deliberately unrelated to the
	// per-camera continuity epsilon.
	SessionGap = 3600.0
)

// Indexer builds TimeRanges over all files regardless of camera.
type Indexer struct {
	sessionGap float64
}

// New creates an Indexer with the default session gap.
func New() *Indexer {
	return &Indexer{sessionGap: SessionGap}
}

// SetSessionGap overrides the session gap.
func (ix *Indexer) SetSessionGap(gap float64) *Indexer {
	ix.sessionGap = gap
	return ix
}

type interval struct {
	start, end float64
}

// Index flattens files into (start, end) pairs, sorts them and sweeps left
// to right, extending the running range while the next start is no more
// than the session gap past the range's end. Files without a usable start
// time are ignored. The result is sorted ascending.
func (ix *Indexer) Index(files []models.MediaFile) []models.TimeRange {
	intervals := make([]interval, 0, len(files))
	for _, f := range files {
		start, ok := f.Start()
		if !ok || math.IsNaN(start) || math.IsInf(start, 0) {
			continue
		}
		d := f.Duration
		if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
			d = 0
		}
		intervals = append(intervals, interval{start: start, end: start + d})
	}
	if len(intervals) == 0 {
		return nil
	}

	sort.Slice(intervals, func(i, j int) bool {
		if intervals[i].start != intervals[j].start {
			return intervals[i].start < intervals[j].start
		}
		return intervals[i].end < intervals[j].end
	})

	ranges := make([]models.TimeRange, 0, 4)
	cur := models.TimeRange{Start: intervals[0].start, End: intervals[0].end}
	for _, iv := range intervals[1:] {
		if iv.start-cur.End <= ix.sessionGap {
			cur.End = math.Max(cur.End, iv.end)
			continue
		}
		ranges = append(ranges, cur)
		cur = models.TimeRange{Start: iv.start, End: iv.end}
	}
	ranges = append(ranges, cur)
	return ranges
}

// Sessions assigns every track to the ranges its segments fall in. A
// track's segments are clipped per range: each session only carries the
// segments that overlap it, and tracks with no overlapping segment are left
// out. Combined durations are recomputed for the clipped tracks.
func Sessions(ranges []models.TimeRange, tracks []models.Track) []models.Session {
	sessions := make([]models.Session, 0, len(ranges))
	for i, r := range ranges {
		s := models.Session{Index: i, Range: r}
		for _, t := range tracks {
			segs := lo.Filter(t.Segments, func(seg models.Segment, _ int) bool {
				return r.Overlaps(seg.Start, seg.End())
			})
			if len(segs) == 0 {
				continue
			}
			clipped := t
			clipped.Segments = segs
			clipped.CombinedDuration = lo.SumBy(segs, func(seg models.Segment) float64 { return seg.Duration })
			s.Tracks = append(s.Tracks, clipped)
		}
		sessions = append(sessions, s)
	}
	return sessions
}

// Locate returns the index of the range containing t, or -1.
func Locate(ranges []models.TimeRange, t float64) int {
	i := sort.Search(len(ranges), func(i int) bool { return ranges[i].End >= t })
	if i < len(ranges) && ranges[i].Contains(t) {
		return i
	}
	return -1
}
