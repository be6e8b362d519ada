// Package grouper turns a flat pool of media files into per-camera tracks
// made of continuous segments.
package grouper

import (
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"multicam/models"
)

const (
	// GapEpsilon is the largest gap (or overlap) in seconds between two
	// consecutive files that still counts as continuous recording.
	GapEpsilon = 0.5
)

// idNamespace scopes the name-based UUIDs of tracks and segments.
var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("multicam/grouper"))

// Result is the output of one grouping pass.
type Result struct {
	Tracks   []models.Track
	Rejected []models.Diagnostic
}

// partitionKey identifies the files that belong to one track.
type partitionKey struct {
	kind      models.StreamKind
	cameraKey string
}

// Grouper groups media files into tracks and continuous segments.
type Grouper struct {
	gapEpsilon float64
	log        zerolog.Logger
}

// New creates a Grouper with the default continuity epsilon.
func New() *Grouper {
	return &Grouper{
		gapEpsilon: GapEpsilon,
		log:        zerolog.Nop(),
	}
}

// SetGapEpsilon overrides the continuity epsilon.
func (g *Grouper) SetGapEpsilon(eps float64) *Grouper {
	g.gapEpsilon = eps
	return g
}

// SetLogger sets the logger used for rejection reports.
func (g *Grouper) SetLogger(log zerolog.Logger) *Grouper {
	g.log = log
	return g
}

// Group partitions files by kind and camera key, orders each partition by
// start time and splits it into segments wherever the next file starts more
// than the epsilon after the running segment ends. Overlapping files join
// the running segment, so segments of a track never overlap.
//
// Files that fail MediaFile.Validate are excluded and reported as
// MissingMetadata diagnostics. The output is deterministic: ids are derived
// from camera keys and file ids, and tracks are ordered by kind, start time
// and camera key.
func (g *Grouper) Group(files []models.MediaFile) Result {
	var res Result

	valid := make([]models.MediaFile, 0, len(files))
	for _, f := range files {
		if err := f.Validate(); err != nil {
			d := models.DiagnosticFrom(models.NewError(models.KindMissingMetadata, subjectOf(f), err))
			g.log.Warn().Str("file", d.Subject).Str("reason", d.Message).Msg("file excluded from grouping")
			res.Rejected = append(res.Rejected, d)
			continue
		}
		valid = append(valid, f)
	}

	partitions := lo.GroupBy(valid, func(f models.MediaFile) partitionKey {
		return partitionKey{kind: f.Kind(), cameraKey: f.CameraKey()}
	})

	tracks := make([]models.Track, 0, len(partitions))
	for key, members := range partitions {
		tracks = append(tracks, g.buildTrack(key, members))
	}

	sort.Slice(tracks, func(i, j int) bool {
		a, b := tracks[i], tracks[j]
		if a.Kind != b.Kind {
			return a.Kind == models.KindVideo
		}
		if a.Start() != b.Start() {
			return a.Start() < b.Start()
		}
		return a.CameraKey < b.CameraKey
	})

	res.Tracks = tracks
	g.log.Debug().Int("files", len(files)).Int("tracks", len(tracks)).Int("rejected", len(res.Rejected)).Msg("grouping complete")
	return res
}

// buildTrack sorts one partition and walks it into segments.
func (g *Grouper) buildTrack(key partitionKey, files []models.MediaFile) models.Track {
	sorted := append([]models.MediaFile(nil), files...)
	sort.SliceStable(sorted, func(i, j int) bool {
		si, _ := sorted[i].Start()
		sj, _ := sorted[j].Start()
		if si != sj {
			return si < sj
		}
		if sorted[i].Path != sorted[j].Path {
			return sorted[i].Path < sorted[j].Path
		}
		return sorted[i].ID < sorted[j].ID
	})

	track := models.Track{
		ID:        TrackID(key.kind, key.cameraKey),
		CameraKey: key.cameraKey,
		Kind:      key.kind,
	}

	var (
		current  []models.MediaFile
		duration float64
		reach    float64 // latest end among current members
	)
	flush := func() {
		if len(current) == 0 {
			return
		}
		track.Segments = append(track.Segments, newSegment(track.ID, current, duration))
		current, duration = nil, 0
	}

	for _, f := range sorted {
		start, _ := f.Start()
		end, _ := f.End()
		switch {
		case len(current) == 0 || !g.continues(reach, start):
			flush()
			duration, reach = f.Duration, end
		case start < reach-g.gapEpsilon:
			// Overlap beyond the epsilon: only the part past the segment's
			// reach adds to its duration.
			duration += math.Max(0, end-reach)
			reach = math.Max(reach, end)
		default:
			duration += f.Duration
			reach = math.Max(reach, end)
		}
		current = append(current, f)
	}
	flush()

	track.CombinedDuration = lo.SumBy(track.Segments, func(s models.Segment) float64 { return s.Duration })
	return track
}

// Continuous reports whether next continues prev: next must start no later
// than the epsilon after prev ends. Overlapping files are continuous.
func (g *Grouper) Continuous(prev, next models.MediaFile) bool {
	prevEnd, ok1 := prev.End()
	nextStart, ok2 := next.Start()
	if !ok1 || !ok2 {
		return false
	}
	return g.continues(prevEnd, nextStart)
}

func (g *Grouper) continues(prevEnd, nextStart float64) bool {
	return nextStart-prevEnd <= g.gapEpsilon
}

func newSegment(trackID string, files []models.MediaFile, duration float64) models.Segment {
	start, _ := files[0].Start()
	return models.Segment{
		ID:       SegmentID(trackID, files[0]),
		TrackID:  trackID,
		Files:    files,
		Start:    start,
		Duration: duration,
	}
}

// TrackID derives the stable id of the track for a kind and camera key.
func TrackID(kind models.StreamKind, cameraKey string) string {
	return uuid.NewSHA1(idNamespace, []byte(fmt.Sprintf("track|%s|%s", kind, cameraKey))).String()
}

// SegmentID derives the stable id of the segment that begins with first.
func SegmentID(trackID string, first models.MediaFile) string {
	return uuid.NewSHA1(idNamespace, []byte(fmt.Sprintf("segment|%s|%s", trackID, subjectOf(first)))).String()
}

func subjectOf(f models.MediaFile) string {
	if f.ID != "" {
		return f.ID
	}
	return f.Path
}
