// Package composite slices several parallel tracks of a session into one
// composite track and describes how to render it as a declarative plan.
package composite

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"multicam/models"
)

const (
	// DefaultSwitchInterval is the length of each composite slice in seconds
	DefaultSwitchInterval = 3.0

	// DefaultTransitionDuration is the crossfade length in seconds
	DefaultTransitionDuration = 0.5

	// MinSwitchInterval is the shortest allowed slice in seconds
	MinSwitchInterval = 0.1

	// MinEligibleTracks is the number of tracks a composite needs
	MinEligibleTracks = 2

	// coverageTolerance absorbs float error when summing source pieces
	coverageTolerance = 1e-6
)

// Options control how a composite is scheduled.
type Options struct {
	Kind               models.StreamKind `yaml:"kind" json:"kind"`
	SwitchInterval     float64           `yaml:"switch_interval" json:"switch_interval"`
	IncludeTransitions bool              `yaml:"include_transitions" json:"include_transitions"`
	TransitionDuration float64           `yaml:"transition_duration" json:"transition_duration"`
}

// DefaultOptions returns a video composite switching every 3 seconds with
// half-second crossfades.
func DefaultOptions() Options {
	return Options{
		Kind:               models.KindVideo,
		SwitchInterval:     DefaultSwitchInterval,
		IncludeTransitions: true,
		TransitionDuration: DefaultTransitionDuration,
	}
}

// Validate checks the options.
func (o Options) Validate() error {
	if !o.Kind.IsValid() {
		return fmt.Errorf("invalid kind %q", o.Kind)
	}
	if math.IsNaN(o.SwitchInterval) || o.SwitchInterval < MinSwitchInterval {
		return fmt.Errorf("switch interval must be at least %.1f seconds", MinSwitchInterval)
	}
	if o.IncludeTransitions && (math.IsNaN(o.TransitionDuration) || o.TransitionDuration <= 0) {
		return fmt.Errorf("transition duration must be greater than 0")
	}
	return nil
}

// Scheduler builds assembly plans for sessions.
type Scheduler struct {
	opts Options
	log  zerolog.Logger
}

// NewScheduler creates a Scheduler with default options.
func NewScheduler() *Scheduler {
	return &Scheduler{
		opts: DefaultOptions(),
		log:  zerolog.Nop(),
	}
}

// SetOptions replaces all options.
func (s *Scheduler) SetOptions(opts Options) *Scheduler {
	s.opts = opts
	return s
}

// SetKind selects which tracks are eligible.
func (s *Scheduler) SetKind(kind models.StreamKind) *Scheduler {
	s.opts.Kind = kind
	return s
}

// SetSwitchInterval sets the slice length.
func (s *Scheduler) SetSwitchInterval(seconds float64) *Scheduler {
	s.opts.SwitchInterval = seconds
	return s
}

// SetTransitions enables or disables crossfades and sets their length.
func (s *Scheduler) SetTransitions(include bool, seconds float64) *Scheduler {
	s.opts.IncludeTransitions = include
	s.opts.TransitionDuration = seconds
	return s
}

// SetLogger sets the logger.
func (s *Scheduler) SetLogger(log zerolog.Logger) *Scheduler {
	s.log = log
	return s
}

// GetCompositeAssemblyPlan schedules session with opts.
func GetCompositeAssemblyPlan(session models.Session, opts Options) (*models.AssemblyPlan, error) {
	return NewScheduler().SetOptions(opts).Plan(session)
}

// Plan schedules a composite over the session's tracks of the configured
// kind.
//
// The composite spans from the earliest track start to the latest track
// end. Slices of SwitchInterval seconds are assigned round-robin in the
// order the tracks appear in the session; the last slice may be shorter.
// With transitions enabled every cut gets a crossfade centred on it.
//
// Returns an InsufficientTracks error when fewer than two tracks of the kind
// have segments, an EmptySegment error when the span has no duration, and
// InsufficientTracks again when fewer than two of them carry media.
func (s *Scheduler) Plan(session models.Session) (*models.AssemblyPlan, error) {
	if err := s.opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	subject := fmt.Sprintf("session %d", session.Index)
	tracks := session.TracksOfKind(s.opts.Kind)
	if len(tracks) < MinEligibleTracks {
		return nil, models.NewError(models.KindInsufficientTracks, subject,
			fmt.Errorf("%d eligible %s track(s), need %d", len(tracks), s.opts.Kind, MinEligibleTracks))
	}

	spanStart := lo.Min(lo.Map(tracks, func(t models.Track, _ int) float64 { return t.Start() }))
	spanEnd := lo.Max(lo.Map(tracks, func(t models.Track, _ int) float64 { return t.End() }))
	total := spanEnd - spanStart
	if !(total > 0) || math.IsInf(total, 0) {
		return nil, models.NewError(models.KindEmptySegment, subject,
			fmt.Errorf("span [%.3f, %.3f] has no duration", spanStart, spanEnd))
	}

	// Tracks without media inside the span get no slots.
	tracks = lo.Filter(tracks, func(t models.Track, _ int) bool { return t.Span() > 0 })
	if len(tracks) < MinEligibleTracks {
		return nil, models.NewError(models.KindInsufficientTracks, subject,
			fmt.Errorf("%d %s track(s) with media, need %d", len(tracks), s.opts.Kind, MinEligibleTracks))
	}

	segments, err := s.slice(tracks, total)
	if err != nil {
		return nil, err
	}

	plan := &models.AssemblyPlan{
		Kind:          s.opts.Kind,
		SpanStart:     spanStart,
		TotalDuration: total,
		Segments:      segments,
	}
	if s.opts.IncludeTransitions {
		plan.Transitions = s.transitions(segments)
	}
	plan.Entries = buildEntries(plan, tracks)

	s.log.Debug().Str("session", subject).Int("tracks", len(tracks)).
		Int("segments", len(segments)).Float64("duration", total).Msg("composite scheduled")
	return plan, nil
}

// slice cuts [0, total) into fixed-interval segments assigned round-robin.
func (s *Scheduler) slice(tracks []models.Track, total float64) ([]models.CompositeSegment, error) {
	count := int(total / s.opts.SwitchInterval)
	if total > float64(count)*s.opts.SwitchInterval {
		count++
	}

	segments := make([]models.CompositeSegment, 0, count)
	for i := 0; i < count; i++ {
		offset := float64(i) * s.opts.SwitchInterval
		end := offset + s.opts.SwitchInterval
		if end > total {
			end = total
		}
		if end-offset <= 0 {
			break
		}

		seg, err := models.NewCompositeSegment(i, tracks[i%len(tracks)].ID, offset, end-offset)
		if err != nil {
			return nil, fmt.Errorf("composite segment %d: %w", i, err)
		}
		segments = append(segments, *seg)
	}
	return segments, nil
}

// transitions places one crossfade on every cut. Each is centred on the cut
// and no longer than either neighbouring segment.
func (s *Scheduler) transitions(segments []models.CompositeSegment) []models.Transition {
	if len(segments) < 2 {
		return nil
	}

	out := make([]models.Transition, 0, len(segments)-1)
	for i := 0; i < len(segments)-1; i++ {
		a, b := segments[i], segments[i+1]
		d := math.Min(s.opts.TransitionDuration, math.Min(a.Duration, b.Duration))
		out = append(out, models.Transition{
			Kind:     models.TransitionCrossfade,
			From:     a.Index,
			To:       b.Index,
			Start:    a.End() - d/2,
			Duration: d,
		})
	}
	return out
}

// buildEntries resolves every segment, widened by its transitions, to the
// source track's files.
func buildEntries(plan *models.AssemblyPlan, tracks []models.Track) []models.PlanEntry {
	byID := lo.KeyBy(tracks, func(t models.Track) string { return t.ID })

	entries := make([]models.PlanEntry, 0, len(plan.Segments))
	for i, seg := range plan.Segments {
		in, out := seg.Offset, seg.End()
		if i > 0 && i-1 < len(plan.Transitions) {
			in = plan.Transitions[i-1].Start
		}
		if i < len(plan.Transitions) {
			out = plan.Transitions[i].End()
		}

		srcIn, srcOut := plan.SpanStart+in, plan.SpanStart+out
		pieces := resolvePieces(byID[seg.SourceTrackID], srcIn, srcOut, plan.SpanStart)
		covered := lo.SumBy(pieces, func(p models.SourcePiece) float64 { return p.Duration() })

		entries = append(entries, models.PlanEntry{
			Segment:     seg.Index,
			SourceTrack: seg.SourceTrackID,
			TimelineIn:  in,
			TimelineOut: out,
			SourceIn:    srcIn,
			SourceOut:   srcOut,
			Pieces:      pieces,
			Covered:     covered >= (srcOut-srcIn)-coverageTolerance,
		})
	}
	return entries
}

// resolvePieces returns the parts of the track's files that overlap
// [start, end), in time order, as file-relative in/out points.
func resolvePieces(track models.Track, start, end, spanStart float64) []models.SourcePiece {
	var pieces []models.SourcePiece
	for _, seg := range track.Segments {
		if seg.End() <= start || seg.Start >= end {
			continue
		}
		for _, f := range seg.Files {
			fs, ok := f.Start()
			if !ok {
				continue
			}
			fe, _ := f.End()
			if fe <= start || fs >= end {
				continue
			}
			pieces = append(pieces, models.SourcePiece{
				FileID: f.ID,
				Path:   f.Path,
				In:     math.Max(start, fs) - fs,
				Out:    math.Min(end, fe) - fs,
				At:     math.Max(start, fs) - spanStart,
			})
		}
	}
	return pieces
}
