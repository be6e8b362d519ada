package playback

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"multicam/clock"
	"multicam/models"
)

const (
	// DefaultDriftEpsilon is the largest follower drift in seconds tolerated
	// during free playback before a corrective seek.
	DefaultDriftEpsilon = 0.1

	// DefaultUpdateInterval throttles clock updates from the master (~60Hz).
	DefaultUpdateInterval = 16 * time.Millisecond

	// DefaultEndEpsilon is how far before its end a finished handle is parked.
	DefaultEndEpsilon = 0.05
)

// Options tune the synchronizer.
type Options struct {
	DriftEpsilon   float64
	UpdateInterval time.Duration
	// Changes below the noise floor are ignored. Media shorter than
	// ShortMediaDuration uses NoiseFloor, longer media LongMediaNoiseFloor.
	NoiseFloor          float64
	LongMediaNoiseFloor float64
	ShortMediaDuration  float64
	EndEpsilon          float64
	// SeekGrace keeps ticks gated for a while after a seek has landed.
	SeekGrace time.Duration
	// SeekTimeout lifts the seek gate when the master never confirms.
	SeekTimeout time.Duration
}

// DefaultOptions returns the canonical thresholds.
func DefaultOptions() Options {
	return Options{
		DriftEpsilon:        DefaultDriftEpsilon,
		UpdateInterval:      DefaultUpdateInterval,
		NoiseFloor:          0.001,
		LongMediaNoiseFloor: 0.01,
		ShortMediaDuration:  10,
		EndEpsilon:          DefaultEndEpsilon,
		SeekGrace:           100 * time.Millisecond,
		SeekTimeout:         time.Second,
	}
}

// SyncState is the per-handle bookkeeping of the synchronizer. Origin is the
// absolute start of the handle's media and converts between the handle's
// own 0-based time and an absolute clock.
type SyncState struct {
	IsMaster         bool
	LastObservedTime float64
	LastPushTime     time.Time
	Origin           float64
	Ended            bool
}

// TickResult says what AdvanceClock did with an observation.
type TickResult string

const (
	TickApplied       TickResult = "applied"
	TickFollower      TickResult = "follower"
	TickSeekInFlight  TickResult = "seek-in-flight"
	TickThrottled     TickResult = "throttled"
	TickNoise         TickResult = "noise"
	TickInvalid       TickResult = "invalid"
	TickUnknownHandle TickResult = "unknown-handle"
)

// Correction records a forced position change on one handle.
type Correction struct {
	HandleID string
	From     float64
	To       float64
	Reason   string
}

// ClockUpdate is the outcome of AdvanceClock.
type ClockUpdate struct {
	Result      TickResult
	Time        clock.Time
	Corrections []Correction
}

// Applied reports whether the observation moved the clock.
func (u ClockUpdate) Applied() bool {
	return u.Result == TickApplied
}

type seekGate struct {
	target     clock.Time
	deadline   time.Time
	confirmed  bool
	graceUntil time.Time
}

// Synchronizer keeps every attached handle within the drift epsilon of the
// clock. The master handle's ticks advance the clock; followers are only
// corrected when they drift too far. It reads handles through a
// HandleSource and never adds or removes registry entries.
//
// Clock listeners run while the synchronizer holds its lock and must not
// call back into it.
type Synchronizer struct {
	mu      sync.Mutex
	clock   *clock.Clock
	handles HandleSource
	sched   Scheduler
	opts    Options
	log     zerolog.Logger

	rep      clock.Representation
	states   map[string]*SyncState
	attached []string
	unbind   map[string][]func()
	master   string
	playing  bool
	seek     *seekGate
	lastTick time.Time

	// cancels resumes started by the last push
	cancelResume context.CancelFunc
}

// NewSynchronizer creates a synchronizer in relative mode.
func NewSynchronizer(c *clock.Clock, handles HandleSource, sched Scheduler, opts Options) *Synchronizer {
	if sched == nil {
		sched = SystemScheduler()
	}
	return &Synchronizer{
		clock:   c,
		handles: handles,
		sched:   sched,
		opts:    opts,
		log:     zerolog.Nop(),
		rep:     clock.Relative,
		states:  make(map[string]*SyncState),
		unbind:  make(map[string][]func()),
	}
}

// SetLogger sets the logger.
func (s *Synchronizer) SetLogger(log zerolog.Logger) *Synchronizer {
	s.log = log
	return s
}

// SetRepresentation chooses how clock values are expressed. Absolute mode
// is used when handles play files from different start times of one
// session; each handle's Origin then maps its position onto the clock.
func (s *Synchronizer) SetRepresentation(rep clock.Representation) *Synchronizer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rep = rep
	return s
}

// Representation returns the clock representation in use.
func (s *Synchronizer) Representation() clock.Representation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rep
}

// Clock returns the clock driven by the synchronizer.
func (s *Synchronizer) Clock() *clock.Clock {
	return s.clock
}

// Attach starts synchronizing the registered handle id. origin is the
// absolute start of its media (0 in relative mode). The first attached
// handle becomes master.
func (s *Synchronizer) Attach(id string, origin float64) error {
	h, ok := s.handles.Handle(id)
	if !ok {
		return fmt.Errorf("handle %s is not registered", id)
	}

	s.mu.Lock()
	if _, exists := s.states[id]; exists {
		s.mu.Unlock()
		return fmt.Errorf("handle %s already attached", id)
	}
	s.states[id] = &SyncState{Origin: origin}
	s.attached = append(s.attached, id)
	if s.master == "" {
		s.setMasterLocked(id)
	} else {
		s.applyMutePolicyLocked()
	}
	s.mu.Unlock()

	s.bind(h)
	return nil
}

// bind subscribes to the handle's events.
func (s *Synchronizer) bind(h Handle) {
	id := h.ID()
	unsubs := []func(){
		h.On(EventTimeUpdate, func(ev Event) { s.AdvanceClock(id, ev.Time) }),
		h.On(EventEnded, func(Event) { s.handleEnded(id) }),
		h.On(EventError, func(ev Event) {
			s.log.Error().Str("handle", id).Err(ev.Err).Msg("handle reported an error")
		}),
	}

	s.mu.Lock()
	s.unbind[id] = unsubs
	s.mu.Unlock()
}

// Detach stops synchronizing id. If it was master, the next attached handle
// takes over.
func (s *Synchronizer) Detach(id string) {
	s.mu.Lock()
	unsubs := s.unbind[id]
	delete(s.unbind, id)
	delete(s.states, id)
	for i, a := range s.attached {
		if a == id {
			s.attached = append(s.attached[:i], s.attached[i+1:]...)
			break
		}
	}
	if s.master == id {
		s.master = ""
		if len(s.attached) > 0 {
			s.setMasterLocked(s.attached[0])
		}
	}
	s.mu.Unlock()

	for _, fn := range unsubs {
		fn()
	}
}

// Master returns the id of the master handle, or "" when nothing is attached.
func (s *Synchronizer) Master() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.master
}

// IsAttached reports whether id is being synchronized.
func (s *Synchronizer) IsAttached(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.states[id]
	return ok
}

// Playing reports whether free playback is active.
func (s *Synchronizer) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// State returns a copy of the sync state of id.
func (s *Synchronizer) State(id string) (SyncState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[id]
	if !ok {
		return SyncState{}, false
	}
	return *st, true
}

// SetMaster designates id as the time source without moving any handle.
func (s *Synchronizer) SetMaster(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.states[id]; !ok {
		return fmt.Errorf("handle %s is not attached", id)
	}
	s.setMasterLocked(id)
	return nil
}

func (s *Synchronizer) setMasterLocked(id string) {
	s.master = id
	for hid, st := range s.states {
		st.IsMaster = hid == id
	}
	s.applyMutePolicyLocked()
}

// applyMutePolicyLocked unmutes the primary handle and mutes every other one.
// The primary is the master, or the first attached handle when there is none.
func (s *Synchronizer) applyMutePolicyLocked() {
	primary := s.master
	if primary == "" && len(s.attached) > 0 {
		primary = s.attached[0]
	}
	for _, id := range s.attached {
		if h, ok := s.handles.Handle(id); ok {
			h.SetMuted(id != primary)
		}
	}
}

// HandOff makes id master and forces its position to the clock's current
// value rather than deriving the clock from the new handle. Every other
// handle is pushed to the same time.
func (s *Synchronizer) HandOff(id string) (clock.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.states[id]; !ok {
		return clock.Time{}, fmt.Errorf("handle %s is not attached", id)
	}
	s.setMasterLocked(id)

	now := s.clock.Get()
	if _, err := s.clock.SetTime(now, clock.SourceCameraSwitch, ""); err != nil {
		return now, err
	}
	s.pushAllLocked(now)
	return now, nil
}

// RequestSeek moves the clock to value and pushes every handle there. A
// value in the other representation is converted through the master's
// origin. Invalid values leave the clock unchanged and return InvalidTime.
func (s *Synchronizer) RequestSeek(value float64, rep clock.Representation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := clock.Of(value, rep)
	if rep != s.rep {
		origin := 0.0
		if st, ok := s.states[s.master]; ok {
			origin = st.Origin
		}
		t = t.In(s.rep, origin)
	}

	if _, err := s.clock.SetTime(t, clock.SourceUserSeek, ""); err != nil {
		return err
	}
	s.pushAllLocked(t)
	return nil
}

// pushAllLocked forces every attached handle to t and gates ticks until the
// master confirms the new position.
func (s *Synchronizer) pushAllLocked(t clock.Time) []Correction {
	now := s.sched.Now()
	var corrections []Correction

	s.cancelResumeLocked()
	var resumeCtx context.Context

	for _, id := range s.attached {
		h, ok := s.handles.Handle(id)
		if !ok {
			continue
		}
		st := s.states[id]
		target, ended := s.targetFor(h, st, t)
		from := h.CurrentTime()
		h.SetCurrentTime(target)
		st.LastPushTime = now

		if st.Ended && !ended && s.playing {
			if resumeCtx == nil {
				resumeCtx, s.cancelResume = context.WithCancel(context.Background())
			}
			go s.resume(resumeCtx, h)
		}
		st.Ended = ended
		corrections = append(corrections, Correction{HandleID: id, From: from, To: target, Reason: "push"})
	}

	s.seek = &seekGate{target: t, deadline: now.Add(s.opts.SeekTimeout)}
	return corrections
}

// resume restarts a handle that had frozen at its end. ctx is cancelled by
// the next push or by Pause.
func (s *Synchronizer) resume(ctx context.Context, h Handle) {
	if err := h.Play(ctx); err != nil && !IsAbort(err) {
		s.log.Warn().Str("handle", h.ID()).Err(err).Msg("resume after seek failed")
	}
}

func (s *Synchronizer) cancelResumeLocked() {
	if s.cancelResume != nil {
		s.cancelResume()
		s.cancelResume = nil
	}
}

// AdvanceClock processes a position report from a handle.
//
// Only the master moves the clock. Reports are discarded while a seek is in
// flight, more often than the update interval, or when the change is below
// the noise floor. After an accepted tick every follower whose drift
// exceeds the epsilon is moved; the reporting handle itself is never
// corrected.
func (s *Synchronizer) AdvanceClock(handleID string, observed float64) ClockUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[handleID]
	if !ok {
		return ClockUpdate{Result: TickUnknownHandle, Time: s.clock.Get()}
	}
	st.LastObservedTime = observed

	if handleID != s.master {
		return ClockUpdate{Result: TickFollower, Time: s.clock.Get()}
	}

	now := s.sched.Now()
	if s.gatedLocked(handleID, st, observed, now) {
		return ClockUpdate{Result: TickSeekInFlight, Time: s.clock.Get()}
	}

	if !s.lastTick.IsZero() && now.Sub(s.lastTick) < s.opts.UpdateInterval {
		return ClockUpdate{Result: TickThrottled, Time: s.clock.Get()}
	}

	current := s.clock.Get()
	next := s.toClock(st, observed)
	if delta, err := next.Sub(current); err == nil && math.Abs(delta) < s.noiseFloor(handleID) {
		return ClockUpdate{Result: TickNoise, Time: current}
	}

	u, err := s.clock.SetTime(next, clock.SourcePlaybackTick, handleID)
	if err != nil {
		return ClockUpdate{Result: TickInvalid, Time: u.Time}
	}
	s.lastTick = now
	st.LastPushTime = now

	return ClockUpdate{
		Result:      TickApplied,
		Time:        next,
		Corrections: s.correctFollowersLocked(next, handleID),
	}
}

// gatedLocked applies the seek gate to a master observation.
func (s *Synchronizer) gatedLocked(id string, st *SyncState, observed float64, now time.Time) bool {
	gate := s.seek
	if gate == nil {
		return false
	}

	if !gate.confirmed {
		if now.After(gate.deadline) {
			s.log.Warn().Str("target", gate.target.String()).Msg("seek was never confirmed, releasing gate")
			s.seek = nil
			return false
		}
		expected := gate.target.ToRelative(st.Origin).Seconds()
		if h, ok := s.handles.Handle(id); ok {
			expected, _ = s.targetFor(h, st, gate.target)
		}
		if math.Abs(observed-expected) <= s.opts.DriftEpsilon {
			gate.confirmed = true
			gate.graceUntil = now.Add(s.opts.SeekGrace)
		}
		return true
	}

	if now.Before(gate.graceUntil) {
		return true
	}
	s.seek = nil
	return false
}

// correctFollowersLocked performs soft drift correction after a tick.
func (s *Synchronizer) correctFollowersLocked(t clock.Time, producer string) []Correction {
	var corrections []Correction

	for _, id := range s.attached {
		if id == producer {
			continue
		}
		h, ok := s.handles.Handle(id)
		if !ok {
			continue
		}
		st := s.states[id]
		target, ended := s.targetFor(h, st, t)
		pos := h.CurrentTime()

		if ended {
			if !st.Ended || math.Abs(pos-target) > s.opts.DriftEpsilon {
				h.SetCurrentTime(target)
				corrections = append(corrections, Correction{HandleID: id, From: pos, To: target, Reason: "end-of-media"})
			}
			st.Ended = true
			continue
		}

		drift := math.Abs(pos - target)
		if drift <= s.opts.DriftEpsilon {
			continue
		}
		h.SetCurrentTime(target)
		st.LastPushTime = s.sched.Now()
		corrections = append(corrections, Correction{HandleID: id, From: pos, To: target, Reason: "drift"})

		diag := models.NewError(models.KindDriftExceeded, id, fmt.Errorf("drift %.3fs", drift))
		s.log.Debug().Str("handle", id).Float64("drift", drift).Err(diag).Msg("follower resynced")
	}
	return corrections
}

// targetFor converts t into the handle's own time, parking it just before
// the end when the clock has run past the media. Positions before the
// media's start clamp to zero.
func (s *Synchronizer) targetFor(h Handle, st *SyncState, t clock.Time) (float64, bool) {
	target := t.ToRelative(st.Origin).Seconds()
	if target < 0 {
		target = 0
	}
	if d := h.Duration(); d > 0 && target >= d-s.opts.EndEpsilon {
		return math.Max(0, d-s.opts.EndEpsilon), true
	}
	return target, false
}

// toClock converts a handle position into a clock value.
func (s *Synchronizer) toClock(st *SyncState, observed float64) clock.Time {
	rel := clock.RelativeTime(observed)
	if s.rep == clock.Absolute {
		return rel.ToAbsolute(st.Origin)
	}
	return rel
}

func (s *Synchronizer) noiseFloor(id string) float64 {
	if h, ok := s.handles.Handle(id); ok && h.Duration() > 0 && h.Duration() < s.opts.ShortMediaDuration {
		return s.opts.NoiseFloor
	}
	return s.opts.LongMediaNoiseFloor
}

// handleEnded reacts to a handle reaching its natural end. A follower is
// parked on its last frame. When the master ends while another handle still
// has media, that handle becomes master so the clock keeps advancing;
// otherwise playback stops.
func (s *Synchronizer) handleEnded(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[id]
	if !ok {
		return
	}
	h, ok := s.handles.Handle(id)
	if !ok {
		return
	}

	st.Ended = true
	h.SetCurrentTime(math.Max(0, h.Duration()-s.opts.EndEpsilon))

	if id != s.master || !s.playing {
		return
	}

	now := s.clock.Get()
	best, bestRemaining := "", s.opts.EndEpsilon
	for _, other := range s.attached {
		if other == id {
			continue
		}
		oh, ok := s.handles.Handle(other)
		if !ok {
			continue
		}
		ost := s.states[other]
		pos := now.ToRelative(ost.Origin).Seconds()
		if remaining := oh.Duration() - pos; remaining > bestRemaining {
			best, bestRemaining = other, remaining
		}
	}

	if best == "" {
		s.playing = false
		s.log.Info().Str("handle", id).Msg("all handles ended, playback stopped")
		return
	}
	s.log.Info().Str("from", id).Str("to", best).Msg("master ended, promoting handle with remaining media")
	s.setMasterLocked(best)
}

// Play starts every attached handle that has not ended and returns the
// master's play result. An aborted attempt is returned as-is so callers can
// tell it apart with IsAbort; other failures are wrapped as PlaybackFailed.
func (s *Synchronizer) Play(ctx context.Context) error {
	s.mu.Lock()
	s.playing = true
	master := s.master
	var targets []Handle
	for _, id := range s.attached {
		if s.states[id].Ended {
			continue
		}
		if h, ok := s.handles.Handle(id); ok {
			targets = append(targets, h)
		}
	}
	s.mu.Unlock()

	var (
		wg        sync.WaitGroup
		masterErr error
	)
	for _, h := range targets {
		wg.Add(1)
		go func(h Handle) {
			defer wg.Done()
			err := h.Play(ctx)
			if h.ID() == master {
				masterErr = err
				return
			}
			if err != nil && !IsAbort(err) {
				s.log.Warn().Str("handle", h.ID()).Err(err).Msg("follower failed to play")
			}
		}(h)
	}
	wg.Wait()

	if masterErr != nil && !IsAbort(masterErr) {
		return models.NewError(models.KindPlaybackFailed, master, masterErr)
	}
	return masterErr
}

// Pause stops free playback on every attached handle.
func (s *Synchronizer) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.playing = false
	s.cancelResumeLocked()
	for _, id := range s.attached {
		if h, ok := s.handles.Handle(id); ok {
			h.Pause()
		}
	}
}
