package playback

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"multicam/models"
)

// DefaultSettleDelay absorbs handle buffering jitter after a switch.
const DefaultSettleDelay = 100 * time.Millisecond

// StateChange is published whenever the switch machine changes state or a
// switch fails. UIs use it to disable controls mid-switch.
type StateChange struct {
	State    SwitchState
	SwitchID string
	Handle   string
	Err      error
}

// Switcher drives the switch machine: it feeds events into Next and performs
// the returned effects against the synchronizer and the handles.
type Switcher struct {
	mu          sync.Mutex
	machine     Machine
	sync        *Synchronizer
	handles     HandleSource
	sched       Scheduler
	settleDelay time.Duration
	recording   bool
	log         zerolog.Logger

	nextToken uint64
	switchID  string
	listeners []func(StateChange)

	// Pending work of the current switch; cancelled when it is superseded.
	cancelPlay   context.CancelFunc
	settle       Timer
	unsubCanPlay func()
}

// NewSwitcher creates a switcher in the Idle state.
func NewSwitcher(s *Synchronizer, handles HandleSource, sched Scheduler) *Switcher {
	if sched == nil {
		sched = SystemScheduler()
	}
	return &Switcher{
		machine:     Machine{State: Idle, Previous: s.Master()},
		sync:        s,
		handles:     handles,
		sched:       sched,
		settleDelay: DefaultSettleDelay,
		log:         zerolog.Nop(),
	}
}

// SetSettleDelay overrides the settle delay.
func (sw *Switcher) SetSettleDelay(d time.Duration) *Switcher {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.settleDelay = d
	return sw
}

// SetLogger sets the logger.
func (sw *Switcher) SetLogger(log zerolog.Logger) *Switcher {
	sw.log = log
	return sw
}

// SetRecording toggles recording mode. While recording, every switch
// resumes playback regardless of the prior paused state.
func (sw *Switcher) SetRecording(recording bool) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.recording = recording
}

// OnStateChange registers fn for state changes. Listeners run outside the
// switcher's lock.
func (sw *Switcher) OnStateChange(fn func(StateChange)) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.listeners = append(sw.listeners, fn)
}

// State returns the current state of the switch machine.
func (sw *Switcher) State() SwitchState {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.machine.State
}

// SwitchActiveHandle makes id the master handle. The new master is moved to
// the clock's current time; if playback is running (or recording mode is
// on) it is played as soon as it is buffered enough. A switch requested
// while another is in flight supersedes it.
func (sw *Switcher) SwitchActiveHandle(id string) (SwitchState, error) {
	h, ok := sw.handles.Handle(id)
	if !ok {
		return sw.State(), fmt.Errorf("handle %s is not registered", id)
	}
	if !sw.sync.IsAttached(id) {
		return sw.State(), fmt.Errorf("handle %s is not attached", id)
	}

	sw.mu.Lock()
	from := sw.sync.Master()
	if sw.machine.State == Idle && from == id {
		sw.mu.Unlock()
		return Idle, nil
	}

	sw.nextToken++
	sw.switchID = uuid.NewString()
	ev := SwitchEvent{
		Kind:       SwitchRequested,
		Token:      sw.nextToken,
		Target:     id,
		From:       from,
		ShouldPlay: sw.recording || sw.sync.Playing(),
		Ready:      h.ReadyState() >= PlayableReadyState,
	}
	sw.log.Debug().Str("switch", sw.switchID).Str("from", from).Str("to", id).
		Bool("play", ev.ShouldPlay).Bool("ready", ev.Ready).Msg("camera switch requested")

	changes := sw.dispatchLocked(ev)
	state := sw.machine.State
	listeners := slices.Clone(sw.listeners)
	sw.mu.Unlock()

	notify(listeners, changes)
	return state, nil
}

// dispatch feeds an asynchronous event into the machine.
func (sw *Switcher) dispatch(ev SwitchEvent) {
	sw.mu.Lock()
	changes := sw.dispatchLocked(ev)
	listeners := slices.Clone(sw.listeners)
	sw.mu.Unlock()

	notify(listeners, changes)
}

func notify(listeners []func(StateChange), changes []StateChange) {
	for _, c := range changes {
		for _, fn := range listeners {
			fn(c)
		}
	}
}

// dispatchLocked runs one transition and performs its effects.
func (sw *Switcher) dispatchLocked(ev SwitchEvent) []StateChange {
	prevState := sw.machine.State
	next, effects, handled := Next(sw.machine, ev)
	if !handled {
		return nil
	}
	sw.machine = next

	var changes []StateChange
	for _, eff := range effects {
		if c, ok := sw.perform(eff); ok {
			changes = append(changes, c)
		}
	}

	if next.State != prevState || ev.Kind == SwitchRequested {
		changes = append(changes, StateChange{State: next.State, SwitchID: sw.switchID, Handle: next.Target})
	}
	return changes
}

// perform executes one effect. A failure report is returned as a StateChange.
func (sw *Switcher) perform(eff Effect) (StateChange, bool) {
	switch eff.Kind {
	case EffectCancelPending:
		sw.cancelPendingLocked()

	case EffectHandOff:
		if _, err := sw.sync.HandOff(eff.Handle); err != nil {
			sw.log.Error().Str("handle", eff.Handle).Err(err).Msg("hand-off failed")
		}

	case EffectPlay:
		ctx, cancel := context.WithCancel(context.Background())
		sw.cancelPlay = cancel
		token := eff.Token
		go func() {
			err := sw.sync.Play(ctx)
			switch {
			case err == nil:
				sw.dispatch(SwitchEvent{Kind: PlayResolved, Token: token})
			case IsAbort(err):
				sw.dispatch(SwitchEvent{Kind: PlayAborted, Token: token})
			default:
				sw.dispatch(SwitchEvent{Kind: PlayRejected, Token: token, Err: err})
			}
		}()

	case EffectAwaitCanPlay:
		h, ok := sw.handles.Handle(eff.Handle)
		if !ok {
			break
		}
		token, target := eff.Token, eff.Handle
		unsubReady := h.On(EventCanPlay, func(Event) {
			sw.dispatch(SwitchEvent{Kind: CanPlay, Token: token})
		})
		unsubErr := h.On(EventError, func(ev Event) {
			err := ev.Err
			if err == nil {
				err = fmt.Errorf("handle %s failed before it could play", target)
			}
			sw.dispatch(SwitchEvent{Kind: PlayRejected, Token: token, Err: err})
		})
		sw.unsubCanPlay = func() {
			unsubReady()
			unsubErr()
		}

	case EffectStartSettle:
		token := eff.Token
		if sw.settle != nil {
			sw.settle.Stop()
		}
		sw.settle = sw.sched.AfterFunc(sw.settleDelay, func() {
			sw.dispatch(SwitchEvent{Kind: Settled, Token: token})
		})

	case EffectRevert:
		if eff.Handle == "" || !sw.sync.IsAttached(eff.Handle) {
			break
		}
		if _, err := sw.sync.HandOff(eff.Handle); err != nil {
			sw.log.Error().Str("handle", eff.Handle).Err(err).Msg("revert failed")
		}

	case EffectPause:
		sw.sync.Pause()

	case EffectReportFailure:
		err := eff.Err
		if models.KindOf(err) != models.KindPlaybackFailed {
			err = models.NewError(models.KindPlaybackFailed, eff.Handle, err)
		}
		sw.log.Error().Str("switch", sw.switchID).Str("handle", eff.Handle).Err(err).Msg("camera switch failed")
		return StateChange{State: Idle, SwitchID: sw.switchID, Handle: eff.Handle, Err: err}, true
	}
	return StateChange{}, false
}

func (sw *Switcher) cancelPendingLocked() {
	if sw.cancelPlay != nil {
		sw.cancelPlay()
		sw.cancelPlay = nil
	}
	if sw.settle != nil {
		sw.settle.Stop()
		sw.settle = nil
	}
	if sw.unsubCanPlay != nil {
		sw.unsubCanPlay()
		sw.unsubCanPlay = nil
	}
}
