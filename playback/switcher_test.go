package playback

import (
	"context"
	"errors"
	"testing"
	"time"

	"multicam/models"
)

func effectKinds(effects []Effect) []EffectKind {
	kinds := make([]EffectKind, len(effects))
	for i, e := range effects {
		kinds[i] = e.Kind
	}
	return kinds
}

func sameKinds(a, b []EffectKind) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNext_Transitions(t *testing.T) {
	idle := Machine{State: Idle, Token: 1, Target: "a", Previous: "a"}
	switching := Machine{State: Switching, Token: 2, Target: "b", Previous: "a"}
	awaiting := switching
	awaiting.Awaiting = true

	tests := []struct {
		name      string
		machine   Machine
		event     SwitchEvent
		handled   bool
		state     SwitchState
		effects   []EffectKind
		checkNext func(t *testing.T, m Machine)
	}{
		{
			name:    "paused switch settles without playing",
			machine: idle,
			event:   SwitchEvent{Kind: SwitchRequested, Token: 2, Target: "b", From: "a"},
			handled: true,
			state:   Switching,
			effects: []EffectKind{EffectCancelPending, EffectHandOff, EffectStartSettle},
		},
		{
			name:    "ready target plays immediately",
			machine: idle,
			event:   SwitchEvent{Kind: SwitchRequested, Token: 2, Target: "b", From: "a", ShouldPlay: true, Ready: true},
			handled: true,
			state:   Switching,
			effects: []EffectKind{EffectCancelPending, EffectHandOff, EffectPlay},
		},
		{
			name:    "unready target waits for canplay",
			machine: idle,
			event:   SwitchEvent{Kind: SwitchRequested, Token: 2, Target: "b", From: "a", ShouldPlay: true},
			handled: true,
			state:   Switching,
			effects: []EffectKind{EffectCancelPending, EffectHandOff, EffectAwaitCanPlay},
			checkNext: func(t *testing.T, m Machine) {
				if !m.Awaiting {
					t.Error("Expected machine to await canplay")
				}
			},
		},
		{
			name:    "superseding switch keeps the last completed master",
			machine: switching,
			event:   SwitchEvent{Kind: SwitchRequested, Token: 3, Target: "c", From: "b"},
			handled: true,
			state:   Switching,
			effects: []EffectKind{EffectCancelPending, EffectHandOff, EffectStartSettle},
			checkNext: func(t *testing.T, m Machine) {
				if m.Previous != "a" || m.Target != "c" || m.Token != 3 {
					t.Errorf("Unexpected machine %+v", m)
				}
			},
		},
		{
			name:    "canplay starts the deferred play",
			machine: awaiting,
			event:   SwitchEvent{Kind: CanPlay, Token: 2},
			handled: true,
			state:   Switching,
			effects: []EffectKind{EffectPlay},
		},
		{
			name:    "duplicate canplay does nothing",
			machine: switching,
			event:   SwitchEvent{Kind: CanPlay, Token: 2},
			handled: true,
			state:   Switching,
			effects: nil,
		},
		{
			name:    "resolved play starts the settle timer",
			machine: switching,
			event:   SwitchEvent{Kind: PlayResolved, Token: 2},
			handled: true,
			state:   Switching,
			effects: []EffectKind{EffectStartSettle},
		},
		{
			name:    "aborted play is swallowed",
			machine: switching,
			event:   SwitchEvent{Kind: PlayAborted, Token: 2},
			handled: true,
			state:   Switching,
			effects: []EffectKind{EffectStartSettle},
		},
		{
			name:    "rejected play reverts",
			machine: switching,
			event:   SwitchEvent{Kind: PlayRejected, Token: 2, Err: errors.New("denied")},
			handled: true,
			state:   Idle,
			effects: []EffectKind{EffectCancelPending, EffectRevert, EffectPause, EffectReportFailure},
			checkNext: func(t *testing.T, m Machine) {
				if m.Target != "a" {
					t.Errorf("Expected target reverted to a, got %s", m.Target)
				}
			},
		},
		{
			name:    "settle returns to idle",
			machine: switching,
			event:   SwitchEvent{Kind: Settled, Token: 2},
			handled: true,
			state:   Idle,
			effects: nil,
			checkNext: func(t *testing.T, m Machine) {
				if m.Previous != "b" {
					t.Errorf("Expected b recorded as completed master, got %s", m.Previous)
				}
			},
		},
		{
			name:    "stale settle is ignored",
			machine: switching,
			event:   SwitchEvent{Kind: Settled, Token: 1},
			handled: false,
			state:   Switching,
		},
		{
			name:    "stale rejection is ignored",
			machine: switching,
			event:   SwitchEvent{Kind: PlayRejected, Token: 1},
			handled: false,
			state:   Switching,
		},
		{
			name:    "play result while idle is ignored",
			machine: idle,
			event:   SwitchEvent{Kind: PlayResolved, Token: 1},
			handled: false,
			state:   Idle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, effects, handled := Next(tt.machine, tt.event)
			if handled != tt.handled {
				t.Fatalf("Expected handled=%v, got %v", tt.handled, handled)
			}
			if next.State != tt.state {
				t.Errorf("Expected state %s, got %s", tt.state, next.State)
			}
			if !sameKinds(effectKinds(effects), tt.effects) {
				t.Errorf("Expected effects %v, got %v", tt.effects, effectKinds(effects))
			}
			if tt.checkNext != nil {
				tt.checkNext(t, next)
			}
		})
	}
}

type switchFixture struct {
	*syncFixture
	sw      *Switcher
	changes chan StateChange
}

func newSwitchFixture(t *testing.T, durations ...float64) *switchFixture {
	t.Helper()
	f := &switchFixture{syncFixture: newSyncFixture(t, durations...), changes: make(chan StateChange, 32)}
	f.sw = NewSwitcher(f.sync, f.reg, f.sched)
	f.sw.OnStateChange(func(c StateChange) { f.changes <- c })
	return f
}

// startPlaying puts the synchronizer into free playback and drains the
// resulting play calls.
func (f *switchFixture) startPlaying(t *testing.T) {
	t.Helper()
	if err := f.sync.Play(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	for _, h := range f.handles {
		<-h.played
	}
}

func (f *switchFixture) awaitTimer(t *testing.T) *fakeTimer {
	t.Helper()
	select {
	case tm := <-f.sched.scheduled:
		return tm
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for the settle timer")
		return nil
	}
}

func (f *switchFixture) awaitChange(t *testing.T, match func(StateChange) bool) StateChange {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case c := <-f.changes:
			if match(c) {
				return c
			}
		case <-deadline:
			t.Fatal("Timed out waiting for state change")
			return StateChange{}
		}
	}
}

func TestSwitchActiveHandle_WhilePaused(t *testing.T) {
	f := newSwitchFixture(t, 100, 100)
	f.tick("cam-a", 12)
	f.handles["cam-b"].set(3)

	state, err := f.sw.SwitchActiveHandle("cam-b")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if state != Switching {
		t.Errorf("Expected switching, got %s", state)
	}
	if f.sync.Master() != "cam-b" {
		t.Errorf("Expected cam-b master, got %s", f.sync.Master())
	}
	if f.handles["cam-b"].CurrentTime() != 12 {
		t.Errorf("Expected cam-b at the clock's time, got %f", f.handles["cam-b"].CurrentTime())
	}
	if f.handles["cam-b"].calls() != 0 {
		t.Error("Paused switch must not start playback")
	}

	tm := f.awaitTimer(t)
	if tm.delay != DefaultSettleDelay {
		t.Errorf("Expected %s settle delay, got %s", DefaultSettleDelay, tm.delay)
	}
	tm.fire()
	if f.sw.State() != Idle {
		t.Errorf("Expected idle after settle, got %s", f.sw.State())
	}
}

func TestSwitchActiveHandle_NoOpForCurrentMaster(t *testing.T) {
	f := newSwitchFixture(t, 100, 100)

	state, err := f.sw.SwitchActiveHandle("cam-a")
	if err != nil || state != Idle {
		t.Errorf("Expected idle no-op, got %s (%v)", state, err)
	}
	if _, err := f.sw.SwitchActiveHandle("ghost"); err == nil {
		t.Error("Expected error for unknown handle")
	}
}

func TestSwitchActiveHandle_WhilePlaying(t *testing.T) {
	f := newSwitchFixture(t, 100, 100)
	f.startPlaying(t)

	if _, err := f.sw.SwitchActiveHandle("cam-b"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	<-f.handles["cam-b"].played

	f.awaitTimer(t).fire()
	c := f.awaitChange(t, func(c StateChange) bool { return c.State == Idle })
	if c.Err != nil {
		t.Errorf("Unexpected error: %v", c.Err)
	}
	if f.sync.Master() != "cam-b" || !f.sync.Playing() {
		t.Errorf("Expected cam-b playing as master, got %s playing=%v", f.sync.Master(), f.sync.Playing())
	}
}

func TestSwitchActiveHandle_RecordingForcesPlay(t *testing.T) {
	f := newSwitchFixture(t, 100, 100)
	f.sw.SetRecording(true)

	if _, err := f.sw.SwitchActiveHandle("cam-b"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	select {
	case <-f.handles["cam-b"].played:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected recording mode to resume playback")
	}
	f.awaitTimer(t).fire()
	f.awaitChange(t, func(c StateChange) bool { return c.State == Idle })
}

func TestSwitchActiveHandle_AbortIsSwallowed(t *testing.T) {
	f := newSwitchFixture(t, 100, 100)
	f.startPlaying(t)
	f.handles["cam-b"].playErr = ErrPlayAborted

	if _, err := f.sw.SwitchActiveHandle("cam-b"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	f.awaitTimer(t).fire()

	c := f.awaitChange(t, func(c StateChange) bool { return c.State == Idle })
	if c.Err != nil {
		t.Errorf("Abort must not be reported, got %v", c.Err)
	}
	if f.sync.Master() != "cam-b" {
		t.Errorf("Expected cam-b to stay master, got %s", f.sync.Master())
	}
}

func TestSwitchActiveHandle_RejectionReverts(t *testing.T) {
	f := newSwitchFixture(t, 100, 100)
	f.startPlaying(t)
	f.handles["cam-b"].playErr = errors.New("autoplay denied")

	if _, err := f.sw.SwitchActiveHandle("cam-b"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	c := f.awaitChange(t, func(c StateChange) bool { return c.Err != nil })
	if !errors.Is(c.Err, models.ErrPlaybackFailed) {
		t.Errorf("Expected PlaybackFailed, got %v", c.Err)
	}
	if c.Handle != "cam-b" {
		t.Errorf("Expected failure attributed to cam-b, got %s", c.Handle)
	}
	if f.sw.State() != Idle {
		t.Errorf("Expected idle after failure, got %s", f.sw.State())
	}
	if f.sync.Master() != "cam-a" {
		t.Errorf("Expected master reverted to cam-a, got %s", f.sync.Master())
	}
	if f.sync.Playing() {
		t.Error("Expected playback paused after failure")
	}
}

func TestSwitchActiveHandle_SupersededSwitchIsCancelled(t *testing.T) {
	f := newSwitchFixture(t, 100, 100, 100)
	f.startPlaying(t)
	b := f.handles["cam-b"]
	b.block = make(chan struct{})

	if _, err := f.sw.SwitchActiveHandle("cam-b"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	<-b.played

	if _, err := f.sw.SwitchActiveHandle("cam-c"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	close(b.block)

	f.awaitTimer(t).fire()
	c := f.awaitChange(t, func(c StateChange) bool { return c.State == Idle })
	if c.Err != nil {
		t.Errorf("Superseded switch must not report an error, got %v", c.Err)
	}
	if c.Handle != "cam-c" || f.sync.Master() != "cam-c" {
		t.Errorf("Expected cam-c master, got %s / %s", c.Handle, f.sync.Master())
	}
}

func TestSwitchActiveHandle_WaitsForCanPlay(t *testing.T) {
	f := newSwitchFixture(t, 100, 100)
	f.startPlaying(t)
	b := f.handles["cam-b"]
	b.ready = HaveMetadata

	state, err := f.sw.SwitchActiveHandle("cam-b")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if state != Switching {
		t.Errorf("Expected switching, got %s", state)
	}
	if b.calls() != 1 {
		t.Errorf("Expected no play before canplay, got %d calls", b.calls())
	}
	if b.subscribers(EventCanPlay) != 1 {
		t.Fatalf("Expected a canplay subscription, got %d", b.subscribers(EventCanPlay))
	}

	b.emit(Event{Kind: EventCanPlay})
	<-b.played

	tm := f.awaitTimer(t)
	tm.fire()
	f.awaitChange(t, func(c StateChange) bool { return c.State == Idle })
}

func TestSwitchActiveHandle_StaleSettleTimerStopped(t *testing.T) {
	f := newSwitchFixture(t, 100, 100, 100)

	if _, err := f.sw.SwitchActiveHandle("cam-b"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	first := f.awaitTimer(t)

	if _, err := f.sw.SwitchActiveHandle("cam-c"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	second := f.awaitTimer(t)

	if !first.isStopped() {
		t.Error("Expected the superseded settle timer to be stopped")
	}
	first.fire()
	if f.sw.State() != Switching {
		t.Error("A stopped timer must not finish the switch")
	}
	second.fire()
	if f.sw.State() != Idle {
		t.Errorf("Expected idle, got %s", f.sw.State())
	}
}

func TestSwitchActiveHandle_ErrorWhileWaitingReverts(t *testing.T) {
	f := newSwitchFixture(t, 100, 100)
	f.startPlaying(t)
	b := f.handles["cam-b"]
	b.ready = HaveMetadata

	if _, err := f.sw.SwitchActiveHandle("cam-b"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	b.emit(Event{Kind: EventError, Err: errors.New("decode error")})

	c := f.awaitChange(t, func(c StateChange) bool { return c.Err != nil })
	if !errors.Is(c.Err, models.ErrPlaybackFailed) {
		t.Errorf("Expected PlaybackFailed, got %v", c.Err)
	}
	if f.sw.State() != Idle {
		t.Errorf("Expected idle after failure, got %s", f.sw.State())
	}
	if f.sync.Master() != "cam-a" {
		t.Errorf("Expected master reverted to cam-a, got %s", f.sync.Master())
	}
	if b.subscribers(EventCanPlay) != 0 {
		t.Errorf("Expected canplay subscription released, got %d", b.subscribers(EventCanPlay))
	}

	// A late canplay for the failed switch is ignored
	b.emit(Event{Kind: EventCanPlay})
	if b.calls() != 1 {
		t.Errorf("Expected no play after failure, got %d calls", b.calls())
	}
}
