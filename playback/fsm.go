package playback

// SwitchState is the state of the camera-switch protocol.
type SwitchState int

const (
	Idle SwitchState = iota
	Switching
)

func (s SwitchState) String() string {
	if s == Switching {
		return "switching"
	}
	return "idle"
}

// SwitchEventKind names an input of the switch machine.
type SwitchEventKind int

const (
	SwitchRequested SwitchEventKind = iota + 1
	CanPlay
	PlayResolved
	PlayAborted
	PlayRejected
	Settled
)

// SwitchEvent is an input of the switch machine. Token identifies the
// switch an asynchronous event belongs to; events carrying a token other
// than the machine's are stale and ignored.
type SwitchEvent struct {
	Kind  SwitchEventKind
	Token uint64

	// Set on SwitchRequested.
	Target     string
	From       string
	ShouldPlay bool
	Ready      bool

	// Set on PlayRejected.
	Err error
}

// EffectKind names a side effect the driver must perform.
type EffectKind int

const (
	EffectCancelPending EffectKind = iota + 1
	EffectHandOff
	EffectPlay
	EffectAwaitCanPlay
	EffectStartSettle
	EffectRevert
	EffectPause
	EffectReportFailure
)

// Effect is one side effect produced by a transition.
type Effect struct {
	Kind   EffectKind
	Token  uint64
	Handle string
	Err    error
}

// Machine is the switch machine's state. Previous is the last master that
// completed a switch; a failed switch reverts to it.
type Machine struct {
	State    SwitchState
	Token    uint64
	Target   string
	Previous string
	Awaiting bool
}

type transitionFunc func(m Machine, e SwitchEvent) (Machine, []Effect)

// transitions is the full table; pairs missing from it are ignored.
var transitions = map[SwitchState]map[SwitchEventKind]transitionFunc{
	Idle: {
		SwitchRequested: beginSwitch,
	},
	Switching: {
		SwitchRequested: beginSwitch,
		CanPlay:         playWhenReady,
		PlayResolved:    settleAfterPlay,
		PlayAborted:     settleAfterPlay,
		PlayRejected:    failSwitch,
		Settled:         finishSwitch,
	},
}

// Next applies e to m. It is pure: effects are returned for the caller to
// perform. The boolean is false when the event was ignored, either because
// the table has no entry or because the event is stale.
func Next(m Machine, e SwitchEvent) (Machine, []Effect, bool) {
	fn, ok := transitions[m.State][e.Kind]
	if !ok {
		return m, nil, false
	}
	if e.Kind != SwitchRequested && e.Token != m.Token {
		return m, nil, false
	}
	next, effects := fn(m, e)
	return next, effects, true
}

func beginSwitch(m Machine, e SwitchEvent) (Machine, []Effect) {
	previous := e.From
	if m.State == Switching {
		previous = m.Previous
	}

	next := Machine{State: Switching, Token: e.Token, Target: e.Target, Previous: previous}
	effects := []Effect{
		{Kind: EffectCancelPending, Token: e.Token},
		{Kind: EffectHandOff, Token: e.Token, Handle: e.Target},
	}

	switch {
	case !e.ShouldPlay:
		effects = append(effects, Effect{Kind: EffectStartSettle, Token: e.Token})
	case e.Ready:
		effects = append(effects, Effect{Kind: EffectPlay, Token: e.Token, Handle: e.Target})
	default:
		next.Awaiting = true
		effects = append(effects, Effect{Kind: EffectAwaitCanPlay, Token: e.Token, Handle: e.Target})
	}
	return next, effects
}

func playWhenReady(m Machine, e SwitchEvent) (Machine, []Effect) {
	if !m.Awaiting {
		return m, nil
	}
	m.Awaiting = false
	return m, []Effect{{Kind: EffectPlay, Token: m.Token, Handle: m.Target}}
}

func settleAfterPlay(m Machine, e SwitchEvent) (Machine, []Effect) {
	return m, []Effect{{Kind: EffectStartSettle, Token: m.Token}}
}

func failSwitch(m Machine, e SwitchEvent) (Machine, []Effect) {
	next := Machine{State: Idle, Token: m.Token, Target: m.Previous, Previous: m.Previous}
	return next, []Effect{
		{Kind: EffectCancelPending, Token: m.Token},
		{Kind: EffectRevert, Token: m.Token, Handle: m.Previous},
		{Kind: EffectPause, Token: m.Token},
		{Kind: EffectReportFailure, Token: m.Token, Handle: m.Target, Err: e.Err},
	}
}

func finishSwitch(m Machine, e SwitchEvent) (Machine, []Effect) {
	return Machine{State: Idle, Token: m.Token, Target: m.Target, Previous: m.Target}, nil
}
