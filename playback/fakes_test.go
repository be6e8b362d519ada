package playback

import (
	"context"
	"sync"
	"time"
)

// fakeHandle is a scripted media element. Events are only delivered when a
// test calls emit.
type fakeHandle struct {
	mu        sync.Mutex
	id        string
	pos       float64
	duration  float64
	muted     bool
	ready     ReadyState
	playErr   error
	block     chan struct{}
	playCalls int
	pauses    int
	seeks     []float64
	subs      map[EventKind]map[int]func(Event)
	nextSub   int
	played    chan struct{}
	aborted   chan struct{}
}

func newFakeHandle(id string, duration float64) *fakeHandle {
	return &fakeHandle{
		id:       id,
		duration: duration,
		ready:    HaveEnoughData,
		subs:     make(map[EventKind]map[int]func(Event)),
		played:   make(chan struct{}, 16),
		aborted:  make(chan struct{}, 16),
	}
}

func (h *fakeHandle) ID() string { return h.id }

func (h *fakeHandle) CurrentTime() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pos
}

func (h *fakeHandle) SetCurrentTime(seconds float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pos = seconds
	h.seeks = append(h.seeks, seconds)
}

func (h *fakeHandle) Duration() float64 { return h.duration }

func (h *fakeHandle) Play(ctx context.Context) error {
	h.mu.Lock()
	h.playCalls++
	err, block := h.playErr, h.block
	h.mu.Unlock()
	select {
	case h.played <- struct{}{}:
	default:
	}

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			h.aborted <- struct{}{}
			return ctx.Err()
		}
	}
	return err
}

func (h *fakeHandle) Pause() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pauses++
}

func (h *fakeHandle) Muted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.muted
}

func (h *fakeHandle) SetMuted(muted bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.muted = muted
}

func (h *fakeHandle) ReadyState() ReadyState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ready
}

func (h *fakeHandle) On(kind EventKind, fn func(Event)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[kind] == nil {
		h.subs[kind] = make(map[int]func(Event))
	}
	id := h.nextSub
	h.nextSub++
	h.subs[kind][id] = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs[kind], id)
	}
}

func (h *fakeHandle) emit(ev Event) {
	ev.HandleID = h.id
	h.mu.Lock()
	var fns []func(Event)
	for _, fn := range h.subs[ev.Kind] {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (h *fakeHandle) set(pos float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pos = pos
}

func (h *fakeHandle) calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.playCalls
}

func (h *fakeHandle) subscribers(kind EventKind) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[kind])
}

// fakeScheduler has a manual clock. Timers fire only when a test calls fire.
type fakeScheduler struct {
	mu        sync.Mutex
	now       time.Time
	scheduled chan *fakeTimer
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{
		now:       time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		scheduled: make(chan *fakeTimer, 16),
	}
}

func (s *fakeScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *fakeScheduler) advance(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = s.now.Add(d)
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	t := &fakeTimer{delay: d, f: f}
	s.scheduled <- t
	return t
}

type fakeTimer struct {
	mu      sync.Mutex
	delay   time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	wasPending := !t.stopped && !t.fired
	t.stopped = true
	return wasPending
}

func (t *fakeTimer) fire() {
	t.mu.Lock()
	if t.stopped || t.fired {
		t.mu.Unlock()
		return
	}
	t.fired = true
	t.mu.Unlock()
	t.f()
}

func (t *fakeTimer) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}
