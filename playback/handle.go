// Package playback keeps a set of independently buffering media handles in
// step with the playback clock and coordinates camera switches between them.
package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ReadyState mirrors the buffering levels a media element reports.
type ReadyState int

const (
	HaveNothing ReadyState = iota
	HaveMetadata
	HaveCurrentData
	HaveFutureData
	HaveEnoughData
)

// PlayableReadyState is the lowest state at which a play attempt is made
// immediately; below it the attempt waits for a canplay event.
const PlayableReadyState = HaveFutureData

// EventKind names a handle event.
type EventKind string

const (
	EventTimeUpdate     EventKind = "timeupdate"
	EventLoadedMetadata EventKind = "loadedmetadata"
	EventEnded          EventKind = "ended"
	EventError          EventKind = "error"
	EventCanPlay        EventKind = "canplay"
)

// Event is delivered to handle subscribers. Time is the handle's position
// for timeupdate events; Err is set for error events.
type Event struct {
	Kind     EventKind
	HandleID string
	Time     float64
	Err      error
}

// ErrPlayAborted is returned by Handle.Play when the attempt was interrupted
// by a newer pause, load or seek. It is expected during rapid switching.
var ErrPlayAborted = errors.New("play request aborted")

// IsAbort reports whether err is an expected play interruption.
func IsAbort(err error) bool {
	return errors.Is(err, ErrPlayAborted) || errors.Is(err, context.Canceled)
}

// Handle is a playable media element. What decodes the media behind it is
// not the engine's concern.
//
// Implementations must not deliver events synchronously from inside
// SetCurrentTime, Pause, SetMuted or Play; the synchronizer calls those while
// holding its own lock.
type Handle interface {
	ID() string
	CurrentTime() float64
	SetCurrentTime(seconds float64)
	Duration() float64
	// Play starts playback and blocks until the attempt resolves or fails.
	Play(ctx context.Context) error
	Pause()
	Muted() bool
	SetMuted(muted bool)
	ReadyState() ReadyState
	// On subscribes fn to events of the given kind and returns a function
	// that removes the subscription.
	On(kind EventKind, fn func(Event)) (unsubscribe func())
}

// HandleSource is the read-only view of the handle registry given to the
// synchronizer and switcher.
type HandleSource interface {
	Handle(id string) (Handle, bool)
	Handles() []Handle
}

// Registry maps handle ids to handles. It is owned by whatever creates and
// destroys handles; everything else sees it as a HandleSource.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]Handle
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]Handle)}
}

// Register adds h. Ids must be unique.
func (r *Registry) Register(h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := h.ID()
	if id == "" {
		return fmt.Errorf("handle id cannot be empty")
	}
	if _, exists := r.byID[id]; exists {
		return fmt.Errorf("handle %s already registered", id)
	}
	r.byID[id] = h
	r.order = append(r.order, id)
	return nil
}

// Unregister removes the handle and reports whether it was present.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[id]; !exists {
		return false
	}
	delete(r.byID, id)
	for i, o := range r.order {
		if o == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Handle returns the handle registered under id.
func (r *Registry) Handle(id string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byID[id]
	return h, ok
}

// Handles returns all handles in registration order.
func (r *Registry) Handles() []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Handle, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Len returns the number of registered handles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Timer is a pending callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// Scheduler supplies wall-clock time and timers, so tests can drive both.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type systemScheduler struct{}

func (systemScheduler) Now() time.Time { return time.Now() }

func (systemScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SystemScheduler returns a Scheduler backed by the time package.
func SystemScheduler() Scheduler {
	return systemScheduler{}
}
