package clock

import (
	"sync"

	"github.com/rs/zerolog"

	"multicam/models"
)

// Source records who wrote a clock value.
type Source string

const (
	SourceUserSeek     Source = "user-seek"
	SourcePlaybackTick Source = "playback-tick"
	SourceCameraSwitch Source = "camera-switch"
)

// IsAuthoritative reports whether writes from s must be pushed to every
// handle. Playback ticks are passive reports and are never pushed back.
func (s Source) IsAuthoritative() bool {
	return s == SourceUserSeek || s == SourceCameraSwitch
}

// Update describes one accepted clock write.
type Update struct {
	Time     Time
	Previous Time
	Source   Source
	// HandleID is the handle that produced a playback tick; empty otherwise.
	HandleID string
}

// Listener receives accepted clock updates.
type Listener func(Update)

// Clock holds the current playback time and the source of its last write.
// All reads and writes go through Get and SetTime.
type Clock struct {
	mu        sync.RWMutex
	current   Time
	source    Source
	handleID  string
	listeners []Listener
	log       zerolog.Logger
}

// New creates a clock at relative zero.
func New() *Clock {
	return &Clock{
		current: RelativeTime(0),
		log:     zerolog.Nop(),
	}
}

// SetLogger sets the logger used for rejected writes.
func (c *Clock) SetLogger(log zerolog.Logger) *Clock {
	c.log = log
	return c
}

// Subscribe registers fn for every accepted update. Listeners run
// synchronously on the writer's goroutine after the lock is released.
func (c *Clock) Subscribe(fn Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Get returns the current time.
func (c *Clock) Get() Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// LastSource returns the source of the last accepted write and, for
// playback ticks, the handle that produced it.
func (c *Clock) LastSource() (Source, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.source, c.handleID
}

// SetTime writes t if it passes Check. An invalid value leaves the clock at
// its previous value and returns an InvalidTime error together with an
// Update that carries the unchanged time; callers recover by carrying on
// with that value.
func (c *Clock) SetTime(t Time, source Source, handleID string) (Update, error) {
	c.mu.Lock()
	prev := c.current

	if err := t.Check(); err != nil {
		c.mu.Unlock()
		c.log.Warn().Str("source", string(source)).Str("value", t.String()).Err(err).Msg("rejected clock value")
		return Update{Time: prev, Previous: prev, Source: source, HandleID: handleID},
			models.NewError(models.KindInvalidTime, string(source), err)
	}

	c.current = t
	c.source = source
	c.handleID = ""
	if source == SourcePlaybackTick {
		c.handleID = handleID
	}
	listeners := append([]Listener(nil), c.listeners...)
	c.mu.Unlock()

	u := Update{Time: t, Previous: prev, Source: source, HandleID: handleID}
	if source != SourcePlaybackTick {
		c.log.Debug().Str("source", string(source)).Str("time", t.String()).Msg("clock set")
	}
	for _, fn := range listeners {
		fn(u)
	}
	return u, nil
}
