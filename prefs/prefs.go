// Package prefs stores user preferences such as the timeline zoom. Writes
// are fire-and-forget: callers never wait for persistence.
package prefs

import (
	"strconv"
	"sync"
)

// Well-known keys.
const (
	KeyTimelineZoom  = "timeline.zoom"
	KeyTimelineScale = "timeline.scale"
)

const (
	DefaultZoom = 1.0
	MinZoom     = 0.1
	MaxZoom     = 10.0

	// DefaultScale is the timeline scale in pixels per second.
	DefaultScale = 50.0
)

// Store is a string key-value store.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string)
}

// MemoryStore keeps preferences in memory only.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (m *MemoryStore) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *MemoryStore) Set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
}

// snapshot returns a copy of all values.
func (m *MemoryStore) snapshot() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

// Float reads a float preference, returning def when it is missing or malformed.
func Float(s Store, key string, def float64) float64 {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// SetFloat writes a float preference.
func SetFloat(s Store, key string, v float64) {
	s.Set(key, strconv.FormatFloat(v, 'f', -1, 64))
}

// Zoom returns the timeline zoom clamped to [MinZoom, MaxZoom].
func Zoom(s Store) float64 {
	return clampZoom(Float(s, KeyTimelineZoom, DefaultZoom))
}

// SetZoom stores the timeline zoom clamped to [MinZoom, MaxZoom] and
// returns the stored value.
func SetZoom(s Store, zoom float64) float64 {
	zoom = clampZoom(zoom)
	SetFloat(s, KeyTimelineZoom, zoom)
	return zoom
}

// Scale returns the timeline scale, or DefaultScale when unset or not positive.
func Scale(s Store) float64 {
	if v := Float(s, KeyTimelineScale, DefaultScale); v > 0 {
		return v
	}
	return DefaultScale
}

func clampZoom(z float64) float64 {
	switch {
	case z != z: // NaN
		return DefaultZoom
	case z < MinZoom:
		return MinZoom
	case z > MaxZoom:
		return MaxZoom
	}
	return z
}
