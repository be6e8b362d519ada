package library

import (
	"context"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/rs/zerolog"
)

// DefaultThumbnailDelay is the quiet period before a thumbnail is fetched.
const DefaultThumbnailDelay = 300 * time.Millisecond

// ThumbnailRequest asks for the frame of one file at a file-relative offset.
type ThumbnailRequest struct {
	Key    string  // coalescing key, usually the track or segment id
	FileID string  // file to read the frame from
	Path   string  // path of that file
	At     float64 // seconds from the start of the file
}

// ThumbnailFetcher renders thumbnails. Implementations must return promptly
// once ctx is cancelled.
type ThumbnailFetcher interface {
	FetchThumbnail(ctx context.Context, req ThumbnailRequest) ([]byte, error)
}

// ThumbnailResult is delivered for every fetch that was not superseded.
type ThumbnailResult struct {
	Request ThumbnailRequest
	Data    []byte
	Err     error
}

type thumbnailKey struct {
	debounced func(func())
	token     uint64
	cancel    context.CancelFunc
}

// ThumbnailScheduler coalesces thumbnail requests per key. Requests for the
// same key within the delay collapse into the last one, and a new request
// cancels the fetch still running for that key. Results of superseded
// fetches are dropped.
type ThumbnailScheduler struct {
	mu       sync.Mutex
	fetcher  ThumbnailFetcher
	delay    time.Duration
	keys     map[string]*thumbnailKey
	onResult func(ThumbnailResult)
	closed   bool
	log      zerolog.Logger
}

// NewThumbnailScheduler creates a scheduler that renders through fetcher
// and reports to onResult.
func NewThumbnailScheduler(fetcher ThumbnailFetcher, onResult func(ThumbnailResult)) *ThumbnailScheduler {
	return &ThumbnailScheduler{
		fetcher:  fetcher,
		delay:    DefaultThumbnailDelay,
		keys:     make(map[string]*thumbnailKey),
		onResult: onResult,
		log:      zerolog.Nop(),
	}
}

// SetDelay sets the debounce delay. It applies to keys first seen afterwards.
func (s *ThumbnailScheduler) SetDelay(d time.Duration) *ThumbnailScheduler {
	s.delay = d
	return s
}

// SetLogger sets the logger.
func (s *ThumbnailScheduler) SetLogger(log zerolog.Logger) *ThumbnailScheduler {
	s.log = log
	return s
}

// Request schedules req. Requests after Close are ignored.
func (s *ThumbnailScheduler) Request(req ThumbnailRequest) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	k, ok := s.keys[req.Key]
	if !ok {
		k = &thumbnailKey{debounced: debounce.New(s.delay)}
		s.keys[req.Key] = k
	}
	k.token++
	token := k.token
	if k.cancel != nil {
		k.cancel()
		k.cancel = nil
	}
	s.mu.Unlock()

	k.debounced(func() { s.fetch(req, token) })
}

func (s *ThumbnailScheduler) fetch(req ThumbnailRequest, token uint64) {
	s.mu.Lock()
	k := s.keys[req.Key]
	if s.closed || k == nil || k.token != token {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	k.cancel = cancel
	s.mu.Unlock()

	data, err := s.fetcher.FetchThumbnail(ctx, req)

	s.mu.Lock()
	current := !s.closed && k.token == token && ctx.Err() == nil
	if k.token == token {
		k.cancel = nil
	}
	s.mu.Unlock()
	cancel()

	if !current {
		s.log.Debug().Str("key", req.Key).Uint64("token", token).Msg("thumbnail superseded")
		return
	}
	if err != nil {
		s.log.Warn().Err(err).Str("key", req.Key).Str("file", req.FileID).Msg("thumbnail fetch failed")
	}
	if s.onResult != nil {
		s.onResult(ThumbnailResult{Request: req, Data: data, Err: err})
	}
}

// Close cancels every in-flight fetch and drops pending requests.
func (s *ThumbnailScheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for _, k := range s.keys {
		k.token++
		if k.cancel != nil {
			k.cancel()
			k.cancel = nil
		}
	}
}
