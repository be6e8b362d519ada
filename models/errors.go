package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a timeline engine failure.
type ErrorKind string

const (
	KindInvalidTime        ErrorKind = "invalid_time"
	KindMissingMetadata    ErrorKind = "missing_metadata"
	KindInsufficientTracks ErrorKind = "insufficient_tracks"
	KindEmptySegment       ErrorKind = "empty_segment"
	KindPlaybackFailed     ErrorKind = "playback_failed"
	KindDriftExceeded      ErrorKind = "drift_exceeded"
)

// Sentinels for errors.Is. Every *Error matches the sentinel of its kind.
var (
	ErrInvalidTime        = errors.New("invalid time")
	ErrMissingMetadata    = errors.New("missing metadata")
	ErrInsufficientTracks = errors.New("insufficient tracks")
	ErrEmptySegment       = errors.New("empty segment")
	ErrPlaybackFailed     = errors.New("playback failed")
	ErrDriftExceeded      = errors.New("drift exceeded")
)

var sentinels = map[ErrorKind]error{
	KindInvalidTime:        ErrInvalidTime,
	KindMissingMetadata:    ErrMissingMetadata,
	KindInsufficientTracks: ErrInsufficientTracks,
	KindEmptySegment:       ErrEmptySegment,
	KindPlaybackFailed:     ErrPlaybackFailed,
	KindDriftExceeded:      ErrDriftExceeded,
}

// Error is a classified failure. Subject names the file, handle or session
// the failure is about.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Subject string    `json:"subject,omitempty"`
	Err     error     `json:"-"`
}

// NewError builds an *Error wrapping cause (which may be nil).
func NewError(kind ErrorKind, subject string, cause error) *Error {
	return &Error{Kind: kind, Subject: subject, Err: cause}
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Subject != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Subject)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel that corresponds to the error's kind.
func (e *Error) Is(target error) bool {
	return sentinels[e.Kind] == target
}

// KindOf extracts the ErrorKind from err, or "" when err is not an *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Diagnostic is a non-fatal report kept alongside derived state, e.g. a
// file excluded from grouping.
type Diagnostic struct {
	Kind    ErrorKind `json:"kind"`
	Subject string    `json:"subject"`
	Message string    `json:"message"`
}

// DiagnosticFrom converts an error into a Diagnostic.
func DiagnosticFrom(err error) Diagnostic {
	var e *Error
	if errors.As(err, &e) {
		d := Diagnostic{Kind: e.Kind, Subject: e.Subject}
		if e.Err != nil {
			d.Message = e.Err.Error()
		}
		return d
	}
	return Diagnostic{Message: err.Error()}
}
