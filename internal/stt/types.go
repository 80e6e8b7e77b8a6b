package stt

import "fmt"

// Event is one incremental transcript delivered by the collaborator.
// Events arrive in receipt order; no ordering is guaranteed relative to
// outbound frame sends.
type Event struct {
	Text    string
	IsFinal bool
}

// State is the transcription channel lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateOpening
	StateOpen
	StateClosing
	StateClosed
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// TranscriptionError is a connection-level transcription failure. The
// channel is torn down and never retried automatically; retry policy
// belongs to the caller.
type TranscriptionError struct {
	Op  string
	Err error
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("transcription %s: %v", e.Op, e.Err)
}

func (e *TranscriptionError) Unwrap() error {
	return e.Err
}

// Channel is the duplex streaming contract to the speech-to-text
// collaborator: PCM frames out, transcript events in.
type Channel interface {
	// Start opens the stream. Valid only from the idle state.
	Start() error

	// SendPCM streams one encoded PCM frame. No buffering beyond the
	// frame being sent.
	SendPCM(data []byte) error

	// Events returns the transcript event stream.
	Events() <-chan Event

	// Errs surfaces connection-level failures.
	Errs() <-chan error

	// Close tears the stream down. Idempotent: closing a closed or
	// never-opened channel is a no-op.
	Close() error

	// State reports the current lifecycle state.
	State() State
}
