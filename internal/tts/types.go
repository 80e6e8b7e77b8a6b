package tts

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoAudioData reports a flush acknowledgement that arrived with no
// audio chunks received before it.
var ErrNoAudioData = errors.New("no audio data received before flush ack")

// SynthesisError aborts the current turn's spoken response. The
// conversation itself continues.
type SynthesisError struct {
	Op  string
	Err error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis %s failed: %v", e.Op, e.Err)
}

func (e *SynthesisError) Unwrap() error {
	return e.Err
}

// State describes where a speak channel is in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateOpening
	StateOpen
	StateFlushing
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
	case StateFlushing:
		return "flushing"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Synthesizer turns one reply text into one playable audio container,
// delivered through the callback supplied at construction.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) error
}
