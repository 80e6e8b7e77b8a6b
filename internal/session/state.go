package session

import (
	"sync"

	"github.com/sargilabs/voice-agent/internal/audio"
	"github.com/sargilabs/voice-agent/internal/observability"
	"github.com/sargilabs/voice-agent/internal/telemetry"
)

// Speaker identifies who produced an utterance.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Utterance is one finalized conversation entry. Immutable once
// appended.
type Utterance struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

// LastError is the most recent failure surfaced to clients. The next
// success of the same kind clears it.
type LastError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Snapshot is a point-in-time copy of the session state, safe to hold
// after the lock is released.
type Snapshot struct {
	Recording         bool                   `json:"recording"`
	Utterances        []Utterance            `json:"utterances"`
	Levels            []float64              `json:"levels"`
	Tools             []telemetry.ToolRecord `json:"tools"`
	Frame             string                 `json:"frame,omitempty"`
	Connection        string                 `json:"connection"`
	ReconnectAttempts int                    `json:"reconnectAttempts"`
	LastError         *LastError             `json:"lastError,omitempty"`
}

// State is the session's shared view: an append-only conversation, the
// latest telemetry frame and tool set, the capture level trace and the
// most recent error. One writer per field group, any number of
// snapshot readers.
type State struct {
	trace *audio.LevelTrace

	mu         sync.RWMutex
	recording  bool
	utterances []Utterance
	frame      string
	tools      []telemetry.ToolRecord
	connState  telemetry.ConnState
	attempts   int
	lastErr    *LastError
}

// NewState creates an empty session state around the given level trace.
func NewState(trace *audio.LevelTrace) *State {
	return &State{trace: trace}
}

// AppendUtterance appends one conversation entry. Entries are never
// mutated or removed for the lifetime of the session.
func (s *State) AppendUtterance(speaker Speaker, text string) {
	s.mu.Lock()
	s.utterances = append(s.utterances, Utterance{Speaker: speaker, Text: text})
	s.mu.Unlock()
	observability.RecordUtterance(string(speaker))
}

// SetRecording flips the capture indicator.
func (s *State) SetRecording(recording bool) {
	s.mu.Lock()
	s.recording = recording
	s.mu.Unlock()
}

// Recording reports whether capture is active.
func (s *State) Recording() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recording
}

// UpdateFrame stores the latest video frame. Implements telemetry.Sink.
func (s *State) UpdateFrame(frame string) {
	s.mu.Lock()
	s.frame = frame
	s.mu.Unlock()
}

// ReplaceTools swaps in a complete tool snapshot. The previous set is
// discarded wholesale. Implements telemetry.Sink.
func (s *State) ReplaceTools(tools []telemetry.ToolRecord) {
	s.mu.Lock()
	s.tools = tools
	s.mu.Unlock()
}

// SetConnection records the telemetry link state. Implements
// telemetry.Sink.
func (s *State) SetConnection(state telemetry.ConnState, attempts int) {
	s.mu.Lock()
	s.connState = state
	s.attempts = attempts
	s.mu.Unlock()
}

// ToolByName looks a tool up in the current snapshot.
func (s *State) ToolByName(name string) (telemetry.ToolRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tools {
		if t.Tool == name {
			return t, true
		}
	}
	return telemetry.ToolRecord{}, false
}

// RecordFailure stores a failure for clients to see.
func (s *State) RecordFailure(kind, message string) {
	s.mu.Lock()
	s.lastErr = &LastError{Kind: kind, Message: message}
	s.mu.Unlock()
}

// ClearFailure clears the stored error if it is of the given kind.
// Called on the next success of that kind.
func (s *State) ClearFailure(kind string) {
	s.mu.Lock()
	if s.lastErr != nil && s.lastErr.Kind == kind {
		s.lastErr = nil
	}
	s.mu.Unlock()
}

// LastFailure returns a copy of the stored error, if any.
func (s *State) LastFailure() *LastError {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastErr == nil {
		return nil
	}
	e := *s.lastErr
	return &e
}

// Snapshot copies the full state for concurrent readers.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Recording:         s.recording,
		Utterances:        append([]Utterance(nil), s.utterances...),
		Tools:             append([]telemetry.ToolRecord(nil), s.tools...),
		Frame:             s.frame,
		Connection:        s.connState.String(),
		ReconnectAttempts: s.attempts,
	}
	if s.trace != nil {
		snap.Levels = s.trace.Values()
	}
	if s.lastErr != nil {
		e := *s.lastErr
		snap.LastError = &e
	}
	return snap
}
