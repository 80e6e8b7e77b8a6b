package telemetry

import (
	"fmt"
	"strings"
)

// Status is a tool's placement as reported by the vision backend.
type Status int

const (
	StatusInPlace Status = iota
	StatusOutOfPlace
	StatusMissing
)

func (s Status) String() string {
	switch s {
	case StatusInPlace:
		return "In Place"
	case StatusOutOfPlace:
		return "Out of Place"
	case StatusMissing:
		return "Missing"
	default:
		return "unknown"
	}
}

// ParseStatus maps a wire status string to a Status. Matching is
// case-insensitive.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "in place":
		return StatusInPlace, nil
	case "out of place":
		return StatusOutOfPlace, nil
	case "missing":
		return StatusMissing, nil
	default:
		return 0, fmt.Errorf("unknown tool status %q", s)
	}
}

// ToolRecord is one tool's entry in a tracking snapshot. Tool is unique
// within a snapshot; LastSeenReference is an opaque storage locator for
// the clip where the tool was last seen.
type ToolRecord struct {
	Tool              string `json:"tool"`
	Status            Status `json:"status"`
	LastSeenReference string `json:"lastSeenReference,omitempty"`
}

// ConnState describes the telemetry socket connection.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Sink receives everything the socket produces. Implemented by the
// session state so the socket stays decoupled from it.
type Sink interface {
	// UpdateFrame replaces the latest video frame (an image-data string).
	UpdateFrame(frame string)
	// ReplaceTools replaces the entire tracked tool set with the given
	// snapshot.
	ReplaceTools(tools []ToolRecord)
	// SetConnection reports the socket state and the reconnect attempt
	// counter.
	SetConnection(state ConnState, attempts int)
}
