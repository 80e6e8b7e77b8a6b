package session

import (
	"testing"

	"github.com/sargilabs/voice-agent/internal/audio"
	"github.com/sargilabs/voice-agent/internal/telemetry"
)

func TestState_AppendOnlyConversation(t *testing.T) {
	st := NewState(nil)

	st.AppendUtterance(SpeakerUser, "where is the scissors")
	st.AppendUtterance(SpeakerAssistant, "On the tray.")

	snap := st.Snapshot()
	if len(snap.Utterances) != 2 {
		t.Fatalf("Expected 2 utterances, got %d", len(snap.Utterances))
	}
	if snap.Utterances[0].Speaker != SpeakerUser {
		t.Errorf("Unexpected order: %+v", snap.Utterances)
	}

	// Mutating the snapshot must not touch the state.
	snap.Utterances[0].Text = "tampered"
	if st.Snapshot().Utterances[0].Text != "where is the scissors" {
		t.Error("Snapshot is not a copy")
	}
}

func TestState_LastErrorClearedBySameKindOnly(t *testing.T) {
	st := NewState(nil)

	st.RecordFailure("generation", "status=503")
	if f := st.LastFailure(); f == nil || f.Kind != "generation" {
		t.Fatalf("Expected generation failure, got %+v", f)
	}

	// A success of a different kind leaves it in place.
	st.ClearFailure("synthesis")
	if st.LastFailure() == nil {
		t.Fatal("Failure of another kind must not clear the record")
	}

	st.ClearFailure("generation")
	if f := st.LastFailure(); f != nil {
		t.Errorf("Expected cleared failure, got %+v", f)
	}
}

func TestState_ReplaceToolsWholesale(t *testing.T) {
	st := NewState(nil)

	st.ReplaceTools([]telemetry.ToolRecord{
		{Tool: "Scissors", Status: telemetry.StatusMissing, LastSeenReference: "clips/scissors.mp4"},
	})
	st.ReplaceTools([]telemetry.ToolRecord{
		{Tool: "Forceps", Status: telemetry.StatusInPlace, LastSeenReference: "clips/forceps.mp4"},
	})

	snap := st.Snapshot()
	if len(snap.Tools) != 1 || snap.Tools[0].Tool != "Forceps" {
		t.Errorf("Expected only the latest snapshot's tools, got %+v", snap.Tools)
	}

	if _, ok := st.ToolByName("Scissors"); ok {
		t.Error("Scissors must be gone after the replacement, not merged")
	}
	rec, ok := st.ToolByName("Forceps")
	if !ok || rec.LastSeenReference != "clips/forceps.mp4" {
		t.Errorf("Unexpected Forceps record: %+v", rec)
	}
}

func TestState_ConnectionReflectedInSnapshot(t *testing.T) {
	st := NewState(nil)

	st.SetConnection(telemetry.StateConnecting, 3)
	snap := st.Snapshot()
	if snap.Connection != "connecting" || snap.ReconnectAttempts != 3 {
		t.Errorf("Unexpected connection snapshot: %s/%d", snap.Connection, snap.ReconnectAttempts)
	}

	st.SetConnection(telemetry.StateConnected, 0)
	snap = st.Snapshot()
	if snap.Connection != "connected" || snap.ReconnectAttempts != 0 {
		t.Errorf("Unexpected connection snapshot: %s/%d", snap.Connection, snap.ReconnectAttempts)
	}
}

func TestState_SnapshotIncludesLevels(t *testing.T) {
	trace := audio.NewLevelTrace()
	trace.Push(0.5)
	st := NewState(trace)

	snap := st.Snapshot()
	if len(snap.Levels) != audio.TraceLength {
		t.Fatalf("Expected %d level samples, got %d", audio.TraceLength, len(snap.Levels))
	}
	if snap.Levels[audio.TraceLength-1] != 0.5 {
		t.Errorf("Expected the newest level last, got %v", snap.Levels[audio.TraceLength-1])
	}
}
