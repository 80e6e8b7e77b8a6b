package stt

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/sargilabs/voice-agent/internal/config"
)

type fakeTransport struct {
	mu       sync.Mutex
	written  [][]byte
	writeErr error
	finished bool
}

func (f *fakeTransport) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	buf := make([]byte, len(p))
	copy(buf, p)
	f.written = append(f.written, buf)
	return len(p), nil
}

func (f *fakeTransport) Finish() {
	f.mu.Lock()
	f.finished = true
	f.mu.Unlock()
}

func newTestChannel(t *testing.T, tr *fakeTransport, dialErr error) *DeepgramChannel {
	t.Helper()
	cfg := &config.Config{
		DeepgramAPIKey:    "key",
		DeepgramModel:     "nova-2",
		DeepgramLanguage:  "en",
		CaptureSampleRate: 16000,
	}
	c := NewDeepgramChannel(cfg, zerolog.Nop())
	c.dial = func(ctx context.Context, cb *listenCallback) (transport, error) {
		if dialErr != nil {
			return nil, dialErr
		}
		return tr, nil
	}
	return c
}

func TestChannel_Lifecycle(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestChannel(t, tr, nil)

	if c.State() != StateIdle {
		t.Fatalf("Expected idle, got %s", c.State())
	}
	if err := c.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if c.State() != StateOpen {
		t.Fatalf("Expected open, got %s", c.State())
	}

	if err := c.SendPCM([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("SendPCM failed: %v", err)
	}
	if len(tr.written) != 1 || len(tr.written[0]) != 4 {
		t.Errorf("Expected one 4-byte frame written, got %v", tr.written)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if c.State() != StateClosed {
		t.Errorf("Expected closed, got %s", c.State())
	}
	if !tr.finished {
		t.Errorf("Expected Finish to be called on the transport")
	}
}

func TestChannel_StartFromNonIdle(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestChannel(t, tr, nil)
	if err := c.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	err := c.Start()
	var terr *TranscriptionError
	if !errors.As(err, &terr) {
		t.Fatalf("Expected *TranscriptionError on double start, got %v", err)
	}
}

func TestChannel_DialFailure(t *testing.T) {
	c := newTestChannel(t, nil, errors.New("dial refused"))

	err := c.Start()
	var terr *TranscriptionError
	if !errors.As(err, &terr) {
		t.Fatalf("Expected *TranscriptionError, got %v", err)
	}
	if c.State() != StateError {
		t.Errorf("Expected error state, got %s", c.State())
	}
}

func TestChannel_SendWhenNotOpen(t *testing.T) {
	c := newTestChannel(t, &fakeTransport{}, nil)

	if err := c.SendPCM([]byte{1}); err == nil {
		t.Errorf("Expected error sending on idle channel")
	}
}

func TestChannel_SendFailureEntersErrorState(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestChannel(t, tr, nil)
	if err := c.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	tr.mu.Lock()
	tr.writeErr = errors.New("connection reset")
	tr.mu.Unlock()

	if err := c.SendPCM([]byte{1}); err == nil {
		t.Fatal("Expected send error")
	}
	if c.State() != StateError {
		t.Errorf("Expected error state after failed send, got %s", c.State())
	}
}

func TestChannel_CloseIdempotent(t *testing.T) {
	tr := &fakeTransport{}
	c := newTestChannel(t, tr, nil)

	// Closing a never-opened channel is a no-op.
	if err := c.Close(); err != nil {
		t.Fatalf("Close on idle returned error: %v", err)
	}
	if c.State() != StateIdle {
		t.Errorf("Closing an idle channel must not change state, got %s", c.State())
	}

	if err := c.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Second close returned error: %v", err)
	}
}

func TestChannel_EmitFiltersBlankTranscripts(t *testing.T) {
	c := newTestChannel(t, &fakeTransport{}, nil)

	c.emit("", true)
	c.emit("   ", true)
	c.emit("where is the scissors", true)
	c.emit("interim text", false)

	if got := len(c.events); got != 2 {
		t.Fatalf("Expected 2 events, got %d", got)
	}
	first := <-c.events
	if first.Text != "where is the scissors" || !first.IsFinal {
		t.Errorf("Unexpected first event: %+v", first)
	}
	second := <-c.events
	if second.Text != "interim text" || second.IsFinal {
		t.Errorf("Unexpected second event: %+v", second)
	}
}
