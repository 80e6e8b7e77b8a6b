package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/sargilabs/voice-agent/internal/config"
)

type fakeSink struct {
	mu       sync.Mutex
	frames   []string
	tools    []ToolRecord
	states   []ConnState
	attempts []int
}

func (f *fakeSink) UpdateFrame(frame string) {
	f.mu.Lock()
	f.frames = append(f.frames, frame)
	f.mu.Unlock()
}

func (f *fakeSink) ReplaceTools(tools []ToolRecord) {
	f.mu.Lock()
	f.tools = tools
	f.mu.Unlock()
}

func (f *fakeSink) SetConnection(state ConnState, attempts int) {
	f.mu.Lock()
	f.states = append(f.states, state)
	f.attempts = append(f.attempts, attempts)
	f.mu.Unlock()
}

func (f *fakeSink) lastTools() []ToolRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ToolRecord(nil), f.tools...)
}

func newTestSocket(serverURL string, sink Sink) *Socket {
	cfg := &config.Config{
		TelemetryURL:        "ws" + strings.TrimPrefix(serverURL, "http"),
		TelemetryBackoff:    10,
		TelemetryBackoffMax: 50,
	}
	return NewSocket(cfg, sink, zerolog.Nop())
}

func TestParseStatus(t *testing.T) {
	cases := []struct {
		in      string
		want    Status
		wantErr bool
	}{
		{"In Place", StatusInPlace, false},
		{"in place", StatusInPlace, false},
		{"Out of Place", StatusOutOfPlace, false},
		{"Missing", StatusMissing, false},
		{" missing ", StatusMissing, false},
		{"misplaced", 0, true},
		{"", 0, true},
	}
	for _, c := range cases {
		got, err := ParseStatus(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseStatus(%q): expected error", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseStatus(%q) failed: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseStatus(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestDispatch_FrameAndSnapshot(t *testing.T) {
	sink := &fakeSink{}
	s := newTestSocket("http://unused", sink)

	s.dispatch([]byte("/9j/4AAQSkZJRg=="))

	s.dispatch([]byte(`[{"tool":"Scissors","status":"Missing","last_seen":"clips/scissors.mp4"}]`))
	s.dispatch([]byte(`[{"tool":"Forceps","status":"In Place","last_seen":"clips/forceps.mp4"}]`))

	if len(sink.frames) != 1 || sink.frames[0] != "/9j/4AAQSkZJRg==" {
		t.Errorf("Unexpected frames: %v", sink.frames)
	}

	// The second snapshot replaces the first wholesale.
	tools := sink.lastTools()
	if len(tools) != 1 {
		t.Fatalf("Expected one tool after replacement, got %d", len(tools))
	}
	if tools[0].Tool != "Forceps" || tools[0].Status != StatusInPlace {
		t.Errorf("Unexpected surviving tool: %+v", tools[0])
	}
	if tools[0].LastSeenReference != "clips/forceps.mp4" {
		t.Errorf("Unexpected locator: %q", tools[0].LastSeenReference)
	}
}

func TestDispatch_MalformedSnapshotDiscarded(t *testing.T) {
	sink := &fakeSink{}
	s := newTestSocket("http://unused", sink)

	s.dispatch([]byte(`[{"tool":"Scissors","status":"In Place","last_seen":""}]`))
	s.dispatch([]byte(`[{"tool":"broken`))
	s.dispatch([]byte(`[{"tool":"Gauze","status":"misplaced","last_seen":""}]`))

	tools := sink.lastTools()
	if len(tools) != 1 || tools[0].Tool != "Scissors" {
		t.Errorf("Malformed snapshots must leave the previous set intact, got %v", tools)
	}
}

func TestSocket_DeliversMessages(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte("/9j/frame"))
		conn.WriteMessage(websocket.TextMessage, []byte(`[{"tool":"Forceps","status":"Out of Place","last_seen":"clips/f.mp4"}]`))
		time.Sleep(50 * time.Millisecond)
	}))
	defer server.Close()

	sink := &fakeSink{}
	s := newTestSocket(server.URL, sink)
	s.Start()
	defer s.Close()

	deadline := time.After(2 * time.Second)
	for {
		sink.mu.Lock()
		got := len(sink.frames) > 0 && len(sink.tools) > 0
		sink.mu.Unlock()
		if got {
			break
		}
		select {
		case <-deadline:
			t.Fatal("Messages never reached the sink")
		case <-time.After(10 * time.Millisecond):
		}
	}

	tools := sink.lastTools()
	if tools[0].Tool != "Forceps" || tools[0].Status != StatusOutOfPlace {
		t.Errorf("Unexpected tool record: %+v", tools[0])
	}
}

func TestSocket_ReconnectsAndResetsAttempts(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	var mu sync.Mutex
	connects := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		mu.Lock()
		connects++
		mu.Unlock()
		// Drop the connection immediately to force a reconnect.
		conn.Close()
	}))
	defer server.Close()

	sink := &fakeSink{}
	s := newTestSocket(server.URL, sink)
	s.Start()
	defer s.Close()

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := connects
		mu.Unlock()
		if n >= 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("Expected at least 3 connects, got %d", n)
		case <-time.After(10 * time.Millisecond):
		}
	}

	// Every successful connect reports attempt counter zero.
	sink.mu.Lock()
	defer sink.mu.Unlock()
	for i, st := range sink.states {
		if st == StateConnected && sink.attempts[i] != 0 {
			t.Errorf("Connected with non-zero attempt counter %d", sink.attempts[i])
		}
	}
}

func TestSocket_CloseStopsReconnecting(t *testing.T) {
	sink := &fakeSink{}
	// Nothing listens here; the socket will be in its backoff wait.
	cfg := &config.Config{
		TelemetryURL:        "ws://127.0.0.1:1",
		TelemetryBackoff:    10000,
		TelemetryBackoffMax: 30000,
	}
	s := NewSocket(cfg, sink, zerolog.Nop())
	s.Start()
	time.Sleep(50 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		s.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close blocked on a pending reconnect")
	}

	// Close is idempotent.
	s.Close()
}
