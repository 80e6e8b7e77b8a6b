// Package telemetry maintains the websocket link to the vision backend.
// The link is independent of the voice session: it connects at startup,
// reconnects with capped exponential backoff and keeps delivering video
// frames and tool-tracking snapshots for as long as the process runs.
package telemetry

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/sargilabs/voice-agent/internal/config"
	"github.com/sargilabs/voice-agent/internal/observability"
	"github.com/sargilabs/voice-agent/internal/resilience"
)

// wireTool is the snapshot entry shape the vision backend sends.
type wireTool struct {
	Tool     string `json:"tool"`
	Status   string `json:"status"`
	LastSeen string `json:"last_seen"`
}

// Socket is a self-healing telemetry client. Messages are dispatched on
// their first character: '[' opens a JSON tool snapshot, anything else
// is an image-data frame.
type Socket struct {
	url    string
	base   time.Duration
	max    time.Duration
	sink   Sink
	logger zerolog.Logger
	dialer *websocket.Dialer

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	done     chan struct{}
	stopOnce sync.Once
}

// NewSocket creates a telemetry socket. Nothing connects until Start.
func NewSocket(cfg *config.Config, sink Sink, logger zerolog.Logger) *Socket {
	return &Socket{
		url:    cfg.TelemetryURL,
		base:   time.Duration(cfg.TelemetryBackoff) * time.Millisecond,
		max:    time.Duration(cfg.TelemetryBackoffMax) * time.Millisecond,
		sink:   sink,
		logger: logger.With().Str("component", "telemetry").Logger(),
		dialer: websocket.DefaultDialer,
		done:   make(chan struct{}),
	}
}

// Start launches the connect loop. It returns immediately.
func (s *Socket) Start() {
	go s.run()
}

// Close tears down the connection and cancels any pending reconnect.
func (s *Socket) Close() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		if s.conn != nil {
			s.conn.Close()
			s.conn = nil
		}
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *Socket) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Socket) run() {
	attempt := 0
	for {
		if s.isClosed() {
			return
		}

		s.sink.SetConnection(StateConnecting, attempt)
		conn, _, err := s.dialer.Dial(s.url, nil)
		if err != nil {
			s.sink.SetConnection(StateDisconnected, attempt)
			delay := resilience.Backoff(attempt, s.base, s.max)
			s.logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).
				Msg("Telemetry dial failed")
			attempt++
			observability.RecordTelemetryReconnect()
			select {
			case <-time.After(delay):
				continue
			case <-s.done:
				return
			}
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conn = conn
		s.mu.Unlock()

		attempt = 0
		s.sink.SetConnection(StateConnected, 0)
		observability.SetTelemetryConnected(true)
		s.logger.Info().Str("url", s.url).Msg("Telemetry connected")

		s.readLoop(conn)

		observability.SetTelemetryConnected(false)
		s.sink.SetConnection(StateDisconnected, attempt)
		if s.isClosed() {
			return
		}

		delay := resilience.Backoff(attempt, s.base, s.max)
		s.logger.Warn().Int("attempt", attempt).Dur("retry_in", delay).
			Msg("Telemetry connection lost")
		attempt++
		observability.RecordTelemetryReconnect()
		select {
		case <-time.After(delay):
		case <-s.done:
			return
		}
	}
}

func (s *Socket) readLoop(conn *websocket.Conn) {
	defer conn.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.dispatch(data)
	}
}

// dispatch routes one message. Malformed snapshots are logged and
// discarded; the previous tool set stays in place.
func (s *Socket) dispatch(data []byte) {
	if len(data) == 0 {
		observability.RecordTelemetryMessage("malformed")
		return
	}

	if data[0] != '[' {
		s.sink.UpdateFrame(string(data))
		observability.RecordTelemetryMessage("frame")
		return
	}

	var wire []wireTool
	if err := json.Unmarshal(data, &wire); err != nil {
		s.logger.Warn().Err(err).Msg("Discarding unparseable tool snapshot")
		observability.RecordTelemetryMessage("malformed")
		return
	}

	tools := make([]ToolRecord, 0, len(wire))
	for _, w := range wire {
		status, err := ParseStatus(w.Status)
		if err != nil {
			s.logger.Warn().Err(err).Str("tool", w.Tool).Msg("Discarding snapshot with unknown status")
			observability.RecordTelemetryMessage("malformed")
			return
		}
		tools = append(tools, ToolRecord{
			Tool:              w.Tool,
			Status:            status,
			LastSeenReference: w.LastSeen,
		})
	}

	s.sink.ReplaceTools(tools)
	observability.RecordTelemetryMessage("snapshot")
}
