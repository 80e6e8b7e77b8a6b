// Package tts streams reply text to a duplex speak websocket and
// collects the synthesized audio chunks into a single playable
// container.
package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/sargilabs/voice-agent/internal/audio"
	"github.com/sargilabs/voice-agent/internal/config"
	"github.com/sargilabs/voice-agent/internal/observability"
)

type speakMessage struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Channel is a per-utterance speak websocket client. Each Synthesize
// call opens a fresh connection, streams the text, waits for the flush
// acknowledgement and hands the assembled container to onAudio. Calls
// are serialized; a new synthesis tears down whatever connection the
// previous one left behind.
type Channel struct {
	speakURL   string
	apiKey     string
	model      string
	sampleRate int
	onAudio    func(wav []byte)
	logger     zerolog.Logger

	mu    sync.Mutex
	state State
	conn  *websocket.Conn
}

// NewChannel creates a speak channel. onAudio receives one complete
// audio container per successful synthesis.
func NewChannel(cfg *config.Config, onAudio func(wav []byte), logger zerolog.Logger) *Channel {
	return &Channel{
		speakURL:   cfg.SpeakURL,
		apiKey:     cfg.DeepgramAPIKey,
		model:      cfg.SpeakModel,
		sampleRate: cfg.SpeakSampleRate,
		onAudio:    onAudio,
		logger:     logger.With().Str("component", "tts").Logger(),
		state:      StateIdle,
	}
}

// State reports the lifecycle state of the most recent synthesis.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Close aborts any in-flight synthesis by closing its connection. The
// aborted Synthesize call returns a *SynthesisError.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Channel) endpoint() (string, error) {
	u, err := url.Parse(c.speakURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model", c.model)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(c.sampleRate))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Synthesize streams text to the speak endpoint and blocks until the
// flush acknowledgement arrives. On success the assembled container is
// handed to onAudio before Synthesize returns. Every failure comes back
// as a *SynthesisError and discards whatever chunks were collected.
func (c *Channel) Synthesize(ctx context.Context, text string) error {
	endpoint, err := c.endpoint()
	if err != nil {
		return c.fail("dial", err)
	}

	c.mu.Lock()
	if c.conn != nil {
		// A previous synthesis left its connection behind; tear it down
		// before opening the next one.
		c.conn.Close()
		c.conn = nil
	}
	c.state = StateOpening
	c.mu.Unlock()

	header := http.Header{}
	header.Set("Authorization", "Token "+c.apiKey)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			c.logger.Error().Int("status", resp.StatusCode).Msg("Speak websocket handshake rejected")
		}
		return c.fail("dial", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.state = StateOpen
	c.mu.Unlock()

	// Unblock the read loop if the caller gives up.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-watchDone:
		}
	}()

	if err := conn.WriteJSON(speakMessage{Type: "Speak", Text: text}); err != nil {
		conn.Close()
		return c.fail("send", err)
	}
	if err := conn.WriteJSON(speakMessage{Type: "Flush"}); err != nil {
		conn.Close()
		return c.fail("send", err)
	}

	var chunks [][]byte
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			if ctx.Err() != nil {
				return c.fail("read", ctx.Err())
			}
			return c.fail("read", err)
		}

		switch messageType {
		case websocket.BinaryMessage:
			buf := make([]byte, len(data))
			copy(buf, data)
			chunks = append(chunks, buf)
			observability.RecordSynthesisBytes(len(data))

		case websocket.TextMessage:
			var msg speakMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				c.logger.Warn().Err(err).Msg("Unparseable speak control message")
				continue
			}
			switch msg.Type {
			case "Flushed":
				c.setState(StateFlushing)
				return c.finish(conn, chunks)
			case "Warning", "Metadata":
				c.logger.Debug().Str("type", msg.Type).Msg("Speak control message")
			case "Close":
				conn.Close()
				return c.fail("read", ErrNoAudioData)
			}
		}
	}
}

// finish materializes the collected chunks, hands the container to the
// playback callback and closes the connection.
func (c *Channel) finish(conn *websocket.Conn, chunks [][]byte) error {
	_ = conn.WriteJSON(speakMessage{Type: "Close"})
	conn.Close()

	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()

	if len(chunks) == 0 {
		c.setState(StateError)
		observability.RecordSynthesis(false)
		observability.RecordError("synthesis", "tts")
		return &SynthesisError{Op: "flush", Err: ErrNoAudioData}
	}

	blob := audio.BuildWAV(chunks, c.sampleRate, 1, 16)
	c.setState(StateClosed)
	observability.RecordSynthesis(true)
	c.logger.Info().Int("chunks", len(chunks)).Int("bytes", len(blob)).Msg("Synthesis complete")

	if c.onAudio != nil {
		c.onAudio(blob)
	}
	return nil
}

func (c *Channel) fail(op string, err error) error {
	c.mu.Lock()
	c.state = StateError
	c.conn = nil
	c.mu.Unlock()
	observability.RecordSynthesis(false)
	observability.RecordError("synthesis", "tts")
	c.logger.Error().Err(err).Str("op", op).Msg("Synthesis failed")
	return &SynthesisError{Op: op, Err: err}
}
