package stt

import (
	"context"
	"fmt"
	"strings"
	"sync"

	websocketv1api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/sargilabs/voice-agent/internal/config"
)

// transport is the slice of the Deepgram websocket client the channel
// needs. Narrowed so tests can substitute it.
type transport interface {
	Write(p []byte) (int, error)
	Finish()
}

// DeepgramChannel implements Channel over Deepgram's live transcription
// websocket. The lifecycle state machine lives here; the SDK owns only
// the socket.
type DeepgramChannel struct {
	apiKey     string
	model      string
	language   string
	sampleRate int
	logger     zerolog.Logger

	events chan Event
	errs   chan error

	mu     sync.Mutex
	state  State
	client transport
	cancel context.CancelFunc

	// dial is swapped in tests.
	dial func(ctx context.Context, cb *listenCallback) (transport, error)
}

// NewDeepgramChannel creates an idle transcription channel.
func NewDeepgramChannel(cfg *config.Config, logger zerolog.Logger) *DeepgramChannel {
	c := &DeepgramChannel{
		apiKey:     cfg.DeepgramAPIKey,
		model:      cfg.DeepgramModel,
		language:   cfg.DeepgramLanguage,
		sampleRate: cfg.CaptureSampleRate,
		logger:     logger,
		events:     make(chan Event, 100),
		errs:       make(chan error, 1),
		state:      StateIdle,
	}
	c.dial = c.dialDeepgram
	return c
}

// listenCallback adapts the SDK callback interface; the embedded default
// handler covers the message types we do not act on.
type listenCallback struct {
	*websocketv1api.DefaultCallbackHandler
	onMessage func(*msginterfaces.MessageResponse)
	onError   func(*msginterfaces.ErrorResponse)
}

func (l *listenCallback) Message(msg *msginterfaces.MessageResponse) error {
	l.onMessage(msg)
	return nil
}

func (l *listenCallback) Error(errResp *msginterfaces.ErrorResponse) error {
	l.onError(errResp)
	return nil
}

func (c *DeepgramChannel) dialDeepgram(ctx context.Context, cb *listenCallback) (transport, error) {
	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          c.model,
		Language:       c.language,
		Punctuate:      true,
		InterimResults: true,
		Encoding:       "linear16",
		Channels:       1,
		SampleRate:     c.sampleRate,
	}
	return listenClient.NewWSUsingCallback(ctx, c.apiKey, nil, tOptions, cb)
}

// Start opens the stream: idle -> opening -> open. Any dial failure moves
// the channel to the error state.
func (c *DeepgramChannel) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		return &TranscriptionError{Op: "start", Err: fmt.Errorf("channel is %s, want idle", c.state)}
	}
	c.state = StateOpening

	ctx, cancel := context.WithCancel(context.Background())
	cb := &listenCallback{
		DefaultCallbackHandler: websocketv1api.NewDefaultCallbackHandler(),
		onMessage:              c.handleMessage,
		onError:                c.handleError,
	}

	client, err := c.dial(ctx, cb)
	if err != nil {
		cancel()
		c.state = StateError
		return &TranscriptionError{Op: "start", Err: err}
	}

	c.client = client
	c.cancel = cancel
	c.state = StateOpen
	c.logger.Info().
		Str("model", c.model).
		Str("language", c.language).
		Int("sample_rate", c.sampleRate).
		Msg("Transcription channel open")
	return nil
}

func (c *DeepgramChannel) handleMessage(msg *msginterfaces.MessageResponse) {
	if msg == nil || len(msg.Channel.Alternatives) == 0 {
		return
	}
	c.emit(msg.Channel.Alternatives[0].Transcript, msg.IsFinal)
}

// emit filters blank transcripts and delivers events in receipt order
// without blocking the socket reader.
func (c *DeepgramChannel) emit(text string, isFinal bool) {
	if strings.TrimSpace(text) == "" {
		return
	}
	select {
	case c.events <- Event{Text: text, IsFinal: isFinal}:
	default:
		c.logger.Warn().Str("text", text).Msg("Transcript event buffer full, dropping")
	}
}

func (c *DeepgramChannel) handleError(errResp *msginterfaces.ErrorResponse) {
	c.mu.Lock()
	if c.state == StateOpen || c.state == StateOpening {
		c.state = StateError
	}
	c.mu.Unlock()

	err := &TranscriptionError{Op: "stream", Err: fmt.Errorf("deepgram: %+v", errResp)}
	c.logger.Error().Err(err).Msg("Transcription channel failed")
	select {
	case c.errs <- err:
	default:
	}
}

// SendPCM streams one frame. Frames are written as they arrive; nothing
// is buffered locally.
func (c *DeepgramChannel) SendPCM(data []byte) error {
	c.mu.Lock()
	state := c.state
	client := c.client
	c.mu.Unlock()

	if state != StateOpen || client == nil {
		return &TranscriptionError{Op: "send", Err: fmt.Errorf("channel is %s, want open", state)}
	}

	if _, err := client.Write(data); err != nil {
		c.mu.Lock()
		c.state = StateError
		c.mu.Unlock()
		return &TranscriptionError{Op: "send", Err: err}
	}
	return nil
}

// Events returns the transcript event stream.
func (c *DeepgramChannel) Events() <-chan Event {
	return c.events
}

// Errs surfaces connection-level failures.
func (c *DeepgramChannel) Errs() <-chan error {
	return c.errs
}

// Close tears the stream down. Closing an idle, closed or errored channel
// is a no-op.
func (c *DeepgramChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateIdle, StateClosed, StateClosing:
		return nil
	}

	c.state = StateClosing
	if c.client != nil {
		c.client.Finish()
		c.client = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.state = StateClosed
	c.logger.Info().Msg("Transcription channel closed")
	return nil
}

// State reports the current lifecycle state.
func (c *DeepgramChannel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
