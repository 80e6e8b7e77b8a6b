// Package session wires the voice pipeline together: capture frames
// flow to transcription, finalized transcripts arm the turn detector,
// and a completed turn runs one generate-synthesize round trip.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/sargilabs/voice-agent/internal/audio"
	"github.com/sargilabs/voice-agent/internal/capture"
	"github.com/sargilabs/voice-agent/internal/config"
	"github.com/sargilabs/voice-agent/internal/llm"
	"github.com/sargilabs/voice-agent/internal/observability"
	"github.com/sargilabs/voice-agent/internal/playback"
	"github.com/sargilabs/voice-agent/internal/stt"
	"github.com/sargilabs/voice-agent/internal/tts"
	"github.com/sargilabs/voice-agent/internal/turn"
)

// Deps are the session's collaborators. The transcription channel is
// single-use, so it comes in as a factory.
type Deps struct {
	Source      capture.Source
	NewChannel  func() stt.Channel
	Generator   llm.Generator
	Synthesizer tts.Synthesizer
	Player      *playback.Controller
}

// Session runs one voice interaction: at most one session is active per
// process, and it can be started and stopped repeatedly.
type Session struct {
	cfg    *config.Config
	state  *State
	deps   Deps
	logger zerolog.Logger

	capture *capture.Session

	mu        sync.Mutex
	running   bool
	sessionID string
	channel   stt.Channel
	detector  *turn.Detector
	loopStop  chan struct{}

	// pending has its own lock: the turn callback consumes it while the
	// detector's mutex is held, so it must never wait on s.mu.
	pendingMu sync.Mutex
	pending   []string

	inFlight atomic.Bool
	stopped  atomic.Bool
}

// New creates a stopped session.
func New(cfg *config.Config, st *State, trace *audio.LevelTrace, deps Deps, logger zerolog.Logger) *Session {
	s := &Session{
		cfg:    cfg,
		state:  st,
		deps:   deps,
		logger: logger.With().Str("component", "session").Logger(),
	}
	s.capture = capture.NewSession(
		deps.Source,
		cfg.CaptureSampleRate,
		cfg.CaptureFrameSize,
		trace,
		s.handleFrame,
		s.logger,
	)
	return s
}

// Start opens the transcription channel, arms the turn detector and
// begins capture. A failure at any step unwinds what came before it.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("session already running")
	}

	s.stopped.Store(false)
	s.pendingMu.Lock()
	s.pending = nil
	s.pendingMu.Unlock()

	channel := s.deps.NewChannel()
	if err := channel.Start(); err != nil {
		s.state.RecordFailure("transcription", err.Error())
		observability.RecordError("transcription", "session")
		return err
	}

	quiet := time.Duration(s.cfg.QuietPeriodMs) * time.Millisecond
	detector := turn.NewDetector(quiet, s.onTurnComplete)

	loopStop := make(chan struct{})
	go s.eventLoop(channel, detector, loopStop)

	if err := s.capture.Start(); err != nil {
		close(loopStop)
		channel.Close()
		s.state.RecordFailure("capture", err.Error())
		observability.RecordError("capture", "session")
		return err
	}

	s.channel = channel
	s.detector = detector
	s.loopStop = loopStop
	s.running = true
	s.sessionID = observability.NewSessionID()
	s.state.SetRecording(true)
	s.state.ClearFailure("capture")
	s.state.ClearFailure("transcription")
	s.logger.Info().Str("session_id", s.sessionID).Msg("Session started")
	return nil
}

// Stop tears the pipeline down: capture first so no new frames arrive,
// then the transcription channel, then the turn timer. An orchestration
// already in flight runs to completion; its result is discarded.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	s.stopped.Store(true)

	if err := s.capture.Stop(); err != nil {
		s.logger.Warn().Err(err).Msg("Capture stop reported an error")
	}
	if err := s.channel.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("Transcription close reported an error")
	}
	s.detector.Cancel()
	close(s.loopStop)
	if s.deps.Player != nil {
		s.deps.Player.Stop()
	}

	s.channel = nil
	s.detector = nil
	s.pendingMu.Lock()
	s.pending = nil
	s.pendingMu.Unlock()
	s.state.SetRecording(false)
	s.logger.Info().Str("session_id", s.sessionID).Msg("Session stopped")
}

// IsRunning reports whether the session is active.
func (s *Session) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// handleFrame runs on the capture sink goroutine: encode and ship one
// frame to the transcription channel.
func (s *Session) handleFrame(frame capture.Frame) {
	s.mu.Lock()
	channel := s.channel
	s.mu.Unlock()
	if channel == nil {
		return
	}

	pcm := audio.FloatToPCM16(frame.Samples)
	if err := channel.SendPCM(pcm); err != nil {
		s.logger.Warn().Err(err).Msg("Dropping frame, transcription send failed")
		return
	}
	observability.RecordAudioBytesOut(len(pcm))
}

// eventLoop consumes transcript events for one run of the session.
// Final transcripts accumulate and push the turn deadline out; interim
// ones are transient and touch nothing.
func (s *Session) eventLoop(channel stt.Channel, detector *turn.Detector, stop <-chan struct{}) {
	for {
		select {
		case ev := <-channel.Events():
			if !ev.IsFinal {
				s.logger.Debug().Str("text", ev.Text).Msg("Interim transcript")
				continue
			}
			s.pendingMu.Lock()
			s.pending = append(s.pending, ev.Text)
			s.pendingMu.Unlock()
			detector.Reset()

		case err := <-channel.Errs():
			s.state.RecordFailure("transcription", err.Error())
			observability.RecordError("transcription", "session")

		case <-stop:
			return
		}
	}
}

// onTurnComplete fires on the detector goroutine after a full quiet
// period. It must not call back into the detector, so the round trip
// runs on its own goroutine. While a response is in flight further
// completions are dropped; the accumulated transcript stays pending and
// the next quiet period picks it up.
func (s *Session) onTurnComplete() {
	if !s.inFlight.CompareAndSwap(false, true) {
		observability.RecordTurnDropped()
		s.logger.Debug().Msg("Turn completed while a response is in flight, keeping transcript pending")
		return
	}

	s.pendingMu.Lock()
	text := strings.TrimSpace(strings.Join(s.pending, " "))
	s.pending = nil
	s.pendingMu.Unlock()

	if text == "" {
		s.inFlight.Store(false)
		return
	}

	observability.RecordTurn()
	go s.respond(text)
}

// respond runs one generate-synthesize round trip for a completed turn.
func (s *Session) respond(text string) {
	defer s.inFlight.Store(false)

	s.state.AppendUtterance(SpeakerUser, text)
	s.logger.Info().Str("text", text).Msg("Turn complete")

	start := time.Now()
	reply, err := s.deps.Generator.Generate(context.Background(), text)
	if err != nil {
		observability.RecordGeneration(false, 0)
		observability.RecordError("generation", "session")
		s.state.RecordFailure("generation", err.Error())
		s.logger.Error().Err(err).Msg("Generation failed, turn produces no response")
		return
	}
	observability.RecordGeneration(true, time.Since(start).Seconds())
	s.state.ClearFailure("generation")

	if s.stopped.Load() {
		s.logger.Debug().Msg("Session stopped mid-turn, discarding reply")
		return
	}

	s.state.AppendUtterance(SpeakerAssistant, reply)

	if err := s.deps.Synthesizer.Synthesize(context.Background(), reply); err != nil {
		// The reply text is already in the conversation; only the spoken
		// rendition is lost.
		s.state.RecordFailure("synthesis", err.Error())
		s.logger.Error().Err(err).Msg("Synthesis failed")
		return
	}
	s.state.ClearFailure("synthesis")
}
