// Package capture owns the microphone stream for a session: it opens a
// Source, cuts the signal into fixed-size frames and fans each frame out
// to the loudness meter and the PCM sink.
package capture

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sargilabs/voice-agent/internal/audio"
	"github.com/sargilabs/voice-agent/internal/observability"
)

// DeviceAccessError reports that the capture device is missing or access
// was denied. Fatal to capture; the session continues in an inert state.
type DeviceAccessError struct {
	Err error
}

func (e *DeviceAccessError) Error() string {
	return fmt.Sprintf("capture device unavailable: %v", e.Err)
}

func (e *DeviceAccessError) Unwrap() error {
	return e.Err
}

// Frame is one block of captured audio. Frames are transient: they are
// consumed synchronously by the meter and the sink and never retained.
type Frame struct {
	Samples    []float32
	SampleRate int
	Timestamp  time.Time
}

// Source abstracts the capture device. Open begins periodic delivery of
// sample blocks of exactly frameSize samples; Close releases the device.
type Source interface {
	Open(sampleRate, frameSize int, deliver func(samples []float32)) error
	Close() error
}

// Session drives a Source and fans frames out. Loudness metering runs
// inline on the delivery callback; the sink runs on its own goroutine
// behind a single-slot queue, so a slow sink drops frames instead of
// queuing them unbounded.
type Session struct {
	source     Source
	sampleRate int
	frameSize  int
	trace      *audio.LevelTrace
	onFrame    func(Frame)
	logger     zerolog.Logger

	mu      sync.Mutex
	running bool
	frames  chan Frame
	done    chan struct{}
}

// NewSession creates a capture session. onFrame receives every delivered
// frame that the sink kept up with.
func NewSession(source Source, sampleRate, frameSize int, trace *audio.LevelTrace, onFrame func(Frame), logger zerolog.Logger) *Session {
	return &Session{
		source:     source,
		sampleRate: sampleRate,
		frameSize:  frameSize,
		trace:      trace,
		onFrame:    onFrame,
		logger:     logger,
	}
}

// Start requests device access and begins frame delivery. Returns a
// *DeviceAccessError when the device is missing or permission is denied.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("capture session already running")
	}

	s.frames = make(chan Frame, 1)
	s.done = make(chan struct{})

	if err := s.source.Open(s.sampleRate, s.frameSize, s.deliver); err != nil {
		s.frames = nil
		s.done = nil
		return &DeviceAccessError{Err: err}
	}

	go s.drain(s.frames, s.done)

	s.running = true
	s.logger.Info().
		Int("sample_rate", s.sampleRate).
		Int("frame_size", s.frameSize).
		Msg("Capture started")
	return nil
}

// deliver is invoked on the device callback. It must never block: the
// meter is O(frame size) and the sink hand-off is a non-blocking send.
func (s *Session) deliver(samples []float32) {
	if s.trace != nil {
		s.trace.Push(audio.Level(samples))
	}

	frame := Frame{
		Samples:    samples,
		SampleRate: s.sampleRate,
		Timestamp:  time.Now(),
	}
	select {
	case s.frames <- frame:
		observability.RecordFrame("sent")
	default:
		observability.RecordFrame("dropped")
	}
}

func (s *Session) drain(frames <-chan Frame, done <-chan struct{}) {
	for {
		select {
		case frame := <-frames:
			if s.onFrame != nil {
				s.onFrame(frame)
			}
		case <-done:
			return
		}
	}
}

// Stop releases the device, stops the sink worker and resets the level
// trace to its empty state. Idempotent.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	err := s.source.Close()
	close(s.done)
	if s.trace != nil {
		s.trace.Reset()
	}
	s.logger.Info().Msg("Capture stopped")
	return err
}

// IsRunning reports whether capture is active.
func (s *Session) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
