// Package playback hands synthesized audio containers to an output
// device. One utterance plays at a time; a new container supersedes
// whatever is still playing.
package playback

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/sargilabs/voice-agent/internal/audio"
	"github.com/sargilabs/voice-agent/internal/observability"
)

// PlaybackError is non-fatal: the reply text was already recorded in
// the conversation, only the spoken rendition is lost.
type PlaybackError struct {
	Err error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("playback failed: %v", e.Err)
}

func (e *PlaybackError) Unwrap() error {
	return e.Err
}

// Output plays raw PCM on some device. Play starts the clip and returns
// immediately; Stop halts whatever is playing.
type Output interface {
	Play(format audio.Format, pcm []byte) error
	Stop() error
}

// Controller validates containers and serializes access to the output.
type Controller struct {
	out    Output
	logger zerolog.Logger

	mu      sync.Mutex
	playing bool
}

// NewController creates a playback controller over the given output.
func NewController(out Output, logger zerolog.Logger) *Controller {
	return &Controller{
		out:    out,
		logger: logger.With().Str("component", "playback").Logger(),
	}
}

// Play parses a WAV container and starts it on the output, stopping any
// clip still playing. The blob is not retained past this call.
func (c *Controller) Play(wavBlob []byte) error {
	format, pcm, err := audio.ParseWAV(wavBlob)
	if err != nil {
		observability.RecordError("playback", "playback")
		return &PlaybackError{Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.playing {
		if err := c.out.Stop(); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to stop superseded clip")
		}
		c.playing = false
	}

	if err := c.out.Play(format, pcm); err != nil {
		observability.RecordError("playback", "playback")
		return &PlaybackError{Err: err}
	}
	c.playing = true
	c.logger.Debug().
		Int("sample_rate", format.SampleRate).
		Int("bytes", len(pcm)).
		Msg("Playback started")
	return nil
}

// Stop halts the current clip, if any. Safe to call repeatedly.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.playing {
		return
	}
	if err := c.out.Stop(); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to stop playback")
	}
	c.playing = false
}
