package playback

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/ebitengine/oto/v3"

	"github.com/sargilabs/voice-agent/internal/audio"
)

// Speaker plays PCM through the default output device. The underlying
// audio context is process-global and pins the format of the first clip;
// later clips must match it.
type Speaker struct {
	mu     sync.Mutex
	ctx    *oto.Context
	format audio.Format
	player *oto.Player
}

// NewSpeaker creates an uninitialized speaker. The device is opened
// lazily on the first Play.
func NewSpeaker() *Speaker {
	return &Speaker{}
}

func (s *Speaker) ensureContext(f audio.Format) error {
	if s.ctx != nil {
		if f != s.format {
			return fmt.Errorf("output device is pinned to %+v, cannot play %+v", s.format, f)
		}
		return nil
	}
	if f.BitsPerSample != 16 {
		return fmt.Errorf("unsupported bit depth %d", f.BitsPerSample)
	}

	op := &oto.NewContextOptions{
		SampleRate:   f.SampleRate,
		ChannelCount: f.Channels,
		Format:       oto.FormatSignedInt16LE,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("failed to open output device: %w", err)
	}
	<-ready

	s.ctx = ctx
	s.format = f
	return nil
}

// Play starts a clip, replacing any clip still playing.
func (s *Speaker) Play(format audio.Format, pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureContext(format); err != nil {
		return err
	}
	if s.player != nil {
		s.player.Close()
		s.player = nil
	}

	p := s.ctx.NewPlayer(bytes.NewReader(pcm))
	p.Play()
	s.player = p
	return nil
}

// Stop halts and releases the current clip.
func (s *Speaker) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.player == nil {
		return nil
	}
	err := s.player.Close()
	s.player = nil
	return err
}
