package capture

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

// SystemSource captures from the default system microphone via miniaudio.
// The device delivers 16-bit mono PCM which is normalized to float32 and
// re-blocked into fixed-size frames before delivery.
type SystemSource struct {
	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	pending []float32
}

// NewSystemSource returns an unopened system microphone source.
func NewSystemSource() *SystemSource {
	return &SystemSource{}
}

// Open initializes the capture device and starts delivery.
func (s *SystemSource) Open(sampleRate, frameSize int, deliver func(samples []float32)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device != nil {
		return fmt.Errorf("source already open")
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("init audio context: %w", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20

	s.pending = s.pending[:0]

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pInputSamples []byte, _ uint32) {
			s.onData(pInputSamples, frameSize, deliver)
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("init capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("start capture device: %w", err)
	}

	s.ctx = ctx
	s.device = device
	return nil
}

// onData normalizes the raw 16-bit samples and emits full frames. Runs on
// the miniaudio callback thread, so it only slices and copies.
func (s *SystemSource) onData(raw []byte, frameSize int, deliver func([]float32)) {
	for i := 0; i+1 < len(raw); i += 2 {
		v := int16(raw[i]) | int16(raw[i+1])<<8
		s.pending = append(s.pending, float32(v)/32768.0)
	}
	for len(s.pending) >= frameSize {
		frame := make([]float32, frameSize)
		copy(frame, s.pending[:frameSize])
		s.pending = s.pending[frameSize:]
		deliver(frame)
	}
}

// Close stops the device and releases the audio context. Idempotent.
func (s *SystemSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device == nil {
		return nil
	}
	_ = s.device.Stop()
	s.device.Uninit()
	s.device = nil

	if s.ctx != nil {
		_ = s.ctx.Uninit()
		s.ctx.Free()
		s.ctx = nil
	}
	s.pending = nil
	return nil
}
