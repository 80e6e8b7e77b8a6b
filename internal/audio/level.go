package audio

import (
	"math"
	"sync"
)

// TraceLength is the number of loudness samples retained for the level
// visualization.
const TraceLength = 60

// Level reduces a raw sample frame to a normalized loudness scalar in
// [0, 1]. Peak amplitude is used rather than RMS so short transients stay
// visible in the trace.
func Level(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	peak := 0.0
	for _, s := range samples {
		a := math.Abs(float64(s))
		if a > peak {
			peak = a
		}
	}
	if peak > 1.0 {
		peak = 1.0
	}
	return peak
}

// RMS returns the root mean square of a sample frame. Kept alongside Level
// for silence detection and diagnostics.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// LevelTrace is a fixed-length window of loudness samples. Pushing a new
// value drops the oldest; the most recent value is always last. Safe for
// one writer and concurrent readers.
type LevelTrace struct {
	mu     sync.RWMutex
	values [TraceLength]float64
}

// NewLevelTrace returns a trace filled with zeros.
func NewLevelTrace() *LevelTrace {
	return &LevelTrace{}
}

// Push appends a loudness sample, discarding the oldest.
func (t *LevelTrace) Push(level float64) {
	t.mu.Lock()
	copy(t.values[:], t.values[1:])
	t.values[TraceLength-1] = level
	t.mu.Unlock()
}

// Values returns a copy of the trace, oldest first.
func (t *LevelTrace) Values() []float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]float64, TraceLength)
	copy(out, t.values[:])
	return out
}

// Reset zeroes the trace. Called when capture stops so the visualization
// returns to its empty state.
func (t *LevelTrace) Reset() {
	t.mu.Lock()
	t.values = [TraceLength]float64{}
	t.mu.Unlock()
}
