// Package turn detects end of utterance: a debounced timer that fires
// once per quiet period unless a transcript event restarts it first.
package turn

import (
	"sync"
	"time"
)

// DefaultQuietPeriod is the silence interval after the last final
// transcript before a turn is considered complete.
const DefaultQuietPeriod = 3 * time.Second

// Detector is a single cancel-and-restart timer keyed to one session.
// Firing is edge-triggered: after the callback runs the detector is inert
// until the next Reset. The callback is invoked under the detector's
// mutex so a concurrent Cancel either precedes the fire (and suppresses
// it) or observes it completed; the callback must therefore not call back
// into the detector. Spawn work onto another goroutine instead.
type Detector struct {
	quiet  time.Duration
	onFire func()

	mu        sync.Mutex
	timer     *time.Timer
	gen       uint64
	armed     bool
	cancelled bool
}

// NewDetector creates an inert detector. It arms on the first Reset.
func NewDetector(quiet time.Duration, onFire func()) *Detector {
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	return &Detector{quiet: quiet, onFire: onFire}
}

// Reset restarts the quiet-period timer. Called on every non-empty final
// transcript event. A no-op once the detector is cancelled: an event
// racing a teardown must not re-arm the timer.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cancelled {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.armed = true
	d.timer = time.AfterFunc(d.quiet, func() {
		d.fire(gen)
	})
}

// fire runs the callback only if no Reset or Cancel intervened since this
// timer was armed. The generation check closes the race between a firing
// timer and a concurrent cancellation.
func (d *Detector) fire(gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.armed || gen != d.gen {
		return
	}
	d.armed = false
	if d.onFire != nil {
		d.onFire()
	}
}

// Cancel disarms the detector permanently. The callback is guaranteed
// not to run after Cancel returns, and later Resets are ignored; each
// session run builds a fresh detector.
func (d *Detector) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cancelled = true
	d.gen++
	d.armed = false
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Armed reports whether the detector is waiting out a quiet period.
func (d *Detector) Armed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.armed
}
