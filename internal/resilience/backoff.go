// Package resilience provides the reconnect backoff schedule shared by
// streaming collaborators.
package resilience

import "time"

// DefaultBackoff is the base delay before the first reconnect attempt.
const DefaultBackoff = 1 * time.Second

// DefaultMaxBackoff caps the reconnect delay.
const DefaultMaxBackoff = 30 * time.Second

// Backoff returns the delay before reconnect attempt n: base * 2^n,
// clamped to max. Attempt numbering starts at 0, so the first retry waits
// the base delay.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 {
		base = DefaultBackoff
	}
	if max <= 0 {
		max = DefaultMaxBackoff
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
