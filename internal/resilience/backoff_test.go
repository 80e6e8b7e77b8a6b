package resilience

import (
	"testing"
	"time"
)

func TestBackoff_Schedule(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second}, // 32s clamped to the cap
		{10, 30 * time.Second},
	}
	for _, tt := range tests {
		got := Backoff(tt.attempt, 1*time.Second, 30*time.Second)
		if got != tt.expected {
			t.Errorf("Attempt %d: expected %v, got %v", tt.attempt, tt.expected, got)
		}
	}
}

func TestBackoff_Defaults(t *testing.T) {
	if got := Backoff(0, 0, 0); got != DefaultBackoff {
		t.Errorf("Expected default base %v, got %v", DefaultBackoff, got)
	}
	if got := Backoff(20, 0, 0); got != DefaultMaxBackoff {
		t.Errorf("Expected cap %v, got %v", DefaultMaxBackoff, got)
	}
}

func TestBackoff_BaseAboveMax(t *testing.T) {
	if got := Backoff(0, 2*time.Minute, 30*time.Second); got != 30*time.Second {
		t.Errorf("Expected base clamped to max, got %v", got)
	}
}
