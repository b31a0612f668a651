package llm

import "time"

// Backoff is a capped exponential delay curve between gateway attempts
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff waits 500ms, 1s, 2s, 4s, then 8s for every later retry
func DefaultBackoff() Backoff {
	return Backoff{Base: 500 * time.Millisecond, Max: 8 * time.Second}
}

// Delay returns the wait after the given failed attempt (1-based)
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 || b.Base <= 0 {
		return 0
	}
	d := b.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}
