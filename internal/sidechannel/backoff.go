package sidechannel

import "time"

// backoff computes bounded exponential reconnect delays: each failure
// doubles the wait up to the ceiling, and a successful connection resets it.
type backoff struct {
	base time.Duration
	max  time.Duration
	next time.Duration
}

func newBackoff(base, max time.Duration) *backoff {
	return &backoff{base: base, max: max}
}

// Next returns the delay to wait before the next attempt.
func (b *backoff) Next() time.Duration {
	d := b.next
	if b.next == 0 {
		b.next = b.base
	} else {
		b.next *= 2
		if b.next > b.max {
			b.next = b.max
		}
	}
	return d
}

// Reset clears the delay after a successful connection.
func (b *backoff) Reset() {
	b.next = 0
}
