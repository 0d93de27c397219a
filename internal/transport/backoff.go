package transport

import "time"

// backoffExponentCap bounds the shift so min<<exponent cannot overflow.
const backoffExponentCap = 16

// Backoff is a capped exponential reconnect delay.
type Backoff struct {
	Min time.Duration
	Max time.Duration
}

// Delay returns the wait before reconnect attempt n (1-based). The first
// attempt waits Min and each later one doubles it, up to Max.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return b.Min
	}
	exponent := min(attempt-1, backoffExponentCap)
	delay := b.Min << exponent
	if delay <= 0 || delay > b.Max {
		return b.Max
	}
	return delay
}
