package stream

import (
	"math/rand"
	"time"
)

const (
	initialDelay = time.Second
	maxDelay     = 60 * time.Second
	delayFactor  = 1.5

	// jitterFactor is the standard deviation of the delay, as a fraction of
	// the delay.
	jitterFactor = 0.11962656472
)

// backoff computes how long to wait between connection attempts.
type backoff struct {
	initial time.Duration
	max     time.Duration
	factor  float64
	current time.Duration

	// jitter randomizes a delay so that many clients don't reconnect in
	// lockstep. It's overridden in the unit tests.
	jitter func(time.Duration) time.Duration
}

func newBackoff() *backoff {
	return &backoff{
		initial: initialDelay,
		max:     maxDelay,
		factor:  delayFactor,
		current: initialDelay,
		jitter:  normalJitter,
	}
}

// next returns the delay before the next attempt, and grows the delay for
// the attempt after that.
func (b *backoff) next() time.Duration {
	delay := b.jitter(b.current)
	if delay < 0 {
		delay = 0
	}
	if delay > b.max {
		delay = b.max
	}

	b.current = time.Duration(float64(b.current) * b.factor)
	if b.current > b.max {
		b.current = b.max
	}
	return delay
}

// reset restores the initial delay. It's called after every successful
// connection.
func (b *backoff) reset() {
	b.current = b.initial
}

func normalJitter(d time.Duration) time.Duration {
	return d + time.Duration(rand.NormFloat64()*jitterFactor*float64(d))
}
