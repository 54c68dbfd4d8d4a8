package pool

import (
	"math/rand"
	"time"

	"github.com/kvlink/kvlink/core/common"
)

// Backoff computes the delay schedule of one reconnect loop: exponential
// growth from the configured minimum to the configured maximum with a small
// random jitter (+-10%), optionally bounded to a maximum number of attempts.
//
// The type only computes delays, it owns no timers. That keeps the schedule
// testable without waiting on real clocks.
type Backoff struct {
	min         time.Duration
	max         time.Duration
	maxAttempts int
	attempt     int
	current     time.Duration
}

// NewBackoff creates a backoff schedule from the client configuration.
func NewBackoff(conf common.ClientConfig) *Backoff {
	min := time.Duration(conf.BackoffMin()) * time.Millisecond
	max := time.Duration(conf.BackoffMax()) * time.Millisecond
	if max < min {
		max = min
	}
	return &Backoff{
		min:         min,
		max:         max,
		maxAttempts: conf.Pool.ReconnectMaxAttempts,
		current:     min,
	}
}

// Next returns the delay to wait before the next attempt and whether another
// attempt is allowed at all. The first call returns the minimum delay.
func (b *Backoff) Next() (time.Duration, bool) {
	if b.maxAttempts > 0 && b.attempt >= b.maxAttempts {
		return 0, false
	}
	b.attempt++

	base := b.current

	// Grow for the following attempt, capped at the maximum
	b.current *= 2
	if b.current > b.max {
		b.current = b.max
	}

	// Jitter +-10% so reconnecting clients do not stampede
	jitter := float64(base) * (0.9 + 0.2*rand.Float64())
	return time.Duration(jitter), true
}

// Attempt returns the number of attempts handed out so far.
func (b *Backoff) Attempt() int {
	return b.attempt
}

// Reset restarts the schedule after a successful connection.
func (b *Backoff) Reset() {
	b.attempt = 0
	b.current = b.min
}
