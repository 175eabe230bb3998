// Package retry paces the client's bounded handshake retry loop with
// an exponential backoff, built on top of a token-bucket rate limiter
// the same way the rest of the pack uses one for throughput pacing:
// here the "rate" being limited is connection attempts per unit time
// rather than bytes per second.
package retry

import (
	"context"
	"math"
	"time"

	"golang.org/x/time/rate"
)

// DefaultInitialDelay is the wait before the first retry.
const DefaultInitialDelay = 500 * time.Millisecond

// DefaultMaxDelay caps the backoff regardless of attempt count.
const DefaultMaxDelay = 5 * time.Second

// DefaultMultiplier is the exponential growth factor applied per
// attempt.
const DefaultMultiplier = 2.0

// Backoff paces successive retry attempts with exponentially growing
// delays. It is not safe for concurrent use; each retry loop owns one.
type Backoff struct {
	limiter    *rate.Limiter
	initial    time.Duration
	max        time.Duration
	multiplier float64
	attempt    int
}

// New creates a Backoff starting at initial and growing by multiplier
// each attempt, capped at max.
func New(initial, max time.Duration, multiplier float64) *Backoff {
	limiter := rate.NewLimiter(rate.Every(initial), 1)
	// Drain the limiter's initial burst token so the first Wait call
	// actually paces rather than returning immediately.
	limiter.ReserveN(time.Now(), 1)

	return &Backoff{
		limiter:    limiter,
		initial:    initial,
		max:        max,
		multiplier: multiplier,
	}
}

// NewDefault creates a Backoff using the package defaults.
func NewDefault() *Backoff {
	return New(DefaultInitialDelay, DefaultMaxDelay, DefaultMultiplier)
}

// Wait blocks until the current backoff delay has elapsed or ctx is
// canceled, then advances the delay for the next call.
func (b *Backoff) Wait(ctx context.Context) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	b.advance()
	return nil
}

// Attempt returns the number of delays issued so far.
func (b *Backoff) Attempt() int {
	return b.attempt
}

func (b *Backoff) advance() {
	b.attempt++
	delay := time.Duration(float64(b.initial) * math.Pow(b.multiplier, float64(b.attempt)))
	if delay > b.max {
		delay = b.max
	}
	b.limiter.SetLimit(rate.Every(delay))
}
