// Package retry wraps a single network call in an explicit retry policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy retries a call while Retryable classifies its error as transient,
// waiting an exponentially growing delay between attempts.
type Policy struct {
	MaxAttempts int
	Initial     time.Duration
	Max         time.Duration
	Multiplier  float64
	Retryable   func(error) bool

	// Timer drives the waits between attempts. Nil means a real timer per
	// call; a non-nil Timer is shared by every call made with this policy.
	Timer backoff.Timer
	// OnRetry is called before each wait.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// Default is 6 attempts with delays 0.5s, 1s, 2s, 4s, 8s.
func Default(retryable func(error) bool) Policy {
	return Policy{
		MaxAttempts: 6,
		Initial:     500 * time.Millisecond,
		Max:         8 * time.Second,
		Multiplier:  2,
		Retryable:   retryable,
	}
}

// exponential is the policy's schedule without jitter or an elapsed-time cap.
func (p Policy) exponential() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.Initial,
		RandomizationFactor: 0,
		Multiplier:          p.Multiplier,
		MaxInterval:         p.Max,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	if b.MaxInterval <= 0 {
		b.MaxInterval = time.Duration(1<<63 - 1)
	}
	b.Reset()
	return b
}

// Backoff returns the delay after the given failed attempt (1-based).
func (p Policy) Backoff(attempt int) time.Duration {
	b := p.exponential()
	d := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}

// Do runs fn until it succeeds, fails with a non-retryable error, the
// attempts are exhausted or ctx is done. The last error is returned.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	attempt := 0
	transient := false
	op := func() error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		transient = p.Retryable != nil && p.Retryable(err)
		switch {
		case !transient:
			return backoff.Permanent(err)
		case ctx.Err() != nil && !errors.Is(err, ctx.Err()):
			return backoff.Permanent(fmt.Errorf("%w (last error: %v)", ctx.Err(), err))
		case ctx.Err() != nil:
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, delay time.Duration) {
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}
	}

	b := backoff.WithContext(backoff.WithMaxRetries(p.exponential(), uint64(maxAttempts-1)), ctx)
	err := backoff.RetryNotifyWithTimer(op, b, notify, p.Timer)
	if err != nil && transient && attempt >= maxAttempts && ctx.Err() == nil {
		return fmt.Errorf("giving up after %d attempts: %w", attempt, err)
	}
	return err
}
