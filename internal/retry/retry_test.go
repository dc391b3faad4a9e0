package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errTransient = errors.New("transient")
	errFatal     = errors.New("fatal")
)

func isTransient(err error) bool { return errors.Is(err, errTransient) }

// instantTimer fires as soon as it is started and records the delay.
type instantTimer struct {
	delays []time.Duration
	c      chan time.Time
}

func newInstantTimer() *instantTimer {
	return &instantTimer{c: make(chan time.Time, 1)}
}

func (r *instantTimer) Start(d time.Duration) {
	r.delays = append(r.delays, d)
	r.c <- time.Now()
}

func (r *instantTimer) Stop() {}

func (r *instantTimer) C() <-chan time.Time { return r.c }

func TestBackoffSchedule(t *testing.T) {
	p := Default(isTransient)
	want := []time.Duration{
		500 * time.Millisecond, time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 8 * time.Second,
	}
	for i, d := range want {
		assert.Equal(t, d, p.Backoff(i+1), "attempt %d", i+1)
	}
}

func TestDoRetriesTransientErrors(t *testing.T) {
	rec := newInstantTimer()
	p := Default(isTransient)
	p.Timer = rec

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls <= 3 {
			return errTransient
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second}, rec.delays)
}

func TestDoStopsOnFatalError(t *testing.T) {
	rec := newInstantTimer()
	p := Default(isTransient)
	p.Timer = rec

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return errFatal
	})

	assert.Same(t, errFatal, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.delays)
}

func TestDoGivesUpAfterMaxAttempts(t *testing.T) {
	rec := newInstantTimer()
	p := Default(isTransient)
	p.Timer = rec

	var retried []int
	p.OnRetry = func(attempt int, _ time.Duration, _ error) { retried = append(retried, attempt) }

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return errTransient
	})

	require.ErrorIs(t, err, errTransient)
	assert.Contains(t, err.Error(), "giving up after 6 attempts")
	assert.Equal(t, 6, calls)
	assert.Len(t, rec.delays, 5)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, retried)
}

func TestDoHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Default(isTransient)
	p.Initial = time.Hour

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- p.Do(ctx, func(context.Context) error {
			calls++
			return errTransient
		})
	}()
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
	assert.LessOrEqual(t, calls, 1)
}

func TestDoDoesNotCallWithDoneContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Default(isTransient).Do(ctx, func(context.Context) error {
		calls++
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestZeroMaxAttemptsStillCallsOnce(t *testing.T) {
	rec := newInstantTimer()
	p := Policy{Initial: time.Second, Multiplier: 2, Retryable: isTransient, Timer: rec}

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return errTransient
	})

	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.delays)
}
