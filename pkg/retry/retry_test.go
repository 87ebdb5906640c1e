package retry

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "igharvest/pkg/errors"
)

type recordedSleeps struct {
	delays []time.Duration
}

func (r *recordedSleeps) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func TestExponentialBackoff(t *testing.T) {
	backoff := &ExponentialBackoff{
		Base:   100 * time.Millisecond,
		Cap:    1 * time.Second,
		Factor: 2.0,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 0},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, 1 * time.Second},
		{6, 1 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, backoff.NextDelay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestExponentialBackoffJitterStaysInBand(t *testing.T) {
	backoff := &ExponentialBackoff{Base: time.Second, Cap: time.Minute, Factor: 3, Jitter: 0.2}
	for i := 0; i < 100; i++ {
		d := backoff.NextDelay(2)
		require.GreaterOrEqual(t, d, 2400*time.Millisecond)
		require.LessOrEqual(t, d, 3600*time.Millisecond)
	}
}

func TestWindowBackoffStaysInsideWindow(t *testing.T) {
	wb := NewWindowBackoff(3*time.Second, 8*time.Second, rand.New(rand.NewSource(7)))

	seen := map[time.Duration]bool{}
	for i := 0; i < 200; i++ {
		d := wb.NextDelay(1 + i%3)
		require.GreaterOrEqual(t, d, 3*time.Second)
		require.LessOrEqual(t, d, 8*time.Second)
		seen[d] = true
	}
	assert.Greater(t, len(seen), 1)

	fixed := NewWindowBackoff(2*time.Second, 2*time.Second, nil)
	assert.Equal(t, 2*time.Second, fixed.NextDelay(1))
}

func TestDoSucceedsAfterRetries(t *testing.T) {
	sleeps := &recordedSleeps{}
	var seen []int

	err := Do(func(ctx context.Context, attempt int) error {
		seen = append(seen, attempt)
		if attempt < 3 {
			return errs.New(errs.ErrorTypeRateLimit, "wait")
		}
		return nil
	}, &Config{
		MaxAttempts: 5,
		Backoff:     &ConstantBackoff{Delay: time.Second},
		Sleep:       sleeps.sleep,
	})

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, seen)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, sleeps.delays)
}

func TestDoExhaustsWithoutTrailingWait(t *testing.T) {
	sleeps := &recordedSleeps{}
	var retries []int
	last := errs.New(errs.ErrorTypeRateLimit, "still limited")

	err := Do(func(ctx context.Context, attempt int) error {
		return last
	}, &Config{
		MaxAttempts: 3,
		Backoff:     &ConstantBackoff{Delay: 5 * time.Second},
		Sleep:       sleeps.sleep,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			retries = append(retries, attempt)
		},
	})

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.ErrorIs(t, err, last)
	assert.Len(t, sleeps.delays, 2)
	assert.Equal(t, []int{1, 2}, retries)
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	calls := 0
	storeErr := errs.New(errs.ErrorTypeStore, "locked")

	err := Do(func(ctx context.Context, attempt int) error {
		calls++
		return storeErr
	}, &Config{MaxAttempts: 3, Sleep: (&recordedSleeps{}).sleep})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, storeErr)
}

func TestDoHonoursCancellationDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := Do(func(ctx context.Context, attempt int) error {
		calls++
		cancel()
		return errors.New("transient")
	}, &Config{
		MaxAttempts: 3,
		Backoff:     &ConstantBackoff{Delay: time.Hour},
		Context:     ctx,
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoWithResult(t *testing.T) {
	got, err := DoWithResult(func(ctx context.Context, attempt int) (string, error) {
		if attempt == 1 {
			return "", errors.New("first try fails")
		}
		return "ok", nil
	}, &Config{MaxAttempts: 2, Sleep: (&recordedSleeps{}).sleep})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

func TestWait(t *testing.T) {
	require.NoError(t, Wait(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Wait(ctx, time.Hour), context.Canceled)
	assert.ErrorIs(t, Wait(ctx, 0), context.Canceled)
}
