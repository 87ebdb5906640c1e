package retry

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// BackoffStrategy yields the wait after failed attempt n (1-based). Zero or
// negative attempts always wait zero.
type BackoffStrategy interface {
	NextDelay(attempt int) time.Duration
}

// lockedRand is a rand.Rand safe for concurrent attempts
type lockedRand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newLockedRand(rng *rand.Rand) *lockedRand {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &lockedRand{rng: rng}
}

// between returns a duration uniformly drawn from [lo, hi]
func (r *lockedRand) between(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo + time.Duration(r.rng.Int63n(int64(hi-lo)+1))
}

var sharedRand = newLockedRand(nil)

// ExponentialBackoff grows Base by Factor per attempt up to Cap, then spreads
// the result by plus or minus Jitter (a fraction of the delay).
type ExponentialBackoff struct {
	Base   time.Duration
	Cap    time.Duration
	Factor float64
	Jitter float64
}

func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	factor := eb.Factor
	if factor < 1 {
		factor = 2
	}

	delay := eb.Base
	for i := 1; i < attempt && (eb.Cap <= 0 || delay < eb.Cap); i++ {
		delay = time.Duration(float64(delay) * factor)
	}
	if eb.Cap > 0 && delay > eb.Cap {
		delay = eb.Cap
	}

	if eb.Jitter > 0 {
		spread := time.Duration(float64(delay) * eb.Jitter)
		delay = sharedRand.between(delay-spread, delay+spread)
	}
	if delay < 0 {
		return 0
	}
	return delay
}

// ConstantBackoff waits Delay after every failure
type ConstantBackoff struct {
	Delay time.Duration
}

func (cb *ConstantBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return cb.Delay
}

// WindowBackoff draws a uniform delay in [Min, Max] regardless of the attempt
type WindowBackoff struct {
	Min time.Duration
	Max time.Duration

	rng *lockedRand
}

// NewWindowBackoff creates a window backoff; a nil rng seeds from the clock
func NewWindowBackoff(min, max time.Duration, rng *rand.Rand) *WindowBackoff {
	return &WindowBackoff{Min: min, Max: max, rng: newLockedRand(rng)}
}

func (wb *WindowBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	r := wb.rng
	if r == nil {
		r = sharedRand
	}
	return r.between(wb.Min, wb.Max)
}

// Wait blocks for delay or until ctx is done. A non-positive delay only
// reports the context state.
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
