package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter defines the interface for rate limiting
type Limiter interface {
	// Allow reports whether a request may proceed now, consuming a token if so
	Allow() bool
	// Wait blocks until a request may proceed or ctx is done
	Wait(ctx context.Context) error
	// Reset refills the limiter to its initial burst
	Reset()
}

// TokenBucket spreads `count` requests evenly over `per`, allowing bursts of
// up to `burst` requests.
type TokenBucket struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	limit   rate.Limit
	burst   int
}

// NewTokenBucket creates a limiter admitting count requests per period
func NewTokenBucket(count int, per time.Duration, burst int) *TokenBucket {
	if count <= 0 {
		count = 1
	}
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Every(per / time.Duration(count))
	return &TokenBucket{
		limiter: rate.NewLimiter(limit, burst),
		limit:   limit,
		burst:   burst,
	}
}

// PerMinute is shorthand for NewTokenBucket(n, time.Minute, 1)
func PerMinute(n int) *TokenBucket {
	return NewTokenBucket(n, time.Minute, 1)
}

// Allow checks if a request can proceed
func (tb *TokenBucket) Allow() bool {
	return tb.current().Allow()
}

// Wait blocks until a token is available
func (tb *TokenBucket) Wait(ctx context.Context) error {
	return tb.current().Wait(ctx)
}

// Reset resets the token bucket to full capacity
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.limiter = rate.NewLimiter(tb.limit, tb.burst)
}

func (tb *TokenBucket) current() *rate.Limiter {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.limiter
}

// Unlimited never blocks
type Unlimited struct{}

func (Unlimited) Allow() bool { return true }
func (Unlimited) Wait(ctx context.Context) error { return ctx.Err() }
func (Unlimited) Reset() {}
