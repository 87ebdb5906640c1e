// Package pacing produces human-like waits and input timing.
//
// Every wait goes through a Sleeper so tests can substitute an instant
// implementation and assert on the sequence of requested delays.
package pacing

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"
	"unicode"

	"igharvest/pkg/retry"
)

// Sleeper waits for d or until ctx is done
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper
type SleeperFunc func(ctx context.Context, d time.Duration) error

func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error { return f(ctx, d) }

// RealSleeper blocks on a timer
var RealSleeper Sleeper = SleeperFunc(retry.Wait)

// Clock reports the current time
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Input is the slice of a browser session needed to type and click
type Input interface {
	Clear(ctx context.Context, selector string) error
	SendKeys(ctx context.Context, selector, keys string) error
	Hover(ctx context.Context, selector string) error
	Click(ctx context.Context, selector string) error
}

const slowKeys = "!@#$%^&*()"

// Policy draws randomized delays and drives human-like input
type Policy struct {
	sleeper Sleeper
	enabled bool
	scale   float64

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures a Policy
type Option func(*Policy)

// WithRand fixes the random source
func WithRand(rng *rand.Rand) Option {
	return func(p *Policy) { p.rng = rng }
}

// WithScale multiplies every delay by s
func WithScale(s float64) Option {
	return func(p *Policy) { p.scale = s }
}

// Disabled turns every delay into a no-op while keeping input order intact
func Disabled() Option {
	return func(p *Policy) { p.enabled = false }
}

// New creates a policy; a nil sleeper means RealSleeper
func New(sleeper Sleeper, opts ...Option) *Policy {
	if sleeper == nil {
		sleeper = RealSleeper
	}
	p := &Policy{
		sleeper: sleeper,
		enabled: true,
		scale:   1.0,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.rng == nil {
		p.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return p
}

// Sleeper returns the underlying sleeper
func (p *Policy) Sleeper() Sleeper {
	return p.sleeper
}

// HumanDuration draws from a normal distribution centred in [min, max] with
// three standard deviations to each bound, clamped to the window.
func (p *Policy) HumanDuration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	mean := float64(min+max) / 2
	stdDev := float64(max-min) / 6

	p.mu.Lock()
	d := p.rng.NormFloat64()*stdDev + mean
	p.mu.Unlock()

	if d < float64(min) {
		d = float64(min)
	}
	if d > float64(max) {
		d = float64(max)
	}
	return time.Duration(d)
}

// UniformDuration draws uniformly from [min, max]
func (p *Policy) UniformDuration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return min + time.Duration(p.rng.Int63n(int64(max-min)+1))
}

// Chance reports true with probability prob
func (p *Policy) Chance(prob float64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Float64() < prob
}

// Pick returns a random index below n
func (p *Policy) Pick(n int) int {
	if n <= 1 {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Intn(n)
}

// HumanDelay waits a normally distributed duration inside [min, max]
func (p *Policy) HumanDelay(ctx context.Context, min, max time.Duration) error {
	return p.wait(ctx, p.HumanDuration(min, max))
}

// RandomDelay waits a uniformly distributed duration inside [min, max]
func (p *Policy) RandomDelay(ctx context.Context, min, max time.Duration) error {
	return p.wait(ctx, p.UniformDuration(min, max))
}

func (p *Policy) wait(ctx context.Context, d time.Duration) error {
	if !p.enabled {
		return ctx.Err()
	}
	return p.sleeper.Sleep(ctx, time.Duration(float64(d)*p.scale))
}

// KeyDelay is the pause after typing r: 80-200ms, plus 50-150ms for capitals
// and shifted symbols.
func (p *Policy) KeyDelay(r rune) time.Duration {
	d := p.UniformDuration(80*time.Millisecond, 200*time.Millisecond)
	if unicode.IsUpper(r) || strings.ContainsRune(slowKeys, r) {
		d += p.UniformDuration(50*time.Millisecond, 150*time.Millisecond)
	}
	return d
}

// TypeText sends text one character at a time with per-key pauses
func (p *Policy) TypeText(ctx context.Context, in Input, selector, text string) error {
	for _, r := range text {
		if err := in.SendKeys(ctx, selector, string(r)); err != nil {
			return err
		}
		if err := p.wait(ctx, p.KeyDelay(r)); err != nil {
			return err
		}
	}
	return nil
}

// Click pauses, hovers, pauses again and clicks. Hover failures are ignored.
func (p *Policy) Click(ctx context.Context, in Input, selector string) error {
	if err := p.HumanDelay(ctx, 200*time.Millisecond, 600*time.Millisecond); err != nil {
		return err
	}
	if err := in.Hover(ctx, selector); err == nil {
		if err := p.HumanDelay(ctx, 100*time.Millisecond, 300*time.Millisecond); err != nil {
			return err
		}
	}
	return in.Click(ctx, selector)
}
