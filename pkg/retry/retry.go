package retry

import (
	"context"
	"fmt"
	"time"

	errs "igharvest/pkg/errors"
	"igharvest/pkg/logger"
)

// Operation performs one numbered attempt (1-based)
type Operation func(ctx context.Context, attempt int) error

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Config holds retry configuration
type Config struct {
	// MaxAttempts is the maximum number of attempts (0 means unlimited)
	MaxAttempts int
	// Backoff strategy to use between attempts
	Backoff BackoffStrategy
	// RetryIf determines if an error should be retried
	RetryIf func(error) bool
	// OnRetry is called before each wait
	OnRetry func(attempt int, err error, delay time.Duration)
	// Context for cancellation
	Context context.Context
	// Logger for retry attempts
	Logger logger.Logger
	// Sleep replaces the real wait, mostly for tests
	Sleep SleepFunc
}

func defaultBackoff() BackoffStrategy {
	return &ExponentialBackoff{Base: time.Second, Cap: time.Minute, Factor: 2, Jitter: 0.1}
}

// DefaultConfig is three attempts with exponential backoff, retrying what
// errs.ShouldRetry accepts
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 3,
		Backoff:     defaultBackoff(),
		RetryIf:     errs.ShouldRetry,
		Context:     context.Background(),
		Logger:      logger.GetLogger(),
		Sleep:       Wait,
	}
}

func (c *Config) withDefaults() *Config {
	out := *c
	if out.Backoff == nil {
		out.Backoff = defaultBackoff()
	}
	if out.RetryIf == nil {
		out.RetryIf = errs.ShouldRetry
	}
	if out.Context == nil {
		out.Context = context.Background()
	}
	if out.Logger == nil {
		out.Logger = logger.NewNopLogger()
	}
	if out.Sleep == nil {
		out.Sleep = Wait
	}
	return &out
}

// ExhaustedError is returned when every allowed attempt failed
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("max retry attempts (%d) exceeded: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Do runs op until it succeeds, a non-retryable error occurs, the context is
// cancelled or MaxAttempts is reached. No wait follows the final attempt.
func Do(op Operation, cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg = cfg.withDefaults()
	ctx := cfg.Context

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx, attempt)
		if err == nil {
			if attempt > 1 {
				cfg.Logger.DebugWithFields("operation succeeded after retry", map[string]interface{}{
					"attempt": attempt,
				})
			}
			return nil
		}

		if !cfg.RetryIf(err) {
			cfg.Logger.DebugWithFields("error is not retryable", map[string]interface{}{
				"attempt": attempt,
				"error":   err.Error(),
			})
			return err
		}

		if cfg.MaxAttempts > 0 && attempt >= cfg.MaxAttempts {
			cfg.Logger.WarnWithFields("max retry attempts exceeded", map[string]interface{}{
				"attempts":   attempt,
				"last_error": err.Error(),
			})
			return &ExhaustedError{Attempts: attempt, Last: err}
		}

		delay := cfg.Backoff.NextDelay(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}

		if werr := cfg.Sleep(ctx, delay); werr != nil {
			cfg.Logger.WarnWithFields("retry cancelled", map[string]interface{}{
				"attempt": attempt,
				"reason":  werr.Error(),
			})
			return fmt.Errorf("retry cancelled: %w", werr)
		}
	}
}

// DoWithResult executes an operation that returns a result with retry logic
func DoWithResult[T any](op func(ctx context.Context, attempt int) (T, error), cfg *Config) (T, error) {
	var result T
	err := Do(func(ctx context.Context, attempt int) error {
		var opErr error
		result, opErr = op(ctx, attempt)
		return opErr
	}, cfg)
	return result, err
}
