// Package retry runs numbered attempts with a pluggable backoff between them.
//
// It drives both the scrape attempt loop (fresh browser session per attempt,
// uniform 3-8s window between attempts) and media downloads (exponential
// backoff).
//
//	err := retry.Do(func(ctx context.Context, attempt int) error {
//		return runAttempt(ctx, attempt)
//	}, &retry.Config{
//		MaxAttempts: 3,
//		Backoff:     retry.NewWindowBackoff(3*time.Second, 8*time.Second, nil),
//		Context:     ctx,
//	})
//
// When every attempt fails, Do returns an *ExhaustedError wrapping the last
// attempt's error. No wait is performed after the final attempt.
package retry
