// Package ratelimit paces outbound requests that are not driven through the
// browser, such as media downloads and back-to-back profile runs.
//
// TokenBucket wraps golang.org/x/time/rate behind the small Limiter
// interface so callers can swap in Unlimited for tests:
//
//	limiter := ratelimit.PerMinute(30)
//	if err := limiter.Wait(ctx); err != nil {
//		return err
//	}
package ratelimit
