package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy describes a bounded retry loop with a fixed delay between attempts.
// The object store and the task handlers share one policy instead of
// scattering ad-hoc sleep loops around every storage call.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration

	// Retryable decides whether an error is worth another attempt.
	// A nil predicate retries every error.
	Retryable func(error) bool
}

// Default is the policy used for object store stat/put/verify calls:
// 3 attempts with a short fixed backoff.
var Default = Policy{MaxAttempts: 3, Delay: time.Second}

// Do runs fn until it succeeds, the policy is exhausted, or ctx is done.
// The last error is returned wrapped with the attempt count.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Delay):
		}
	}
	return fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}

// Do runs fn under the default policy.
func Do(ctx context.Context, fn func() error) error {
	return Default.Do(ctx, fn)
}
