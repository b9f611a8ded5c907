// Package retry provides the bounded exponential-backoff wrapper shared
// by the relay client's drop call and the remote engine: up to a
// fixed number of attempts, backoff doubling on each failure and
// capped, never retried indefinitely.
package retry

import (
	"context"
	"time"
)

const (
	// MaxAttempts is the default retry ceiling for relay drops and
	// remote engine calls.
	MaxAttempts = 4
	// BackoffCap is the maximum delay between attempts.
	BackoffCap = 30 * time.Second

	initialBackoff = 1 * time.Second
)

// WithBackoff calls fn up to maxAttempts times, doubling the delay
// between attempts starting at 1s and capping at backoffCap. It
// returns the last error if every attempt fails, or nil as soon as one
// succeeds. Context cancellation aborts immediately, returning the
// context's error.
func WithBackoff(ctx context.Context, maxAttempts int, backoffCap time.Duration, fn func() error) error {
	if maxAttempts <= 0 {
		maxAttempts = MaxAttempts
	}
	if backoffCap <= 0 {
		backoffCap = BackoffCap
	}

	delay := initialBackoff
	if delay > backoffCap {
		delay = backoffCap
	}
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if attempt == maxAttempts-1 {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > backoffCap {
			delay = backoffCap
		}
	}

	return lastErr
}
