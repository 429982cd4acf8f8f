package backoff

import (
	"context"
	"errors"
	"time"
)

// Policy computes a deterministic exponential retry schedule:
// Base, 2*Base, 4*Base, ... capped at MaxAttempts tries.
type Policy struct {
	Base        time.Duration
	MaxAttempts int
}

// LoginPolicy returns the retry budget for login operations (2s/4s/8s).
func LoginPolicy() Policy {
	return Policy{Base: 2 * time.Second, MaxAttempts: 3}
}

// FetchPolicy returns the retry budget for page fetches (1s/2s/4s).
func FetchPolicy() Policy {
	return Policy{Base: time.Second, MaxAttempts: 3}
}

// Delay returns the wait before retrying after the given attempt.
// Attempts are numbered from 1.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.Base << (attempt - 1)
}

// Permanent marks an error as non-retryable. Retry surfaces it immediately.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so Retry will not attempt it again.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retry runs op up to p.MaxAttempts times, sleeping p.Delay(n) between
// attempts. It returns nil on the first success, the unwrapped error for a
// Permanent failure, and the last error once the budget is exhausted.
// Context cancellation aborts the wait.
func (p Policy) Retry(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		lastErr = err
		if attempt == p.MaxAttempts {
			break
		}
		timer := time.NewTimer(p.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}
