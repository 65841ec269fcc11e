// Package retry wraps operations that can fail with a transient uniqueness
// conflict (two writers raced on a sequence number) in bounded retry with
// linear backoff and jitter. Only errors explicitly marked via Conflict are
// retried; everything else, including timeouts and storage outages,
// propagates immediately so sequence numbers are not burned needlessly.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 25 * time.Millisecond
)

// ErrRetriesExhausted means every attempt ended in a conflict. Safe for the
// caller to retry the whole business action: no partially numbered entity
// survives a conflicted attempt.
var ErrRetriesExhausted = errors.New("retries exhausted")

type conflictError struct {
	err error
}

func (e *conflictError) Error() string { return "sequence conflict: " + e.err.Error() }
func (e *conflictError) Unwrap() error { return e.err }

// Conflict marks err as a retryable uniqueness conflict.
func Conflict(err error) error {
	return &conflictError{err: err}
}

// IsConflict reports whether err was marked by Conflict.
func IsConflict(err error) bool {
	var ce *conflictError
	return errors.As(err, &ce)
}

// Policy controls attempt count and backoff. The zero value uses defaults.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration

	// sleep is overridable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Do runs op up to MaxAttempts times, re-invoking it after
// BaseDelay*attempt + jitter whenever it returns a Conflict-marked error.
// Other errors propagate unchanged on the first occurrence.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if !IsConflict(err) {
			return zero, err
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		delay := time.Duration(attempt)*base + rand.N(base)
		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
	return zero, fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, attempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
