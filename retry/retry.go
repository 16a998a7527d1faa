// Package retry runs an operation with a bounded number of retries and a
// doubling delay between them. It backs replication fetches and adapter
// publishes.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultBackoff is the delay before the first retry.
const DefaultBackoff = 500 * time.Millisecond

// Policy bounds the attempts of one operation.
type Policy struct {
	// Retries is the number of attempts after the first.
	Retries int
	// Backoff is the delay before the first retry; it doubles per retry.
	// Zero means DefaultBackoff.
	Backoff time.Duration
	// OnRetry, when set, is called before each retry with the 1-based number
	// of the attempt about to run and the error that caused it.
	OnRetry func(attempt int, err error)
}

// Validate rejects negative retry counts.
func (p Policy) Validate() error {
	if p.Retries < 0 {
		return fmt.Errorf("retries must be >= 0, got %d", p.Retries)
	}
	return nil
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do runs attempt until it succeeds, returns a Permanent error, the context
// ends, or the policy is exhausted. A Permanent error is returned unwrapped;
// otherwise the result wraps the last attempt's error.
func (p Policy) Do(ctx context.Context, attempt func(context.Context) error) error {
	backoff := p.Backoff
	if backoff <= 0 {
		backoff = DefaultBackoff
	}

	var lastErr error
	for i := 0; i <= p.Retries; i++ {
		if i > 0 {
			if p.OnRetry != nil {
				p.OnRetry(i+1, lastErr)
			}
			t := time.NewTimer(backoff << (i - 1))
			select {
			case <-ctx.Done():
				t.Stop()
				return fmt.Errorf("canceled after %d attempts: %w", i, ctx.Err())
			case <-t.C:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = attempt(ctx)
		if lastErr == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}
	}

	if p.Retries == 0 {
		return lastErr
	}
	return fmt.Errorf("failed after %d attempts: %w", p.Retries+1, lastErr)
}
