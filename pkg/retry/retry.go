// Package retry provides bounded retries with exponential backoff and
// deterministic jitter for the engine's reference-data reads.
package retry

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// Policy bounds a retried operation.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxJitter   time.Duration
}

// DefaultPolicy suits read-only reference lookups: three attempts with
// sub-second backoff, so a transient blip never stalls a posting attempt
// for long.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		MaxJitter:   50 * time.Millisecond,
	}
}

// Backoff returns the delay before the given attempt (0-based). Jitter is
// a deterministic function of the operation key and the attempt index, so
// retry timing is reproducible.
func (p Policy) Backoff(key string, attempt int) time.Duration {
	factor := int64(1)
	if attempt > 0 {
		if attempt > 30 {
			factor = 1 << 30
		} else {
			factor = 1 << attempt
		}
	}

	delay := p.BaseDelay * time.Duration(factor)
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay + p.jitter(key, attempt)
}

func (p Policy) jitter(key string, attempt int) time.Duration {
	if p.MaxJitter <= 0 {
		return 0
	}
	seed := fmt.Sprintf("%s:%d", key, attempt)
	sum := sha256.Sum256([]byte(seed))
	basis := binary.BigEndian.Uint64(sum[:8])
	return time.Duration(basis % uint64(p.MaxJitter))
}

// PermanentError marks an error as definitive so Do stops retrying.
type PermanentError struct{ Err error }

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so Do returns it immediately instead of retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Do runs fn up to MaxAttempts times, sleeping the policy's backoff
// between attempts and honoring context cancellation. Errors wrapped with
// Permanent stop the loop at once; otherwise the last error is returned
// when every attempt fails.
func Do(ctx context.Context, policy Policy, key string, fn func(ctx context.Context) error) error {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(policy.Backoff(key, attempt-1)):
			}
		}

		if lastErr = fn(ctx); lastErr == nil {
			return nil
		}
		var perm *PermanentError
		if errors.As(lastErr, &perm) {
			return perm.Err
		}
		if ctx.Err() != nil {
			return lastErr
		}
	}
	return lastErr
}
