// Package retry centralizes the bounded retry/backoff policy used for
// collaborator calls (transcription, scoring, feed fetches).
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy describes a bounded exponential backoff.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// Retryable decides whether an error is worth another attempt. A nil
	// predicate retries everything.
	Retryable func(error) bool
}

// DefaultPolicy returns the policy collaborator calls start from.
func DefaultPolicy(maxAttempts int) Policy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return Policy{
		MaxAttempts:     maxAttempts,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
	}
}

// Do runs op with the policy's backoff, stopping on success, a non-retryable
// error, context cancellation, or attempt exhaustion. The last error is
// returned on exhaustion.
func (p Policy) Do(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	exp := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		exp.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		exp.MaxInterval = p.MaxInterval
	}
	exp.MaxElapsedTime = 0

	wrapped := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(attempts-1)), ctx)

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, wrapped)
}
