package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy controls how a failed step is retried.
type RetryPolicy struct {
	InitialInterval time.Duration
	Multiplier      float64
	MaxAttempts     int
	// AttemptTimeout bounds a single attempt.
	AttemptTimeout time.Duration
	// IsPermanent marks errors that must not be retried.
	IsPermanent func(error) bool
}

// DefaultRetryPolicy is 3 attempts starting at 5s and doubling, one hour per attempt.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: 5 * time.Second,
		Multiplier:      2,
		MaxAttempts:     3,
		AttemptTimeout:  time.Hour,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.InitialInterval <= 0 {
		p.InitialInterval = d.InitialInterval
	}
	if p.Multiplier < 1 {
		p.Multiplier = d.Multiplier
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.AttemptTimeout <= 0 {
		p.AttemptTimeout = d.AttemptTimeout
	}
	return p
}

// Do calls fn until it succeeds, returns a permanent error, runs out of
// attempts, or ctx is done. onRetry is called before each wait.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error, onRetry func(attempt int, err error, wait time.Duration)) error {
	p = p.withDefaults()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = 0
	b.MaxInterval = p.InitialInterval * time.Duration(1<<min(p.MaxAttempts, 16))
	b.MaxElapsedTime = 0
	b.Reset()

	attempt := 0
	operation := func() error {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, p.AttemptTimeout)
		defer cancel()

		err := fn(attemptCtx)
		if err != nil && p.IsPermanent != nil && p.IsPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		slog.Debug("attempt failed", "attempt", attempt, "wait", wait, "error", err)
		if onRetry != nil {
			onRetry(attempt, err, wait)
		}
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1)), ctx)
	return backoff.RetryNotify(operation, policy, notify)
}
