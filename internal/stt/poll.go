package stt

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// PollConfig bounds how long a provider waits for an asynchronous job.
type PollConfig struct {
	Interval    time.Duration
	MaxAttempts int
}

// DefaultPollConfig checks every 5s, at most 120 times.
func DefaultPollConfig() PollConfig {
	return PollConfig{Interval: 5 * time.Second, MaxAttempts: 120}
}

var errNotDone = errors.New("job not done")

// poll calls check at a fixed interval until it reports done, fails, or the attempts run out.
// An error from check stops polling immediately.
func poll(ctx context.Context, cfg PollConfig, check func(ctx context.Context) (bool, error)) error {
	if cfg.Interval <= 0 || cfg.MaxAttempts <= 0 {
		cfg = DefaultPollConfig()
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(cfg.Interval), uint64(cfg.MaxAttempts-1)),
		ctx,
	)
	err := backoff.Retry(func() error {
		done, err := check(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !done {
			return errNotDone
		}
		return nil
	}, b)
	if errors.Is(err, errNotDone) {
		return ErrTranscriptionTimeout
	}
	return err
}
