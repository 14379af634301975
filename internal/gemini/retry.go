package gemini

import (
	"context"
	"time"
)

// RetryPolicy bounds repeated attempts at a remote operation.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int
	// Delay is slept between attempts.
	Delay time.Duration
	// Retryable decides whether an error is worth another attempt.
	// Nil means IsTransient.
	Retryable func(error) bool
	// OnRetry, if set, runs before each re-attempt (credential rotation,
	// logging). It receives the error that triggered the retry.
	OnRetry func(err error, attempt int)
}

// Do runs op until it succeeds, exhausts MaxAttempts, hits a non-retryable
// error, or ctx is done. The returned error is the last one observed.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if attempt == attempts || !retryable(err) {
			return err
		}
		if p.OnRetry != nil {
			p.OnRetry(err, attempt)
		}
		if slept := sleepCtx(ctx, p.Delay); !slept {
			return ctx.Err()
		}
	}
	return err
}

// sleepCtx sleeps for d unless ctx is done first. Returns false on
// cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
