// Package retry runs an operation with a bounded number of attempts and a
// fixed delay between them.
package retry

import (
	"context"
	"time"
)

// Defaults used by the ingestion pipeline.
const (
	DefaultAttempts = 3
	DefaultDelay    = time.Second
)

// Policy configures Do.
type Policy struct {
	// Attempts is the total number of calls, including the first one.
	Attempts int
	// Delay is the fixed pause between attempts.
	Delay time.Duration
	// Timeout bounds each attempt when positive.
	Timeout time.Duration
	// Retryable decides whether an error is worth another attempt. Nil retries everything.
	Retryable func(error) bool
	// OnRetry is called before sleeping ahead of the next attempt.
	OnRetry func(attempt int, err error)
	// Sleep waits between attempts; tests swap it out.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy returns a three-attempt, one-second policy using retryable.
func DefaultPolicy(retryable func(error) bool) Policy {
	return Policy{Attempts: DefaultAttempts, Delay: DefaultDelay, Retryable: retryable}
}

// Do calls fn until it succeeds, returns a non-retryable error, or the attempt
// budget is spent. The last error is returned as-is.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var (
		result T
		err    error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err = call(ctx, p.Timeout, fn)
		if err == nil {
			return result, nil
		}
		if attempt == attempts || ctx.Err() != nil {
			break
		}
		if p.Retryable != nil && !p.Retryable(err) {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		if serr := sleep(ctx, p.Delay); serr != nil {
			break
		}
	}
	return result, err
}

// Run is Do for operations without a result.
func Run(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func call[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(attemptCtx)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NoSleep skips the delay. Intended for tests.
func NoSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}
