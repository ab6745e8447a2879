package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// SleepFunc blocks for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the SleepFunc backed by a real timer
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

// Retry calls op until it succeeds or attempts calls have been made, sleeping a
// fixed delay between calls. There is no backoff growth and no jitter. No delay
// follows the final call, so exhausting all attempts sleeps attempts-1 times.
// It returns the number of calls made; on failure the error wraps ErrRetriesExhausted
// and the last error returned by op.
func Retry(ctx context.Context, attempts int, delay time.Duration, sleep SleepFunc, op func(ctx context.Context, attempt int) error) (int, error) {
	if attempts < 1 {
		attempts = 1
	}
	if sleep == nil {
		sleep = Sleep
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = op(ctx, attempt)
		if lastErr == nil {
			return attempt, nil
		}
		if attempt == attempts {
			break
		}
		if err := sleep(ctx, delay); err != nil {
			return attempt, errors.Join(err, lastErr)
		}
	}

	return attempts, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, lastErr)
}
