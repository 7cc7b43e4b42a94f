package client

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/playmates/backend/internal/friends"
	"github.com/playmates/backend/internal/logging"
)

// RetryPolicy bounds how reads are retried after a network failure.
type RetryPolicy struct {
	Attempts    int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultRetryPolicy retries a read up to three times with exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, BaseBackoff: 200 * time.Millisecond, MaxBackoff: 2 * time.Second}
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	backoff := time.Duration(math.Pow(2, float64(attempt-1))) * p.BaseBackoff
	if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
		backoff = p.MaxBackoff
	}
	return backoff
}

// withTimeout runs fn once under the client's per-call timeout.
func withTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(callCtx)
}

// readWithRetry runs an idempotent read, retrying only network failures. Writes must not use it.
func readWithRetry[T any](ctx context.Context, timeout time.Duration, policy RetryPolicy, fn func(context.Context) (T, error)) (T, error) {
	attempts := policy.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var (
		result T
		err    error
	)
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(policy.backoff(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				var zero T
				return zero, friends.TransformAPIError(ctx.Err(), "request cancelled")
			case <-timer.C:
			}
		}

		result, err = withTimeout(ctx, timeout, fn)
		if err == nil || !friends.Retryable(err) {
			return result, err
		}
		logging.FromContext(ctx).Debug("retrying read after network error",
			slog.Int("attempt", attempt+1), slog.Int("max_attempts", attempts), slog.Any("error", err))
	}
	return result, err
}
