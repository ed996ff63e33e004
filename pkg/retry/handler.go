package retry

import (
	"github.com/d-zero-dev/nitpicker-go/pkg/failure"
	"github.com/d-zero-dev/nitpicker-go/pkg/timeutil"
)

// Retry calls fn up to retryParam.MaxAttempts times, sleeping with
// exponential backoff (plus jitter) between attempts whenever fn returns a
// recoverable ClassifiedError. It stops immediately on a fatal error or
// success.
//
// sleeper is nil-safe: a nil sleeper means no sleeping occurs, which is
// useful in tests that only want to exercise the retry count.
func Retry[T any](retryParam RetryParam, sleeper timeutil.Sleeper, fn func() (T, failure.ClassifiedError)) Result[T] {
	maxAttempts := retryParam.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	rng := newRNG(retryParam.RandomSeed)

	var lastErr failure.ClassifiedError
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		value, err := fn()
		if err == nil {
			return Result[T]{Value: value, Attempts: attempt}
		}
		lastErr = err
		if !isErrorRetryable(err) {
			return Result[T]{
				Err: &RetryError{
					Cause:     CauseNonRetriable,
					Retryable: false,
					Wrapped:   err,
				},
				Attempts: attempt,
			}
		}
		if attempt == maxAttempts {
			break
		}
		if sleeper != nil {
			delay := timeutil.ExponentialBackoffDelay(attempt, retryParam.Jitter, rng, retryParam.BackoffParam)
			if retryParam.BaseDelay > delay {
				delay = retryParam.BaseDelay
			}
			sleeper.Sleep(delay)
		}
	}

	return Result[T]{
		Err: &RetryError{
			Cause:     CauseExhaustedAttempts,
			Retryable: true,
			Wrapped:   lastErr,
		},
		Attempts: maxAttempts,
	}
}
