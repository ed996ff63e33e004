package retry_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d-zero-dev/nitpicker-go/pkg/failure"
	"github.com/d-zero-dev/nitpicker-go/pkg/retry"
	"github.com/d-zero-dev/nitpicker-go/pkg/timeutil"
)

type noopSleeper struct {
	slept []time.Duration
}

func (s *noopSleeper) Sleep(d time.Duration) {
	s.slept = append(s.slept, d)
}

func TestRetrySucceedsFirstTry(t *testing.T) {
	calls := 0
	result := retry.Retry(retry.RetryParam{MaxAttempts: 3}, nil, func() (int, failure.ClassifiedError) {
		calls++
		return 42, nil
	})

	require.True(t, result.Ok())
	assert.Equal(t, 42, result.Value)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, result.Attempts)
}

func TestRetryRecoversAfterFailures(t *testing.T) {
	calls := 0
	sleeper := &noopSleeper{}
	result := retry.Retry(retry.RetryParam{
		MaxAttempts:  5,
		BackoffParam: timeutil.NewBackoffParam(time.Millisecond, 2, time.Second),
	}, sleeper, func() (int, failure.ClassifiedError) {
		calls++
		if calls < 3 {
			return 0, failure.Recoverable(assertError("transient"))
		}
		return 7, nil
	})

	require.True(t, result.Ok())
	assert.Equal(t, 7, result.Value)
	assert.Equal(t, 3, calls)
	assert.Len(t, sleeper.slept, 2)
}

func TestRetryStopsOnFatalError(t *testing.T) {
	calls := 0
	result := retry.Retry(retry.RetryParam{MaxAttempts: 5}, nil, func() (int, failure.ClassifiedError) {
		calls++
		return 0, failure.Fatal(assertError("boom"))
	})

	require.False(t, result.Ok())
	assert.Equal(t, 1, calls)
	var retryErr *retry.RetryError
	require.ErrorAs(t, result.Err, &retryErr)
	assert.False(t, retryErr.Retryable)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	sleeper := &noopSleeper{}
	result := retry.Retry(retry.RetryParam{MaxAttempts: 3}, sleeper, func() (int, failure.ClassifiedError) {
		calls++
		return 0, failure.Recoverable(assertError("still failing"))
	})

	require.False(t, result.Ok())
	assert.Equal(t, 3, calls)
	assert.Len(t, sleeper.slept, 2)
	assert.ErrorIs(t, result.Err, retry.ErrExhaustedAttempts)
}

type stringError string

func (e stringError) Error() string { return string(e) }

func assertError(msg string) error {
	return stringError(msg)
}
