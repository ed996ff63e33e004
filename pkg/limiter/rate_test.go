package limiter_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/d-zero-dev/nitpicker-go/pkg/limiter"
	"github.com/d-zero-dev/nitpicker-go/pkg/timeutil"
)

func TestResolveDelayHonorsBaseDelay(t *testing.T) {
	l := limiter.NewConcurrentRateLimiter(100*time.Millisecond, timeutil.NewBackoffParam(10*time.Millisecond, 2, time.Second))

	delay := l.ResolveDelay("example.com")
	assert.Equal(t, 100*time.Millisecond, delay)
}

func TestResolveDelayDecreasesAfterDispatch(t *testing.T) {
	l := limiter.NewConcurrentRateLimiter(100*time.Millisecond, timeutil.NewBackoffParam(10*time.Millisecond, 2, time.Second))
	l.MarkDispatchedNow("example.com")

	delay := l.ResolveDelay("example.com")
	assert.LessOrEqual(t, delay, 100*time.Millisecond)
}

func TestResolveDelayHonorsCrawlDelay(t *testing.T) {
	l := limiter.NewConcurrentRateLimiter(0, timeutil.NewBackoffParam(10*time.Millisecond, 2, time.Second))
	l.SetCrawlDelay("example.com", 5*time.Second)

	delay := l.ResolveDelay("example.com")
	assert.Equal(t, 5*time.Second, delay)
}

func TestBackoffIncreasesDelayUntilReset(t *testing.T) {
	l := limiter.NewConcurrentRateLimiter(0, timeutil.NewBackoffParam(10*time.Millisecond, 2, time.Second))

	l.Backoff("example.com")
	afterOne := l.ResolveDelay("example.com")
	assert.Greater(t, afterOne, time.Duration(0))

	l.Backoff("example.com")
	afterTwo := l.ResolveDelay("example.com")
	assert.Greater(t, afterTwo, afterOne)

	l.ResetBackoff("example.com")
	afterReset := l.ResolveDelay("example.com")
	assert.Equal(t, time.Duration(0), afterReset)
}
