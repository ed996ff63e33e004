// Package limiter implements per-host politeness: a minimum delay between
// dispatches to the same host, layered with exponential backoff after
// server errors, plus jitter. It sits underneath the orchestrator's
// interval pacing (spec'd per-crawl), applying a second, per-host floor.
package limiter

import (
	"math/rand"
	"sync"
	"time"

	"github.com/d-zero-dev/nitpicker-go/pkg/timeutil"
)

// RateLimiter decides how long to wait before the next dispatch to a host,
// and tracks backoff state across failures.
type RateLimiter interface {
	SetBaseDelay(d time.Duration)
	SetJitter(d time.Duration)
	SetRandomSeed(seed int64)
	SetCrawlDelay(host string, d time.Duration)
	Backoff(host string)
	ResetBackoff(host string)
	MarkDispatchedNow(host string)
	ResolveDelay(host string) time.Duration
}

type hostTiming struct {
	lastDispatchAt time.Time
	backoffCount   int
	crawlDelay     time.Duration
}

// ConcurrentRateLimiter is a RateLimiter safe for concurrent use across the
// orchestrator's worker pool. One instance is owned per crawl session so
// its state never leaks between crawls.
type ConcurrentRateLimiter struct {
	mu          sync.RWMutex
	hostTimings map[string]hostTiming

	rngMu sync.Mutex
	rng   *rand.Rand

	baseDelay    time.Duration
	jitter       time.Duration
	backoffParam timeutil.BackoffParam
}

// NewConcurrentRateLimiter constructs a limiter with the given base delay
// (the per-host politeness floor) and backoff curve for retried hosts.
func NewConcurrentRateLimiter(baseDelay time.Duration, backoffParam timeutil.BackoffParam) *ConcurrentRateLimiter {
	return &ConcurrentRateLimiter{
		hostTimings:  make(map[string]hostTiming),
		rng:          rand.New(rand.NewSource(1)),
		baseDelay:    baseDelay,
		backoffParam: backoffParam,
	}
}

func (l *ConcurrentRateLimiter) SetBaseDelay(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.baseDelay = d
}

func (l *ConcurrentRateLimiter) SetJitter(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.jitter = d
}

func (l *ConcurrentRateLimiter) SetRandomSeed(seed int64) {
	l.rngMu.Lock()
	defer l.rngMu.Unlock()
	l.rng = rand.New(rand.NewSource(seed))
}

func (l *ConcurrentRateLimiter) SetCrawlDelay(host string, d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	timing := l.hostTimings[host]
	timing.crawlDelay = d
	l.hostTimings[host] = timing
}

// Backoff records a failed dispatch to host, increasing the exponential
// backoff delay applied to its next dispatch.
func (l *ConcurrentRateLimiter) Backoff(host string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	timing := l.hostTimings[host]
	timing.backoffCount++
	l.hostTimings[host] = timing
}

// ResetBackoff clears host's accumulated backoff, used when a dispatch
// succeeds.
func (l *ConcurrentRateLimiter) ResetBackoff(host string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	timing := l.hostTimings[host]
	timing.backoffCount = 0
	l.hostTimings[host] = timing
}

// MarkDispatchedNow records that host was just dispatched to, resetting the
// politeness clock.
func (l *ConcurrentRateLimiter) MarkDispatchedNow(host string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	timing := l.hostTimings[host]
	timing.lastDispatchAt = time.Now()
	l.hostTimings[host] = timing
}

// ResolveDelay returns how much longer the caller must wait before
// dispatching to host. It is the largest of the base delay, any
// robots-specified crawl delay, and the current backoff delay, plus
// jitter, minus time already elapsed since the last dispatch (floored
// at zero).
func (l *ConcurrentRateLimiter) ResolveDelay(host string) time.Duration {
	l.mu.RLock()
	timing := l.hostTimings[host]
	baseDelay := l.baseDelay
	jitter := l.jitter
	backoffParam := l.backoffParam
	l.mu.RUnlock()

	var backoffDelay time.Duration
	if timing.backoffCount > 0 {
		l.rngMu.Lock()
		backoffDelay = timeutil.ExponentialBackoffDelay(timing.backoffCount, 0, l.rng, backoffParam)
		l.rngMu.Unlock()
	}

	finalDelay := timeutil.MaxDuration(baseDelay, timing.crawlDelay, backoffDelay)

	if jitter > 0 {
		l.rngMu.Lock()
		finalDelay += time.Duration(l.rng.Int63n(int64(jitter) + 1))
		l.rngMu.Unlock()
	}

	if timing.lastDispatchAt.IsZero() {
		return finalDelay
	}

	elapsed := time.Since(timing.lastDispatchAt)
	remaining := finalDelay - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}
