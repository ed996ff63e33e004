// Package timeutil collects the small time-related helpers the orchestrator
// and rate limiter need for deterministic, testable pacing: a sleeper seam
// so tests never wait on a real clock, and the backoff-delay math shared by
// the retry and limiter packages.
package timeutil

import (
	"math/rand"
	"time"
)

// Sleeper abstracts time.Sleep so components that pace themselves can be
// tested without a real clock.
type Sleeper interface {
	Sleep(d time.Duration)
}

// RealSleeper sleeps on the wall clock via time.Sleep.
type RealSleeper struct{}

// NewRealSleeper returns a Sleeper backed by time.Sleep.
func NewRealSleeper() Sleeper {
	return RealSleeper{}
}

func (RealSleeper) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	time.Sleep(d)
}

// BackoffParam configures an exponential backoff curve: initialDuration on
// the first retry, multiplied by multiplier on each subsequent one, capped
// at maxDuration.
type BackoffParam struct {
	initialDuration time.Duration
	multiplier      float64
	maxDuration     time.Duration
}

// NewBackoffParam constructs a BackoffParam. A non-positive multiplier is
// treated as 1 (no growth); a non-positive maxDuration disables the cap.
func NewBackoffParam(initialDuration time.Duration, multiplier float64, maxDuration time.Duration) BackoffParam {
	if multiplier <= 0 {
		multiplier = 1
	}
	return BackoffParam{
		initialDuration: initialDuration,
		multiplier:      multiplier,
		maxDuration:     maxDuration,
	}
}

func (p BackoffParam) InitialDuration() time.Duration { return p.initialDuration }
func (p BackoffParam) Multiplier() float64            { return p.multiplier }
func (p BackoffParam) MaxDuration() time.Duration     { return p.maxDuration }

// DurationPtr returns a pointer to d, useful for optional-duration fields in
// config DTOs.
func DurationPtr(d time.Duration) *time.Duration {
	return &d
}

// MaxDuration returns the largest of the given durations. It returns zero
// for an empty input.
func MaxDuration(durations ...time.Duration) time.Duration {
	var max time.Duration
	for i, d := range durations {
		if i == 0 || d > max {
			max = d
		}
	}
	return max
}

// ExponentialBackoffDelay computes the delay to wait before retry attempt
// (1-indexed), following param's curve, plus up to jitter of uniform random
// extra delay drawn from rng. attempt <= 0 is treated as attempt 1.
func ExponentialBackoffDelay(attempt int, jitter time.Duration, rng *rand.Rand, param BackoffParam) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	delay := float64(param.InitialDuration())
	for i := 1; i < attempt; i++ {
		delay *= param.Multiplier()
		if param.MaxDuration() > 0 && time.Duration(delay) >= param.MaxDuration() {
			delay = float64(param.MaxDuration())
			break
		}
	}
	result := time.Duration(delay)
	if param.MaxDuration() > 0 && result > param.MaxDuration() {
		result = param.MaxDuration()
	}
	if jitter > 0 && rng != nil {
		result += time.Duration(rng.Int63n(int64(jitter) + 1))
	}
	return result
}
