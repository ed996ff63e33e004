package retry

import (
	"math/rand"
	"time"

	"github.com/d-zero-dev/nitpicker-go/pkg/timeutil"
)

// RetryParam configures a single Retry call: how many attempts to make and
// the backoff curve between them.
type RetryParam struct {
	BaseDelay    time.Duration
	Jitter       time.Duration
	RandomSeed   int64
	MaxAttempts  int
	BackoffParam timeutil.BackoffParam
}

// Result is the outcome of a Retry call: either a value or the final
// classified error.
type Result[T any] struct {
	Value    T
	Err      error
	Attempts int
}

// Ok reports whether Retry produced a usable value.
func (r Result[T]) Ok() bool {
	return r.Err == nil
}

func newRNG(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}
