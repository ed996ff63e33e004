package retry

import "github.com/d-zero-dev/nitpicker-go/pkg/failure"

// Cause distinguishes why a Retry call gave up.
type Cause int

const (
	// CauseExhaustedAttempts means every attempt returned a retriable
	// error and MaxAttempts was reached.
	CauseExhaustedAttempts Cause = iota
	// CauseNonRetriable means the function returned an error that was
	// not retriable; Retry stopped immediately.
	CauseNonRetriable
)

// RetryError is returned by Retry when no attempt produced a usable value.
type RetryError struct {
	Cause     Cause
	Retryable bool
	Wrapped   failure.ClassifiedError
}

func (e *RetryError) Error() string {
	if e.Wrapped != nil {
		return e.Wrapped.Error()
	}
	if e.Cause == CauseExhaustedAttempts {
		return "retry: attempts exhausted"
	}
	return "retry: non-retriable error"
}

// Severity reports Fatal unless the underlying cause is explicitly marked
// retryable, matching the ClassifiedError contract every error in this
// module follows.
func (e *RetryError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *RetryError) Unwrap() error {
	if e.Wrapped == nil {
		return nil
	}
	return e.Wrapped
}

// Is supports errors.Is(err, ErrExhaustedAttempts)-style checks keyed off
// Cause rather than identity.
func (e *RetryError) Is(target error) bool {
	other, ok := target.(*RetryError)
	if !ok {
		return false
	}
	return other.Cause == e.Cause
}

// ErrExhaustedAttempts is a sentinel usable with errors.Is to detect
// attempt-exhaustion specifically.
var ErrExhaustedAttempts = &RetryError{Cause: CauseExhaustedAttempts}

// isErrorRetryable reports whether err should trigger another attempt. A
// nil error is never retried (there was nothing wrong). Any
// failure.ClassifiedError with SeverityFatal stops retrying immediately.
func isErrorRetryable(err failure.ClassifiedError) bool {
	if err == nil {
		return false
	}
	return err.Severity() != failure.SeverityFatal
}
