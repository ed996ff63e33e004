package archive

import "github.com/d-zero-dev/nitpicker-go/pkg/failure"

// Error wraps an archive I/O failure. Per spec §7.6 and §7.8, every
// archive failure — including a rejected path-traversal attempt — is
// fatal: it aborts the crawl and propagates to the caller.
type Error struct {
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Severity() failure.Severity {
	return failure.SeverityFatal
}

func (e *Error) Unwrap() error {
	return e.Cause
}
