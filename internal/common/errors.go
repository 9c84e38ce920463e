package common

import (
	"errors"
)

// transientError wraps an error that should count against the retry
// budget (network failures, 5xx, rate limits). Anything unwrapped is
// treated as permanent.
type transientError struct {
	err error
}

func (e *transientError) Error() string {
	return e.err.Error()
}

func (e *transientError) Unwrap() error {
	return e.err
}

// Transient marks an error as retryable
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err (or anything it wraps) was marked retryable
func IsTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}
