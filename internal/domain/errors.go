package domain

import (
	"errors"
	"fmt"
)

// The error taxonomy drives retry policy in the queue:
//
//   ValidationError    rejected before any state change, never retried
//   TransientError     retried per the job's backoff policy
//   PermanentError     surfaced immediately, no retry
//   ConfigurationError fatal for the affected job type only
//
// Anything else a handler returns is treated as transient.

// ValidationError reports malformed input (bad job payload, traffic split not
// summing to 100). It is never retried.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Msg
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Msg)
}

// NewValidationError builds a ValidationError for a named field.
func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Msg: msg}
}

// TransientError wraps a failure that is expected to succeed on retry
// (adapter/network failures, temporary store outages).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// PermanentError wraps a failure that will not succeed on retry (entity not
// found, missing platform credentials).
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// ConfigurationError reports a missing required secret or setting. The
// affected job fails permanently; other job types keep running.
type ConfigurationError struct {
	Setting string
}

func (e *ConfigurationError) Error() string {
	return "configuration: missing required setting " + e.Setting
}

// ErrNotFound is the sentinel for repository lookups that matched nothing.
var ErrNotFound = errors.New("not found")

// IsRetryable reports whether a handler error should be retried under the
// job's backoff policy. Validation, permanent and configuration errors are
// terminal; everything else is assumed transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ve *ValidationError
	var pe *PermanentError
	var ce *ConfigurationError
	if errors.As(err, &ve) || errors.As(err, &pe) || errors.As(err, &ce) {
		return false
	}
	if errors.Is(err, ErrNotFound) {
		return false
	}
	return true
}
