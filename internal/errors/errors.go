// Package errors provides the error taxonomy shared by the Buddy core.
//
// Almost every failure in this module degrades to a default value instead of
// reaching the caller. The sentinels below cover the few cases that do reach
// the caller: identity gate violations, invalid input, and state machine
// misuse. Failures of the generation collaborator are represented by APIError
// so that callers can decide whether to retry.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	ErrIdentityRequired = errors.New("language and birth date must be set")
	ErrUnknownCategory  = errors.New("unknown category")
	ErrInvalidInput     = errors.New("invalid input")
	ErrNoActiveStory    = errors.New("no story in progress")
	ErrNotFound         = errors.New("resource not found")
	ErrTimeout          = errors.New("operation timed out")
	ErrRateLimit        = errors.New("rate limit exceeded")
	ErrUnavailable      = errors.New("service unavailable")
	ErrOffline          = errors.New("text generation is not configured")
)

// APIError represents an error from an external API call.
type APIError struct {
	Service    string
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s API error (status %d): %s: %v", e.Service, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("%s API error (status %d): %s", e.Service, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// NewAPIError creates a new API error.
func NewAPIError(service string, statusCode int, message string) *APIError {
	return &APIError{Service: service, StatusCode: statusCode, Message: message}
}

// Invalid wraps ErrInvalidInput with a description of the offending field.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// IsRetryable returns true if the error is likely transient and worth retrying.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 408, 429, 500, 502, 503, 504, 529:
			return true
		}
	}
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrRateLimit) || errors.Is(err, ErrUnavailable)
}
