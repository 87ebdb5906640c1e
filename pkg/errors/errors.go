package errors

import (
	"context"
	"errors"
	"fmt"
)

// ErrorType classifies failures at attempt granularity
type ErrorType string

const (
	ErrorTypeSession           ErrorType = "session"
	ErrorTypeNavigation        ErrorType = "navigation"
	ErrorTypeNotFound          ErrorType = "not_found"
	ErrorTypeRateLimit         ErrorType = "rate_limit"
	ErrorTypeTimeout           ErrorType = "timeout"
	ErrorTypeAuth              ErrorType = "auth"
	ErrorTypeChallenge         ErrorType = "challenge"
	ErrorTypeExtraction        ErrorType = "extraction"
	ErrorTypeAttemptsExhausted ErrorType = "attempts_exhausted"
	ErrorTypeStore             ErrorType = "store"
	ErrorTypeUnknown           ErrorType = "unknown"
)

// Error is a classified failure with an optional underlying cause
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same type, so errors.Is(err, &Error{Type: X}) works
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Message == "" && t.Cause == nil && t.Type == e.Type
}

// New creates a classified error
func New(t ErrorType, format string, args ...interface{}) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies cause under t
func Wrap(t ErrorType, cause error, format string, args ...interface{}) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// TypeOf returns the type of the outermost classified error in err's chain
func TypeOf(err error) ErrorType {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTimeout
	}
	return ErrorTypeUnknown
}

// IsType reports whether err carries a classified error of type t
func IsType(err error, t ErrorType) bool {
	return errors.Is(err, &Error{Type: t})
}

// IsRetryable checks if an error type should be retried with a fresh session
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeSession, ErrorTypeNavigation, ErrorTypeNotFound, ErrorTypeRateLimit,
		ErrorTypeTimeout, ErrorTypeAuth, ErrorTypeChallenge, ErrorTypeExtraction, ErrorTypeUnknown:
		return true
	default:
		return false
	}
}

// ShouldRetry decides whether the orchestrator may start another attempt after err
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return IsRetryable(TypeOf(err))
}
