package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeNetwork      ErrorType = "network"
	ErrorTypeRateLimit    ErrorType = "rate_limit"
	ErrorTypeAuth         ErrorType = "auth"
	ErrorTypeParsing      ErrorType = "parsing"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeServerError  ErrorType = "server_error"
	ErrorTypePageFetch    ErrorType = "page_fetch"
	ErrorTypeInvalidInput ErrorType = "invalid_input"
	ErrorTypeUnknown      ErrorType = "unknown"
)

// Error is a typed error carrying the HTTP status code when there is one
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a typed error
func New(t ErrorType, code int, format string, args ...interface{}) *Error {
	return &Error{Type: t, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a typed error around a cause
func Wrap(t ErrorType, err error, format string, args ...interface{}) *Error {
	msg := fmt.Sprintf(format, args...)
	if err != nil {
		msg = msg + ": " + err.Error()
	}
	var code int
	var typed *Error
	if stderrors.As(err, &typed) {
		code = typed.Code
	}
	return &Error{Type: t, Code: code, Message: msg, Err: err}
}

// FromStatus maps an HTTP status code to a typed error
func FromStatus(code int, url string) *Error {
	switch {
	case code == 401 || code == 403:
		return New(ErrorTypeAuth, code, "access denied for %s", url)
	case code == 404 || code == 410:
		return New(ErrorTypeNotFound, code, "resource not found: %s", url)
	case code == 429:
		return New(ErrorTypeRateLimit, code, "rate limited: %s", url)
	case code >= 500:
		return New(ErrorTypeServerError, code, "server error for %s", url)
	default:
		return New(ErrorTypeUnknown, code, "unexpected status %d for %s", code, url)
	}
}

// IsType reports whether err is a typed error of the given type
func IsType(err error, t ErrorType) bool {
	var typed *Error
	if stderrors.As(err, &typed) {
		return typed.Type == t
	}
	return false
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError:
		return true
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // transport error
		return true
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
