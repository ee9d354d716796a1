package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeNetwork         ErrorType = "network"
	ErrorTypeRateLimit       ErrorType = "rate_limit"
	ErrorTypeAuth            ErrorType = "auth"
	ErrorTypeParsing         ErrorType = "parsing"
	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypeServerError     ErrorType = "server_error"
	ErrorTypeTimeout         ErrorType = "timeout"
	ErrorTypeCircuitOpen     ErrorType = "circuit_open"
	ErrorTypeConfig          ErrorType = "config"
	ErrorTypeInvalidArgument ErrorType = "invalid_argument"
	ErrorTypeUnknown         ErrorType = "unknown"
)

// Error is a typed failure carrying the operation that produced it
type Error struct {
	Type    ErrorType
	Op      string
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.Op != "" {
		if e.Code != 0 {
			return fmt.Sprintf("%s: %s error (code %d): %s", e.Op, e.Type, e.Code, msg)
		}
		return fmt.Sprintf("%s: %s error: %s", e.Op, e.Type, msg)
	}
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, msg)
	}
	return fmt.Sprintf("%s error: %s", e.Type, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a typed error
func New(t ErrorType, op, message string) *Error {
	return &Error{Type: t, Op: op, Message: message}
}

// Newf creates a typed error with a formatted message
func Newf(t ErrorType, op, format string, args ...interface{}) *Error {
	return &Error{Type: t, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a type and operation to an underlying error
func Wrap(t ErrorType, op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Type: t, Op: op, Err: err}
}

// FromStatusCode maps an HTTP status to a typed error
func FromStatusCode(op string, code int, message string) *Error {
	t := ErrorTypeUnknown
	switch {
	case code == 401 || code == 403:
		t = ErrorTypeAuth
	case code == 404:
		t = ErrorTypeNotFound
	case code == 408:
		t = ErrorTypeTimeout
	case code == 429:
		t = ErrorTypeRateLimit
	case code >= 500:
		t = ErrorTypeServerError
	}
	return &Error{Type: t, Op: op, Message: message, Code: code}
}

// TypeOf returns the type of the first typed error in err's chain
func TypeOf(err error) ErrorType {
	if err == nil {
		return ""
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// Is reports whether err carries the given type
func Is(err error, t ErrorType) bool {
	return err != nil && TypeOf(err) == t
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError, ErrorTypeTimeout:
		return true
	case ErrorTypeAuth, ErrorTypeNotFound, ErrorTypeParsing, ErrorTypeCircuitOpen,
		ErrorTypeConfig, ErrorTypeInvalidArgument:
		return false
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 408, 429:
		return true
	case 401, 403, 404:
		return false
	default:
		return statusCode >= 500
	}
}
