package errors

import (
	"errors"
	"fmt"
)

// Error is the structured error type used across docindex.
type Error struct {
	// Code is the unique error code (e.g., "ERR_201_STORAGE_IO").
	Code string

	// Message is the human-readable error message.
	Message string

	Category Category
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error.
	Cause error

	Retryable bool

	// Suggestion is an actionable hint shown by the CLI.
	Suggestion string
}

// Sentinels for errors.Is comparisons. Matching is by code only.
var (
	ErrStorageIO           = &Error{Code: ErrCodeStorageIO}
	ErrNotFound            = &Error{Code: ErrCodeNotFound}
	ErrBadRequest          = &Error{Code: ErrCodeBadRequest}
	ErrConstraintViolation = &Error{Code: ErrCodeConstraintViolation}
	ErrUpstreamUnavailable = &Error{Code: ErrCodeUpstreamUnavailable}
	ErrConfigInvalid       = &Error{Code: ErrCodeConfigInvalid}
	ErrLocked              = &Error{Code: ErrCodeLocked}
)

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail and returns the error for chaining.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion sets an actionable hint and returns the error for chaining.
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestion = suggestion
	return e
}

// New creates an Error. Category, severity and retryability derive from code.
func New(code string, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an Error from err, reusing its message. Wrap(code, nil) is nil.
func Wrap(code string, err error) *Error {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// StorageIO wraps a database or disk failure.
func StorageIO(op string, cause error) *Error {
	return New(ErrCodeStorageIO, op+": "+causeText(cause), cause).WithDetail("op", op)
}

// ConstraintViolation reports a caller bug such as a duplicate active document.
func ConstraintViolation(message string) *Error {
	return New(ErrCodeConstraintViolation, message, nil)
}

// BadRequest reports missing or invalid request parameters.
func BadRequest(message string) *Error {
	return New(ErrCodeBadRequest, message, nil)
}

// UpstreamUnavailable reports an unreachable external collaborator.
func UpstreamUnavailable(message string, cause error) *Error {
	return New(ErrCodeUpstreamUnavailable, message, cause)
}

// ConfigError reports invalid configuration.
func ConfigError(message string, cause error) *Error {
	return New(ErrCodeConfigInvalid, message, cause)
}

// NotFound reports a missing entity where a not-found flag is not available.
func NotFound(message string) *Error {
	return New(ErrCodeNotFound, message, nil)
}

// InternalError reports an unexpected condition.
func InternalError(message string, cause error) *Error {
	return New(ErrCodeInternal, message, cause)
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable reports whether err carries a retryable code.
func IsRetryable(err error) bool {
	if e, ok := As(err); ok {
		return e.Retryable
	}
	return false
}

// IsFatal reports whether err has fatal severity.
func IsFatal(err error) bool {
	if e, ok := As(err); ok {
		return e.Severity == SeverityFatal
	}
	return false
}

// GetCode returns the code of the first *Error in err's chain, or "".
func GetCode(err error) string {
	if e, ok := As(err); ok {
		return e.Code
	}
	return ""
}

func causeText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
