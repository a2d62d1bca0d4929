// Package apperr provides classified errors shared by the HTTP API and the stream protocol.
package apperr

import "errors"

// InternalMessage is the public message for unclassified failures.
const InternalMessage = "An unexpected error occurred"

// Error is the classified error type.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Client-safe message
	Cause   error  // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil && e.Code.Kind() == KindInternal {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates an error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Validation creates a validation error.
func Validation(message string) *Error {
	return New(CodeValidation, message)
}

// Internal wraps an unexpected failure.
func Internal(cause error) *Error {
	return Wrap(CodeInternal, "internal error", cause)
}

// From returns the classified error in err's chain, or an internal error wrapping err.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}

// CodeOf returns the code of err, CodeUnknown when unclassified.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// Status returns the HTTP-equivalent status for err, 500 when unclassified.
func Status(err error) int {
	return CodeOf(err).HTTPStatus()
}

// PublicMessage returns the message that may be shown to clients.
func PublicMessage(err error) string {
	var appErr *Error
	if !errors.As(err, &appErr) || appErr.Code.Kind() == KindInternal {
		return InternalMessage
	}
	return appErr.Message
}

// IsInternal reports whether err is unclassified or explicitly internal.
func IsInternal(err error) bool {
	return CodeOf(err).Kind() == KindInternal
}
