// Package apperr defines the closed error taxonomy shared by the services
// and the HTTP layer. Every user-facing failure carries one of the codes
// below; provider-specific errors are wrapped so their shapes never leak.
package apperr

import (
	"errors"
	"fmt"
)

// Code identifies the failure class of an Error.
type Code string

const (
	CodeBadRequest      Code = "bad_request"
	CodeNotFound        Code = "not_found"
	CodeConflict        Code = "conflict"
	CodeExternalService Code = "external_service"
	CodeUnauthorized    Code = "unauthorized"
)

// Error is a coded application error. It wraps an optional cause so call
// sites can use errors.Is/errors.As across service boundaries.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches on code so sentinel comparisons like
// errors.Is(err, apperr.NotFound("")) work regardless of message.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

func newError(code Code, cause error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: cause}
}

func BadRequest(format string, args ...interface{}) *Error {
	return newError(CodeBadRequest, nil, format, args...)
}

func NotFound(format string, args ...interface{}) *Error {
	return newError(CodeNotFound, nil, format, args...)
}

func Conflict(format string, args ...interface{}) *Error {
	return newError(CodeConflict, nil, format, args...)
}

func Unauthorized(format string, args ...interface{}) *Error {
	return newError(CodeUnauthorized, nil, format, args...)
}

// ExternalService wraps an upstream failure (POS provider, chain client)
// keeping the cause for logs while presenting a stable message.
func ExternalService(cause error, format string, args ...interface{}) *Error {
	return newError(CodeExternalService, cause, format, args...)
}

// CodeOf extracts the taxonomy code from err, or empty when err is not an
// application error.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}
