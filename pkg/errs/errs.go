// Package errs implements the stable error taxonomy every command boundary
// maps onto: a closed set of machine codes, a structured details object
// for invalid_request and conflict, and trace-id capture for observability.
// Internal-kind messages are redacted before they reach a caller; the
// trace id is always preserved.
package errs

import (
	"errors"
	"fmt"
)

// Code is the closed set of machine-readable error codes this core
// surfaces at a command boundary.
type Code string

const (
	CodeInvalidRequest     Code = "invalid_request"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeServiceUnavailable Code = "service_unavailable"
	CodeInternal           Code = "internal"
)

// Details accompanies invalid_request and conflict errors.
type Details struct {
	Field    string `json:"field,omitempty"`
	Index    *int   `json:"index,omitempty"`
	Value    string `json:"value,omitempty"`
	Code     string `json:"code,omitempty"`
	Expected any    `json:"expected,omitempty"`
	Actual   any    `json:"actual,omitempty"`
}

// Error is the taxonomy error type every command returns.
type Error struct {
	Code    Code
	Message string
	TraceID string
	Details *Details
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// WithTraceID returns a copy of e with the trace id set.
func (e *Error) WithTraceID(traceID string) *Error {
	cp := *e
	cp.TraceID = traceID
	return &cp
}

// Redacted returns the user-visible form of e: internal messages are
// replaced by a generic message and details are stripped, but the trace
// id survives.
func (e *Error) Redacted() *Error {
	if e.Code != CodeInternal {
		return e
	}
	return &Error{
		Code:    CodeInternal,
		Message: "Internal server error",
		TraceID: e.TraceID,
	}
}

func newErr(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

func InvalidRequest(message string, details *Details) *Error {
	return &Error{Code: CodeInvalidRequest, Message: message, Details: details}
}

func Unauthorized(message string) *Error {
	return newErr(CodeUnauthorized, message, nil)
}

func Forbidden(message string) *Error {
	return newErr(CodeForbidden, message, nil)
}

func NotFound(message string) *Error {
	return newErr(CodeNotFound, message, nil)
}

func Conflict(message string, details *Details) *Error {
	return &Error{Code: CodeConflict, Message: message, Details: details}
}

func ServiceUnavailable(message string, cause error) *Error {
	return newErr(CodeServiceUnavailable, message, cause)
}

func Internal(message string, cause error) *Error {
	return newErr(CodeInternal, message, cause)
}

// RevisionConflict builds the conflict error shape §4.5 mandates for a
// failed compare-and-swap.
func RevisionConflict(expected, actual int64) *Error {
	return Conflict("revision mismatch", &Details{
		Field:    "expected_revision",
		Code:     "revision_mismatch",
		Expected: expected,
		Actual:   actual,
	})
}

// As reports whether err is (or wraps) an *Error and returns it.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
