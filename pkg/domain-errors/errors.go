// Package domainerrors defines the coded error taxonomy shared by all
// services. Stores report infrastructure facts as sentinel errors
// (pkg/platform/sentinel); services translate those into coded errors here so
// adapters can map them to transport semantics without inspecting messages.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies an error for adapters. Codes are stable contract values;
// messages are free-form and may change.
type Code string

const (
	// CodeNotFound: the identity does not exist within the caller's tenancy.
	CodeNotFound Code = "not_found"
	// CodeInvalidCursor: a pagination token is malformed or was issued by a
	// different list operation.
	CodeInvalidCursor Code = "invalid_cursor"
	// CodeIllegalTransition: the entity exists but a state-machine rule
	// forbids the requested operation in its current state.
	CodeIllegalTransition Code = "illegal_transition"
	// CodeExportRegionNotSet: a milestone or export action needs a region and
	// none was supplied or previously recorded.
	CodeExportRegionNotSet Code = "export_region_not_set"
	// CodeUpstreamUnavailable: an external collaborator failed or timed out.
	// The only code a caller may treat as transient.
	CodeUpstreamUnavailable Code = "upstream_unavailable"
	// CodeConflict: a write race was detected and could not be serialized.
	CodeConflict Code = "conflict"

	CodeBadRequest   Code = "bad_request"
	CodeUnauthorized Code = "unauthorized"
	CodeInternal     Code = "internal"
)

// Error is a coded domain error. It wraps an optional cause.
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

// New creates a coded error with a static message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause. If err is nil,
// Wrap returns nil.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// CodeOf returns the code of err, or CodeInternal when err carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}
