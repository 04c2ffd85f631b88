// Package apperr maps business failures onto the error taxonomy every
// component surfaces to its caller. Unexpected failures are wrapped and
// logged with full context at the boundary and reported to the caller as
// Internal only — they never leak internal detail.
package apperr

import (
	"errors"
	"fmt"
)

// Code is one of the stable error codes in the wire contract.
type Code string

const (
	Unauthenticated    Code = "unauthenticated"
	PermissionDenied   Code = "permission-denied"
	InvalidArgument    Code = "invalid-argument"
	NotFound           Code = "not-found"
	FailedPrecondition Code = "failed-precondition"
	ResourceExhausted  Code = "resource-exhausted"
	DeadlineExceeded   Code = "deadline-exceeded"
	Internal           Code = "internal"
)

// Error is a business-facing error carrying a stable code, a caller-safe
// message and an optional machine reason used for precise client handling
// (e.g. "already_clocked_in", "geofence_invalid").
type Error struct {
	Code    Code
	Reason  string
	Message string
	wrapped error
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s/%s: %s", e.Code, e.Reason, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.wrapped }

// New builds an Error with no machine reason.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewReason builds an Error with a machine-readable reason, e.g.
// apperr.NewReason(apperr.FailedPrecondition, "already_clocked_in", "worker already has an active shift").
func NewReason(code Code, reason, message string) *Error {
	return &Error{Code: code, Reason: reason, Message: message}
}

// Wrap attaches an unexpected underlying error to an Internal apperr.Error
// for logging, while keeping the message shown to the caller generic.
// Wrap(nil) returns nil so call sites can write `return apperr.Wrap(err)`
// as their final statement regardless of whether err is nil.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: Internal, Message: "internal error", wrapped: err}
}

// CodeOf extracts the Code from err if it is (or wraps) an *Error, else
// Internal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Internal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
