// Package errs defines the error taxonomy surfaced at the trust core's
// API boundary (spec §7): every package-level failure that the HTTP
// layer must classify into a status code is returned as an *errs.Error.
package errs

import (
	"errors"
	"fmt"
)

// Kind is the closed set of error categories the API boundary maps to
// HTTP status codes.
type Kind string

const (
	Validation        Kind = "VALIDATION"
	Unauthorized      Kind = "UNAUTHORIZED"
	Forbidden         Kind = "FORBIDDEN"
	NotFound          Kind = "NOT_FOUND"
	Conflict          Kind = "CONFLICT"
	ChainBroken       Kind = "CHAIN_BROKEN"
	HashMismatch      Kind = "HASH_MISMATCH"
	SignatureInvalid  Kind = "SIGNATURE_INVALID"
	RateLimited       Kind = "RATE_LIMITED"
	Internal          Kind = "INTERNAL"
)

// Error is a classified error carrying a Kind, a human-readable
// message, optional structured details, and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]interface{}
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is/errors.As to reach the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail attaches a detail key/value and returns the receiver.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an *Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error; otherwise it returns Internal, the default classification for
// unclassified failures (e.g. raw driver errors).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}
