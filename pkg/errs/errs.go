// Package errs provides the typed error taxonomy shared by all handlers.
//
// Lower layers wrap with fmt.Errorf as usual; handlers classify failures with
// a Kind so a single presentation layer can turn them into user-facing text.
package errs

import (
	"context"
	"errors"
)

// Kind is a machine-readable error classification.
type Kind string

const (
	KindUnknown     Kind = "UNKNOWN"
	KindValidation  Kind = "VALIDATION"   // malformed or out-of-range input
	KindAuth        Kind = "AUTH"         // external login rejected
	KindTimeout     Kind = "TIMEOUT"      // bounded wait expired
	KindExternalAPI Kind = "EXTERNAL_API" // remote call failed
	KindPermission  Kind = "PERMISSION"   // actor may not perform the action
)

// Error is the domain error type.
type Error struct {
	Kind    Kind
	Message string // user-presentable message
	Trace   string // optional remote trace or detail, logged but not shown
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil && e.Message == "" {
		return e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an error of the given kind that wraps cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithTrace attaches a remote trace to an external API error.
func WithTrace(message, trace string) *Error {
	return &Error{Kind: KindExternalAPI, Message: message, Trace: trace}
}

// Convenience constructors, one per kind.
func Validation(message string) *Error  { return New(KindValidation, message) }
func Auth(message string) *Error        { return New(KindAuth, message) }
func Timeout(message string) *Error     { return New(KindTimeout, message) }
func ExternalAPI(message string) *Error { return New(KindExternalAPI, message) }
func Permission(message string) *Error  { return New(KindPermission, message) }

// KindOf classifies any error. Context deadlines count as timeouts.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnknown
}

// MessageOf returns the user-presentable message of err, or fallback if none.
func MessageOf(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return fallback
}
