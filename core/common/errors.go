package common

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Error taxonomy
// --------------------------------------------------------------------------

// ErrKind classifies every terminal failure a request can resolve with.
// Every non-resolved request eventually resolves with exactly one kind.
type ErrKind uint8

const (
	// KindUnspecified is used for errors that fit no other kind.
	KindUnspecified ErrKind = iota
	// KindConnect - the transport could not be established.
	KindConnect
	// KindWrite - writing the request frame failed mid-session.
	KindWrite
	// KindProtocol - the backend sent a malformed or unexpected frame.
	KindProtocol
	// KindRouting - no eligible connection exists for the routing hint.
	KindRouting
	// KindOverloaded - the connection's in-flight cap was reached.
	KindOverloaded
	// KindTimeout - the per-request deadline expired.
	KindTimeout
	// KindCancelled - the caller cancelled the request before resolution.
	KindCancelled
	// KindConnectionClosed - the connection was torn down while the
	// request was still outstanding.
	KindConnectionClosed
)

// String returns the string representation of an ErrKind.
func (k ErrKind) String() string {
	switch k {
	case KindConnect:
		return "connect"
	case KindWrite:
		return "write"
	case KindProtocol:
		return "protocol"
	case KindRouting:
		return "routing"
	case KindOverloaded:
		return "overloaded"
	case KindTimeout:
		return "timeout"
	case KindCancelled:
		return "cancelled"
	case KindConnectionClosed:
		return "connection closed"
	default:
		return "unspecified"
	}
}

// --------------------------------------------------------------------------
// Error type
// --------------------------------------------------------------------------

// Error is the error type surfaced by the core. It carries the kind used by
// callers (and the foreign bridge) to map failures onto their own taxonomy.
type Error struct {
	Kind    ErrKind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given kind and message.
func NewError(kind ErrKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError creates a new Error wrapping a cause.
func WrapError(kind ErrKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Errorf creates a new Error with a formatted message.
func Errorf(kind ErrKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the ErrKind from an error chain. Errors that are not a
// *common.Error report KindUnspecified.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnspecified
}

// IsKind reports whether the error chain contains an Error of the given kind.
func IsKind(err error, kind ErrKind) bool {
	return KindOf(err) == kind
}
