package model

import (
	"errors"
	"fmt"
)

// ErrorKind is the taxonomy of failures that can cross a component
// boundary. Every fallible operation in this repository returns an
// error that, when non-nil, unwraps to an *Error via errors.As so
// callers can branch on Kind without string matching.
type ErrorKind string

const (
	ConfigError       ErrorKind = "ConfigError"       // fatal at startup
	AuthError         ErrorKind = "AuthError"         // fatal session
	TransportError    ErrorKind = "TransportError"    // retry with backoff
	ProtocolError     ErrorKind = "ProtocolError"     // reject specific message, keep session
	SeqGapError       ErrorKind = "SeqGapError"       // resend
	OrderRejected     ErrorKind = "OrderRejected"     // business-level, surfaced to QuoteEngine as a drop
	Duplicate         ErrorKind = "Duplicate"         // silent skip + counter
	AuditWriteFailure ErrorKind = "AuditWriteFailure" // CRITICAL: halt trading and cancel-all
	StorageError      ErrorKind = "StorageError"      // retryable with bounded attempts, then degrade
	Timeout           ErrorKind = "Timeout"           // per-operation deadline
)

// Error is the concrete carrier for an ErrorKind plus context.
type Error struct {
	Kind  ErrorKind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an *Error without a wrapped cause.
func New(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap constructs an *Error carrying an underlying cause.
func Wrap(kind ErrorKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// KindOf extracts the ErrorKind from err, or "" if err does not carry one.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given ErrorKind.
func Is(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
