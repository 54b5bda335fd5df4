// Package amierr defines the error taxonomy used across the ami client:
// connection, protocol, action, timeout, and usage errors.
package amierr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error into one of the categories a caller needs to
// branch on (recoverable at the action level vs. fatal to the session).
type Kind int

const (
	// KindConnection covers DNS, TCP connect, and banner failures. Fatal;
	// the session never reaches CONNECTED.
	KindConnection Kind = iota
	// KindProtocol covers malformed lines, oversize messages, and
	// unexpected EOF mid-message. Fatal to the session.
	KindProtocol
	// KindAction covers a response received with success=false.
	// Recoverable at the caller level.
	KindAction
	// KindTimeout covers a per-action wait that expired.
	KindTimeout
	// KindUsage covers double destroy, action on a disconnected session,
	// an invalid log level, and similar caller mistakes.
	KindUsage
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindProtocol:
		return "protocol"
	case KindAction:
		return "action"
	case KindTimeout:
		return "timeout"
	case KindUsage:
		return "usage"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned throughout this module. It
// wraps an underlying cause (if any) and carries a Kind so callers can
// decide whether to retry, surface to the user, or tear down the session.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ami: %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("ami: %s: %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is/errors.As to see through to the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an Error of the given kind.
func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Connection builds a KindConnection error.
func Connection(message string, err error) *Error {
	return New(KindConnection, message, err)
}

// Protocol builds a KindProtocol error.
func Protocol(message string, err error) *Error {
	return New(KindProtocol, message, err)
}

// Action builds a KindAction error.
func Action(message string, err error) *Error {
	return New(KindAction, message, err)
}

// Timeout builds a KindTimeout error.
func Timeout(message string, err error) *Error {
	return New(KindTimeout, message, err)
}

// Usage builds a KindUsage error.
func Usage(message string, err error) *Error {
	return New(KindUsage, message, err)
}

// Is reports whether err is, or wraps, an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
