// Package dbgerr defines the closed set of machine-readable error kinds
// that cross every component boundary in the debugger orchestrator
// (spec.md §7).
package dbgerr

import (
	"errors"
	"fmt"
)

// Kind is a machine-readable error classification. The set is closed:
// components must not invent new kinds, and the tool façade maps every
// Kind to a JSON-RPC error payload.
type Kind string

const (
	InvalidArgument        Kind = "InvalidArgument"
	InvalidTarget           Kind = "InvalidTarget"
	SpawnFailed             Kind = "SpawnFailed"
	AttachTimeout           Kind = "AttachTimeout"
	TransportClosed         Kind = "TransportClosed"
	CommandTimeout          Kind = "CommandTimeout"
	InvalidState            Kind = "InvalidState"
	SessionNotFound         Kind = "SessionNotFound"
	BreakpointNotFound      Kind = "BreakpointNotFound"
	BreakpointUnresolvable  Kind = "BreakpointUnresolvable"
	ConditionError          Kind = "ConditionError"
	StaleReference          Kind = "StaleReference"
	TargetCrashed           Kind = "TargetCrashed"
	RateLimited             Kind = "RateLimited"
	Unauthorized            Kind = "Unauthorized"
	Internal                Kind = "Internal"
)

// Error carries a Kind, a human-readable message, and optional structured
// data for the tool façade to surface in an error payload.
type Error struct {
	Kind    Kind
	Message string
	Data    map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an *Error with the given kind and formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an *Error that also carries the causing error.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// WithData attaches structured data to the error and returns it for chaining.
func (e *Error) WithData(data map[string]any) *Error {
	e.Data = data
	return e
}

// As extracts a *dbgerr.Error from err, if present.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it is (or wraps) a *Error, else Internal.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return Internal
}
