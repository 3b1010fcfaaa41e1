// Package graverr defines the error taxonomy the distributor's public
// operations translate all failures into: SESSION_NOT_CREATED,
// NO_SUCH_SESSION, STORAGE, CONFIG and INTERNAL. The shape and the
// New*Error-per-code constructors follow the MyError pattern the
// surrounding pack uses for its own service-level errors.
package graverr

import (
	"errors"
	"fmt"
)

const (
	// SessionNotCreated means no candidate node could serve the request,
	// or the node-side creation call failed after reservation.
	SessionNotCreated = "SESSION_NOT_CREATED"
	// NoSuchSession means a Session Map lookup missed, or a stored URI
	// could not be parsed.
	NoSuchSession = "NO_SUCH_SESSION"
	// Storage means a Session Map backend I/O failure.
	Storage = "STORAGE"
	// Config means a startup-time failure to initialize a backend.
	Config = "CONFIG"
	// Internal means an unexpected, otherwise unclassified failure.
	Internal = "INTERNAL"
)

// Error is the distributor's tagged error type. Code is machine-readable;
// Message is safe to return to API callers; Inner is the wrapped cause
// and is never serialized.
type Error struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Inner   error  `json:"-"`
}

// New creates an Error with the given code, message and wrapped cause.
func New(code, message string, inner error) *Error {
	return &Error{Code: code, Message: message, Inner: inner}
}

// NewSessionNotCreated wraps inner (already a *Error or not) into a
// SESSION_NOT_CREATED error. If inner is already a *Error it is returned
// unchanged, matching the pack's ToMyError-short-circuit convention.
func NewSessionNotCreated(message string, inner error) *Error {
	if e := As(inner); e != nil {
		return e
	}
	return New(SessionNotCreated, message, inner)
}

func NewNoSuchSession(message string, inner error) *Error {
	if e := As(inner); e != nil {
		return e
	}
	return New(NoSuchSession, message, inner)
}

func NewStorage(message string, inner error) *Error {
	if e := As(inner); e != nil {
		return e
	}
	return New(Storage, message, inner)
}

func NewConfig(message string, inner error) *Error {
	if e := As(inner); e != nil {
		return e
	}
	return New(Config, message, inner)
}

func NewInternal(message string, inner error) *Error {
	if e := As(inner); e != nil {
		return e
	}
	return New(Internal, message, inner)
}

func (e *Error) Error() string {
	if e.Inner != nil {
		return fmt.Sprintf("%s %s: %v", e.Code, e.Message, e.Inner)
	}
	return fmt.Sprintf("%s %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As callers.
func (e *Error) Unwrap() error {
	return e.Inner
}

// As returns err as a *Error via errors.As, or nil if err is not (or does
// not wrap) a *Error.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// Code returns the code of err, or "" if err is not a *Error.
func Code(err error) string {
	if e := As(err); e != nil {
		return e.Code
	}
	return ""
}

// Is reports whether err is a *Error with the given code.
func Is(err error, code string) bool {
	if e := As(err); e != nil {
		return e.Code == code
	}
	return false
}
