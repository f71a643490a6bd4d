package common

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Error Taxonomy
// --------------------------------------------------------------------------

// ErrorKind classifies every error a request can terminate with.
type ErrorKind uint8

const (
	KindUnknown ErrorKind = iota
	KindNetwork           // transport failure, fatal to all pending requests of a connection
	KindProtocol          // malformed frame, bad offsets, inconsistent chain
	KindSecurity          // signature or decryption failure
	KindRequestAborted    // chain member behind an earlier failing member
	KindOperation         // well-formed reply carrying an error status
	KindOutOfMemory       // allocation failure, or the next read could not be issued
	KindCancelled         // request was cancelled before its reply arrived
)

// String returns the string representation of an ErrorKind.
func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network error"
	case KindProtocol:
		return "protocol error"
	case KindSecurity:
		return "security error"
	case KindRequestAborted:
		return "request aborted"
	case KindOperation:
		return "operation error"
	case KindOutOfMemory:
		return "out of memory"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown error"
	}
}

// Sentinel errors, usable with errors.Is against any *Error of the same kind
var (
	ErrNetwork        = &Error{Kind: KindNetwork}
	ErrProtocol       = &Error{Kind: KindProtocol}
	ErrSecurity       = &Error{Kind: KindSecurity}
	ErrRequestAborted = &Error{Kind: KindRequestAborted}
	ErrOperation      = &Error{Kind: KindOperation}
	ErrOutOfMemory    = &Error{Kind: KindOutOfMemory}
	ErrCancelled      = &Error{Kind: KindCancelled}
)

// Error is the error type returned by the multiplexer. It carries the kind,
// the status code that would have been reported on the wire, and an
// optional underlying cause.
type Error struct {
	Kind   ErrorKind
	Status Status
	Err    error
}

// NewError creates a new error of the given kind
func NewError(kind ErrorKind, status Status, err error) *Error {
	return &Error{Kind: kind, Status: status, Err: err}
}

// Errorf creates a new error of the given kind with a formatted cause
func Errorf(kind ErrorKind, status Status, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Status: status, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Status != StatusOK:
		return fmt.Sprintf("%s (%s): %v", e.Kind, e.Status, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Status != StatusOK:
		return fmt.Sprintf("%s (%s)", e.Kind, e.Status)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on the error kind, so errors.Is(err, ErrNetwork) holds for any
// network error regardless of status and cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of err, or KindUnknown if err is not an *Error
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// StatusOf returns the status carried by err. Errors that are not an *Error
// report StatusInvalidParameter, a nil error reports StatusOK.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return StatusInvalidParameter
}
