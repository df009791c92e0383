// Package status defines the small set of status codes exchanged at
// the Sync Engine's external boundaries and the typed error the
// engine returns for them, in a typed-error-plus-IsXxx-predicate
// shape.
package status

import "github.com/pkg/errors"

// Code is a status code used at the Local/Remote Store and Event
// Manager boundaries. Only a handful are given named constants; any
// other code the transport layer produces is carried opaquely.
type Code int

// Named status codes used at the store and transport boundaries.
const (
	OK Code = iota
	Cancelled
	Aborted
	FailedPrecondition
	PermissionDenied
	Unavailable
	Unknown
)

func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case Cancelled:
		return "CANCELLED"
	case Aborted:
		return "ABORTED"
	case FailedPrecondition:
		return "FAILED_PRECONDITION"
	case PermissionDenied:
		return "PERMISSION_DENIED"
	case Unavailable:
		return "UNAVAILABLE"
	default:
		return "UNKNOWN"
	}
}

// Error is a status-coded error crossing one of the Sync Engine's
// external boundaries.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string { return e.Code.String() + ": " + e.Message }

// New builds a status-coded error.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Of extracts the Code from err, returning Unknown if err does not
// carry one.
func Of(err error) Code {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return Unknown
}

// Is reports whether err carries the given Code.
func Is(err error, code Code) bool {
	return Of(err) == code
}
