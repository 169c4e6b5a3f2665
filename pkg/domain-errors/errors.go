// Package domainerrors carries coded errors across the service boundary.
//
// Stores return sentinel facts (see pkg/platform/sentinel); services translate
// those facts into coded errors; transports map codes to status codes. A code is
// the only part of an error a caller should branch on.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error.
type Code string

const (
	// CodeInvalidInput marks missing or malformed fields. The caller must resubmit.
	CodeInvalidInput Code = "invalid_input"
	// CodeBadRequest marks an undecodable request body.
	CodeBadRequest Code = "bad_request"
	// CodeNotFound marks an unknown actor, zone or record. Not retried.
	CodeNotFound Code = "not_found"
	// CodeConflict marks a uniqueness conflict such as a duplicate identity number
	// or an already running tracking session.
	CodeConflict Code = "conflict"
	// CodeInvalidZone marks a zone boundary that cannot be evaluated.
	CodeInvalidZone Code = "invalid_zone"
	// CodeUnknownEntity marks an observation for an entity with no zone assignment.
	CodeUnknownEntity Code = "unknown_entity"
	// CodePersistence marks a storage failure. Retryable with backoff; the failed
	// write left the store unchanged.
	CodePersistence Code = "persistence_error"
	// CodeTimeout marks an operation abandoned because its context ended.
	CodeTimeout Code = "timeout"
	// CodeInternal marks anything else. Descriptions are never shown to clients.
	CodeInternal Code = "internal_error"
)

// Error is a coded domain error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error with a client-safe message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
// Wrapping a nil error returns nil.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of the outermost domain error in the chain, or
// CodeInternal when the chain carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether the outermost domain error in the chain has code.
func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

// Is is shorthand for HasCode.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// Message returns the client-safe message of the outermost domain error.
func Message(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}
