// Package hiisierr defines the error taxonomy shared by every layer of the
// daemon and its mapping to the wire-visible StreamResult.Error codes.
// Kinds are a plain tagged struct rather than a heavier error-chain
// library, matching the plain errors.New style already used by
// internal/tenant.
package hiisierr

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// Code is a user-visible StreamResult.Error.code value.
type Code string

const (
	CodeProtocol      Code = "PROTOCOL"
	CodeInternal      Code = "INTERNAL"
	CodeOutOfMemory   Code = "OOM"
	CodeNotImplemented Code = "NOT_IMPLEMENTED"
	CodeEngine        Code = "ENGINE"
)

// Error is the taxonomy-tagged error type every component returns.
type Error struct {
	Code    Code
	Message string
	// Op names the failing I/O operation for IOError ("socket", "bind",
	// "listen", "accept", "recv", "send", "mkdir"); empty otherwise.
	Op  string
	Err error
}

func (e *Error) Error() string {
	if e.Op != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Protocol builds a CodeProtocol error: malformed HTTP, unknown route, bad Host.
func Protocol(format string, args ...any) *Error {
	return &Error{Code: CodeProtocol, Message: fmt.Sprintf(format, args...)}
}

// JSONParse builds a CodeProtocol error wrapping a JSON decode failure.
// JSON parse failures are a distinct internal kind from generic protocol
// errors, but both surface to clients under the same "PROTOCOL" wire code
// since there is no separate JSON code in the user-visible taxonomy.
func JSONParse(cause error) *Error {
	return &Error{Code: CodeProtocol, Message: "invalid pipeline request body", Err: cause}
}

// Internal builds a CodeInternal error: an invariant violation.
func Internal(format string, args ...any) *Error {
	return &Error{Code: CodeInternal, Message: fmt.Sprintf(format, args...)}
}

// IO builds a CodeInternal error tagged with the failing syscall-ish op.
func IO(op string, cause error) *Error {
	return &Error{Code: CodeInternal, Op: op, Message: "i/o error", Err: cause}
}

// OutOfMemory builds the CodeOutOfMemory error.
func OutOfMemory() *Error {
	return &Error{Code: CodeOutOfMemory, Message: "out of memory"}
}

// NotImplemented builds the CodeNotImplemented error for reserved StreamRequest variants.
func NotImplemented(kind string) *Error {
	return &Error{Code: CodeNotImplemented, Message: fmt.Sprintf("%s is not implemented", kind)}
}

// Engine builds a CodeEngine error from the SQL engine's own failure,
// appending its return code decimally to the message. If cause wraps a
// github.com/mattn/go-sqlite3 Error (true for anything that actually
// reached SQLite: a bad prepare, a constraint violation, a disk-I/O
// failure), its primary and extended result codes are used so a client
// sees a real, distinguishing code instead of a placeholder; otherwise
// the code falls back to 1 and the message carries cause's own text.
func Engine(cause error) *Error {
	var sqliteErr sqlite3.Error
	if errors.As(cause, &sqliteErr) {
		return &Error{
			Code:    CodeEngine,
			Message: fmt.Sprintf("%s (engine error %d, extended %d)", sqliteErr.Error(), int(sqliteErr.Code), int(sqliteErr.ExtendedCode)),
			Err:     cause,
		}
	}
	return &Error{Code: CodeEngine, Message: fmt.Sprintf("%s (engine error 1)", cause.Error()), Err: cause}
}

// As extracts an *Error from err, returning (nil, false) if err isn't one.
func As(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}
