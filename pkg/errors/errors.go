// Package errors provides structured error types for workgraph.
//
// Every error raised at a package boundary carries a machine-readable code so
// callers (the CLI, the HTTP API, embedding applications) can decide how to
// react without parsing messages:
//
//   - STRUCTURAL: a connection edit referenced a node or slot that does not
//     exist. This is the only fatal category inside the graph core.
//   - METADATA_UNAVAILABLE: node-type schemas could not be fetched. Loading
//     continues with generic widgets.
//   - MALFORMED_INPUT: an entry of an ingested document could not be parsed.
//     The entry is skipped and loading continues.
//   - COLLABORATOR_FAILURE: an injected collaborator (snapshot store, sink)
//     reported a failure.
//
// # Usage
//
//	err := errors.New(errors.ErrCodeStructural, "node %d not found", id)
//	if errors.Is(err, errors.ErrCodeStructural) {
//	    // report the failed edit as a no-op
//	}
//
//	err := errors.Wrap(errors.ErrCodeMetadataUnavailable, cause, "fetch schemas")
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Graph core
	ErrCodeStructural          Code = "STRUCTURAL"
	ErrCodeMetadataUnavailable Code = "METADATA_UNAVAILABLE"
	ErrCodeMalformedInput      Code = "MALFORMED_INPUT"
	ErrCodeCollaborator        Code = "COLLABORATOR_FAILURE"

	// Input validation errors
	ErrCodeInvalidInput Code = "INVALID_INPUT"
	ErrCodeInvalidPath  Code = "INVALID_PATH"

	// Resource not found errors
	ErrCodeNotFound         Code = "NOT_FOUND"
	ErrCodeSnapshotNotFound Code = "SNAPSHOT_NOT_FOUND"

	// Network errors
	ErrCodeNetwork Code = "NETWORK_ERROR"
	ErrCodeTimeout Code = "TIMEOUT"

	// Internal errors
	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}

// GetCode extracts the outermost error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// IsStructural reports whether err is a fatal structural error.
func IsStructural(err error) bool { return Is(err, ErrCodeStructural) }
