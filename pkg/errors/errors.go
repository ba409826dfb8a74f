// Package errors provides structured error types for macpack.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the CLI and the build pipeline
//   - Machine-readable error codes for programmatic handling
//   - User-friendly error messages
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Error codes follow a hierarchical naming convention:
//   - INVALID_*: Configuration and input validation failures
//   - *_NOT_FOUND: Files or native libraries that could not be located
//   - IO_ERROR: Filesystem failures while writing the bundle
//   - INTERNAL_*: Unexpected internal errors
//
// Data conditions (missing Python modules, syntax errors) are never errors;
// they are recorded in the module graph and reported as warnings.
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidTarget, "script %s does not exist", path)
//	if errors.Is(err, errors.ErrCodeInvalidTarget) {
//	    // Handle configuration error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeIO, origErr, "copy %s", src)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Configuration errors, raised before any filesystem mutation
	ErrCodeInvalidTarget     Code = "INVALID_TARGET"
	ErrCodeInvalidConfig     Code = "INVALID_CONFIG"
	ErrCodeInvalidPath       Code = "INVALID_PATH"
	ErrCodeInvalidModuleName Code = "INVALID_MODULE_NAME"

	// Resource not found errors
	ErrCodeFileNotFound    Code = "FILE_NOT_FOUND"
	ErrCodeLibraryNotFound Code = "LIBRARY_NOT_FOUND"

	// Native binary errors
	ErrCodeInvalidBinary Code = "INVALID_BINARY"
	ErrCodeHeaderPadding Code = "HEADER_PADDING"

	// Filesystem errors
	ErrCodeIO Code = "IO_ERROR"

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
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
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
		if e.Cause != nil {
			return fmt.Sprintf("%s: %v", e.Message, e.Cause)
		}
		return e.Message
	}
	return err.Error()
}

// IsConfiguration reports whether err is a configuration error, i.e. one
// that is raised before the build touches the output directory.
func IsConfiguration(err error) bool {
	switch GetCode(err) {
	case ErrCodeInvalidTarget, ErrCodeInvalidConfig, ErrCodeInvalidPath, ErrCodeInvalidModuleName:
		return true
	}
	return false
}
