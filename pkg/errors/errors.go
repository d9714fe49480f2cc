// Package errors provides structured error types for stackpip.
//
// Every component of the installation engine reports failures as an [*Error]
// carrying a machine-readable [Code]. Callers branch on the code rather than on
// message text, and the CLI prints [UserMessage] for humans.
//
// # Error Codes
//
// Codes are grouped by the stage that produces them:
//   - PLANNING_*, DUPLICATE_*, INVALID_*: the requirement set or environment
//     is unusable; nothing has been mutated yet
//   - FETCH_*, BUILD_*, HASH_*: one distribution could not be materialized
//   - INSTALL_*, COMPILE_*: placing a distribution into site-packages
//   - UNINSTALL_*, MANIFEST_*, DIGEST_*: removing a distribution
//
// # Usage
//
//	err := errors.New(errors.ErrCodeDuplicateRequirement, "requirement %q appears twice", name)
//	if errors.Is(err, errors.ErrCodeDuplicateRequirement) {
//	    // abort before touching the environment
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeFetch, origErr, "download %s", url)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Plan-level failures. These abort a run before any mutation.
	ErrCodePlanning             Code = "PLANNING_ERROR"
	ErrCodeDuplicateRequirement Code = "DUPLICATE_REQUIREMENT"
	ErrCodeInvalidRequirement   Code = "INVALID_REQUIREMENT"
	ErrCodeInvalidPath          Code = "INVALID_PATH"
	ErrCodeInvalidConfig        Code = "INVALID_CONFIG"
	ErrCodeEnvironment          Code = "ENVIRONMENT_ERROR"

	// Per-distribution fetch and build failures
	ErrCodeFetch        Code = "FETCH_ERROR"
	ErrCodeBuild        Code = "BUILD_ERROR"
	ErrCodeHashMismatch Code = "HASH_MISMATCH"
	ErrCodeNetwork      Code = "NETWORK_ERROR"
	ErrCodeNotFound     Code = "NOT_FOUND"

	// Installation
	ErrCodeInstall Code = "INSTALL_ERROR"
	ErrCodeCompile Code = "COMPILE_ERROR"

	// Uninstallation
	ErrCodeUninstall       Code = "UNINSTALL_ERROR"
	ErrCodeManifestMissing Code = "MANIFEST_MISSING"
	ErrCodeDigestMismatch  Code = "DIGEST_MISMATCH"

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
// It unwraps the error chain looking for an *Error with a matching code,
// including every branch of a joined error.
func Is(err error, code Code) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) && e.Code == code {
		return true
	}
	switch x := err.(type) {
	case interface{ Unwrap() []error }:
		for _, inner := range x.Unwrap() {
			if Is(inner, code) {
				return true
			}
		}
	case interface{ Unwrap() error }:
		return Is(x.Unwrap(), code)
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
		return e.Message
	}
	return err.Error()
}

// IsFatal reports whether err invalidates a whole run rather than a single
// distribution.
func IsFatal(err error) bool {
	switch GetCode(err) {
	case ErrCodePlanning, ErrCodeDuplicateRequirement, ErrCodeInvalidRequirement,
		ErrCodeEnvironment, ErrCodeInvalidConfig:
		return true
	}
	return false
}
