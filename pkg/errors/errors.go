// Package errors provides structured error types for depscanner.
//
// Every failure that crosses a package boundary towards a caller (CLI, HTTP
// API, event listener) carries a machine-readable [Code]. The codes mirror the
// categories the query API reports in its error body:
//   - NO_*_INFORMATION_AVAILABLE: the metadata service has no data for a key
//   - INVALID_*: malformed input or an unexpandable upstream URL
//   - INTERNAL_ERROR: storage or programming errors
//
// # Usage
//
//	err := errors.New(errors.ErrCodeNoAdvisoryInformation, "no advisory data available for %s", id)
//	if errors.Is(err, errors.ErrCodeNoAdvisoryInformation) {
//	    // report as 400
//	}
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes reported to callers.
const (
	// Upstream has no data for the requested key
	ErrCodeNoPackageInformation           Code = "NO_PACKAGE_INFORMATION_AVAILABLE"
	ErrCodeNoAdvisoryInformation          Code = "NO_ADVISORY_INFORMATION_AVAILABLE"
	ErrCodeNoDependencyVersionInformation Code = "NO_DEPENDENCY_VERSION_INFORMATION_AVAILABLE"
	ErrCodeNoDependencyInformation        Code = "NO_DEPENDENCY_INFORMATION_AVAILABLE"

	// Input validation errors
	ErrCodeInvalidURL     Code = "INVALID_URL"
	ErrCodeInvalidInput   Code = "INVALID_INPUT"
	ErrCodeInvalidPackage Code = "INVALID_PACKAGE"
	ErrCodeInvalidSystem  Code = "INVALID_SYSTEM"

	// Internal errors
	ErrCodeInternal Code = "INTERNAL_ERROR"
	ErrCodeTimeout  Code = "TIMEOUT"
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

// IsClientError reports whether err should be surfaced as a bad request:
// missing upstream data or invalid input.
func IsClientError(err error) bool {
	switch GetCode(err) {
	case ErrCodeNoPackageInformation,
		ErrCodeNoAdvisoryInformation,
		ErrCodeNoDependencyVersionInformation,
		ErrCodeNoDependencyInformation,
		ErrCodeInvalidURL,
		ErrCodeInvalidInput,
		ErrCodeInvalidPackage,
		ErrCodeInvalidSystem:
		return true
	}
	return false
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
