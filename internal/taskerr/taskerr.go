// Package taskerr provides the structured error type shared by the tool
// surface and the engine services.
package taskerr

import (
	"errors"
	"fmt"
	"strings"
)

// Code represents a canonical error code surfaced in tool responses.
type Code string

const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeNotFound          Code = "RESOURCE_NOT_FOUND"
	CodeConflict          Code = "CONFLICT_ERROR"
	CodeDatabase          Code = "DATABASE_ERROR"
	CodeOperationFailed   Code = "OPERATION_FAILED"
	CodeInternal          Code = "INTERNAL_ERROR"
	CodeDuplicateResource Code = "DUPLICATE_RESOURCE"
)

// Error is the structured error carried from repositories and services up
// to the tool boundary. Message is the short human-readable summary;
// Details carries entity IDs and longer context.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Cause   error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Details != "" {
		b.WriteString(": ")
		b.WriteString(e.Details)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of the error with the given cause attached.
func (e *Error) WithCause(err error) *Error {
	return &Error{Code: e.Code, Message: e.Message, Details: e.Details, Cause: err}
}

// --- Constructors ---

// NewValidation builds a VALIDATION_ERROR.
func NewValidation(message, details string) *Error {
	return &Error{Code: CodeValidation, Message: message, Details: details}
}

// NewNotFound builds a RESOURCE_NOT_FOUND for an entity kind and id.
func NewNotFound(kind, id string) *Error {
	return &Error{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", kind),
		Details: fmt.Sprintf("no %s with id %s exists", kind, id),
	}
}

// NewConflict builds a CONFLICT_ERROR.
func NewConflict(message, details string) *Error {
	return &Error{Code: CodeConflict, Message: message, Details: details}
}

// NewDuplicate builds a DUPLICATE_RESOURCE error.
func NewDuplicate(kind, detail string) *Error {
	return &Error{
		Code:    CodeDuplicateResource,
		Message: fmt.Sprintf("duplicate %s", kind),
		Details: detail,
	}
}

// NewDatabase wraps a storage failure as DATABASE_ERROR.
func NewDatabase(op string, cause error) *Error {
	return &Error{
		Code:    CodeDatabase,
		Message: fmt.Sprintf("database operation failed: %s", op),
		Cause:   cause,
	}
}

// NewOperationFailed builds an OPERATION_FAILED error.
func NewOperationFailed(message string, cause error) *Error {
	return &Error{Code: CodeOperationFailed, Message: message, Cause: cause}
}

// NewInternal wraps an unexpected failure as INTERNAL_ERROR.
func NewInternal(message string, cause error) *Error {
	return &Error{Code: CodeInternal, Message: message, Cause: cause}
}

// AsError unwraps err to an *Error, or nil when none is found in the chain.
func AsError(err error) *Error {
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	return nil
}

// CodeOf returns the canonical code of err, unwrapping as needed. Errors
// with no structured code map to INTERNAL_ERROR.
func CodeOf(err error) Code {
	if te := AsError(err); te != nil {
		return te.Code
	}
	return CodeInternal
}

// IsNotFound reports whether err carries the RESOURCE_NOT_FOUND code.
func IsNotFound(err error) bool {
	return CodeOf(err) == CodeNotFound
}
