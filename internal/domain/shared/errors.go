package shared

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-level error.
// Details carries per-field failures for validation errors.
type DomainError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is matches domain errors by code so sentinels work with errors.Is
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// WithDetail returns a copy of the error with an extra detail entry
func (e *DomainError) WithDetail(field, message string) *DomainError {
	details := make(map[string]string, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[field] = message
	return &DomainError{Code: e.Code, Message: e.Message, Details: details}
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// NewDomainErrorf creates a new domain error with a formatted message
func NewDomainErrorf(code, format string, args ...any) *DomainError {
	return NewDomainError(code, fmt.Sprintf(format, args...))
}

// NewValidationError creates a VALIDATION_FAILED error carrying per-field details
func NewValidationError(message string, details map[string]string) *DomainError {
	return &DomainError{
		Code:    CodeValidationFailed,
		Message: message,
		Details: details,
	}
}

// AsDomainError extracts a DomainError from err if there is one
func AsDomainError(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// Error codes
const (
	CodeNotFound               = "NOT_FOUND"
	CodeInvalidInput           = "INVALID_INPUT"
	CodeValidationFailed       = "VALIDATION_FAILED"
	CodeInvalidState           = "INVALID_STATE"
	CodeConcurrencyConflict    = "CONCURRENCY_CONFLICT"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeForbidden              = "FORBIDDEN"
	CodeTenantMismatch         = "TENANT_MISMATCH"
	CodeIdempotencyConflict    = "IDEMPOTENCY_CONFLICT"
	CodeLockNotObtained        = "LOCK_NOT_OBTAINED"
)

// Common domain errors
var (
	ErrNotFound            = NewDomainError(CodeNotFound, "Resource not found")
	ErrInvalidInput        = NewDomainError(CodeInvalidInput, "Invalid input provided")
	ErrConcurrencyConflict = NewDomainError(CodeConcurrencyConflict, "Resource was modified by another process")
	ErrUnauthorized        = NewDomainError(CodeUnauthorized, "Not authorized to perform this action")
	ErrForbidden           = NewDomainError(CodeForbidden, "Access to this resource is forbidden")
	ErrInvalidState        = NewDomainError(CodeInvalidState, "Operation not allowed in current state")
	ErrTenantMismatch      = NewDomainError(CodeTenantMismatch, "Resource belongs to a different company")
	ErrIdempotencyConflict = NewDomainError(CodeIdempotencyConflict, "Idempotency key already used")
	ErrLockNotObtained     = NewDomainError(CodeLockNotObtained, "Resource is locked by another command")
)
