package dto

import (
	"net/http"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared"
)

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	ErrCodeUnknown  = "ERR_UNKNOWN"
	ErrCodeInternal = "ERR_INTERNAL"
)

// Validation error codes
const (
	ErrCodeValidation   = "ERR_VALIDATION"
	ErrCodeBadRequest   = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	ErrCodeInvalidJSON  = "ERR_INVALID_JSON"
)

// Authentication error codes
const (
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	ErrCodeForbidden    = "ERR_FORBIDDEN"
	ErrCodeTokenExpired = "ERR_TOKEN_EXPIRED"
	ErrCodeTokenInvalid = "ERR_TOKEN_INVALID"
)

// Resource error codes
const (
	ErrCodeNotFound            = "ERR_NOT_FOUND"
	ErrCodeConflict            = "ERR_CONFLICT"
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"
	ErrCodeIdempotencyConflict = "ERR_IDEMPOTENCY_CONFLICT"
	ErrCodeResourceLocked      = "ERR_RESOURCE_LOCKED"
)

// Business rule error codes
const (
	ErrCodeInvalidState        = "ERR_INVALID_STATE"
	ErrCodeBusinessRule        = "ERR_BUSINESS_RULE"
	ErrCodeInsufficientBalance = "ERR_INSUFFICIENT_BALANCE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	ErrCodeValidation:   http.StatusBadRequest,
	ErrCodeBadRequest:   http.StatusBadRequest,
	ErrCodeInvalidInput: http.StatusBadRequest,
	ErrCodeInvalidJSON:  http.StatusBadRequest,

	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,
	ErrCodeTokenExpired: http.StatusUnauthorized,
	ErrCodeTokenInvalid: http.StatusUnauthorized,

	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeConflict:            http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusConflict,
	ErrCodeIdempotencyConflict: http.StatusConflict,
	ErrCodeResourceLocked:      http.StatusConflict,

	ErrCodeInvalidState:        http.StatusUnprocessableEntity,
	ErrCodeBusinessRule:        http.StatusUnprocessableEntity,
	ErrCodeInsufficientBalance: http.StatusUnprocessableEntity,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Unknown codes are 500.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DomainErrorCodeMapping maps domain error codes to API error codes
var DomainErrorCodeMapping = map[string]string{
	shared.CodeNotFound:               ErrCodeNotFound,
	shared.CodeInvalidInput:           ErrCodeInvalidInput,
	shared.CodeValidationFailed:       ErrCodeValidation,
	shared.CodeInvalidState:           ErrCodeInvalidState,
	shared.CodeConcurrencyConflict:    ErrCodeConcurrencyConflict,
	shared.CodeConcurrentModification: ErrCodeConcurrencyConflict,
	shared.CodeUnauthorized:           ErrCodeUnauthorized,
	shared.CodeForbidden:              ErrCodeForbidden,
	shared.CodeTenantMismatch:         ErrCodeForbidden,
	shared.CodeIdempotencyConflict:    ErrCodeIdempotencyConflict,
	shared.CodeLockNotObtained:        ErrCodeResourceLocked,

	finance.CodeAmountExceedsBalance: ErrCodeInsufficientBalance,
	finance.CodePlanExceedsRemaining: ErrCodeInsufficientBalance,
	finance.CodeCreditExceedsBalance: ErrCodeInsufficientBalance,
	finance.CodeTaxOverApplied:       ErrCodeInsufficientBalance,

	finance.CodeInvalidAmount:    ErrCodeValidation,
	finance.CodeUnknownStrategy:  ErrCodeValidation,
	finance.CodeDuplicateTarget:  ErrCodeValidation,
	finance.CodeInvalidTax:       ErrCodeValidation,
	finance.CodeNoLineItems:      ErrCodeValidation,
	finance.CodeCurrencyMismatch: ErrCodeBusinessRule,

	finance.CodeCounterpartMismatch:  ErrCodeBusinessRule,
	finance.CodeCreditTargetMismatch: ErrCodeBusinessRule,
	finance.CodeEmptyPlan:            ErrCodeBusinessRule,

	finance.CodeAlreadyReversed:      ErrCodeInvalidState,
	finance.CodeNotEditable:          ErrCodeInvalidState,
	finance.CodeInvalidTransition:    ErrCodeInvalidState,
	finance.CodeHasActiveAllocations: ErrCodeInvalidState,
	finance.CodeDocumentNotPayable:   ErrCodeInvalidState,
	finance.CodeDocumentNotPosted:    ErrCodeInvalidState,
	finance.CodeSourceNotAvailable:   ErrCodeInvalidState,
}

// NormalizeErrorCode converts a domain error code to the API format.
// Codes already in the API format pass through; unknown codes become ERR_BUSINESS_RULE.
func NormalizeErrorCode(code string) string {
	if apiCode, ok := DomainErrorCodeMapping[code]; ok {
		return apiCode
	}
	if _, ok := ErrorCodeHTTPStatus[code]; ok {
		return code
	}
	return ErrCodeBusinessRule
}
