// Package apperror provides structured error handling following RFC 7807 Problem Details.
// Every refusal raised by the posting core is an AppError so callers can branch on Code
// and render Details without parsing messages.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// Infrastructure errors (5xx)
	CodeInternal           = "INTERNAL_ERROR"
	CodeTimeout            = "TIMEOUT_ERROR"
	CodePersistenceFailure = "PERSISTENCE_FAILURE"

	// Validation errors (400)
	CodeValidation = "VALIDATION_ERROR"

	// Business rule violations (422)
	CodeBusinessRule           = "BUSINESS_RULE_VIOLATION"
	CodeInsufficientInventory  = "INSUFFICIENT_INVENTORY"
	CodePrerequisiteMissing    = "PREREQUISITE_MISSING"
	CodeUnbalancedEntry        = "UNBALANCED_ENTRY"
	CodeAccountUnresolved      = "ACCOUNT_UNRESOLVED"
	CodeInvalidState           = "INVALID_STATE"
	CodePeriodClosed           = "PERIOD_CLOSED"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Conflict (409)
	CodeConflict         = "CONFLICT"
	CodeDuplicatePosting = "DUPLICATE_POSTING"
)

// AppError is the standard error type for the platform.
// It implements error interface and provides structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (amounts, references, ids)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewBusinessRule creates a business rule violation error (422)
func NewBusinessRule(code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// NewInsufficientInventory is returned when eligible layers cannot cover a consumption.
// Quantities are passed as decimal strings so no precision is lost in the payload.
func NewInsufficientInventory(productID string, requested, available string) *AppError {
	return &AppError{
		Code:       CodeInsufficientInventory,
		Message:    "Insufficient inventory in cost layers",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"product_id": productID,
			"requested":  requested,
			"available":  available,
		},
	}
}

// NewDuplicatePosting is returned when an active journal entry already exists
// for the (company, reference type, reference id) triple.
func NewDuplicatePosting(companyID, referenceType, referenceID string) *AppError {
	return &AppError{
		Code:       CodeDuplicatePosting,
		Message:    fmt.Sprintf("Journal entry for %s %s is already posted", referenceType, referenceID),
		HTTPStatus: http.StatusConflict,
		Details: map[string]any{
			"company_id":     companyID,
			"reference_type": referenceType,
			"reference_id":   referenceID,
		},
	}
}

// NewPrerequisiteMissing is returned when a dependent entry is posted before its prerequisite.
func NewPrerequisiteMissing(referenceType, required, referenceID string) *AppError {
	return &AppError{
		Code:       CodePrerequisiteMissing,
		Message:    fmt.Sprintf("%s requires an active %s entry", referenceType, required),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"reference_type": referenceType,
			"required_type":  required,
			"reference_id":   referenceID,
		},
	}
}

// NewUnbalancedEntry reports the totals and their difference.
func NewUnbalancedEntry(debits, credits, difference string) *AppError {
	return &AppError{
		Code:       CodeUnbalancedEntry,
		Message:    "Journal entry debits and credits do not balance",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"total_debit":  debits,
			"total_credit": credits,
			"difference":   difference,
		},
	}
}

// NewAccountUnresolved is returned when no account can be found for a posting role.
func NewAccountUnresolved(companyID, role string) *AppError {
	return &AppError{
		Code:       CodeAccountUnresolved,
		Message:    fmt.Sprintf("No account configured for role %s", role),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"company_id": companyID, "role": role},
	}
}

// NewInvalidState is returned when an operation does not fit the current lifecycle state.
func NewInvalidState(entity, message string) *AppError {
	return &AppError{
		Code:       CodeInvalidState,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"entity": entity},
	}
}

// NewPersistenceFailure wraps a failure that aborted an atomic posting unit.
// Nothing from the unit has been committed when this error is returned.
func NewPersistenceFailure(operation string, err error) *AppError {
	return &AppError{
		Code:       CodePersistenceFailure,
		Message:    fmt.Sprintf("%s failed and was rolled back", operation),
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"operation": operation},
		Err:        err,
	}
}

// NewTimeout is returned when a posting unit ran out of time. The unit has
// been rolled back.
func NewTimeout(err error) *AppError {
	return &AppError{
		Code:       CodeTimeout,
		Message:    "Posting unit exceeded its time limit and was rolled back",
		HTTPStatus: http.StatusGatewayTimeout,
		Err:        err,
	}
}

// NewConcurrentModification creates an optimistic locking error
func NewConcurrentModification(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeConcurrentModification,
		Message:    "Record was modified concurrently. Retry the operation.",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewPeriodClosed creates error when trying to post into a closed period
func NewPeriodClosed(period string) *AppError {
	return &AppError{
		Code:       CodePeriodClosed,
		Message:    fmt.Sprintf("Period %s is closed for postings", period),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"period": period},
	}
}

// NewConflict creates a conflict error (409)
func NewConflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err carries an AppError with the given code.
func HasCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// CodeOf returns the AppError code of err, or CodeInternal for foreign errors.
func CodeOf(err error) string {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return CodeInternal
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	return HasCode(err, CodeNotFound)
}

// IsConcurrentModification checks if error is CodeConcurrentModification
func IsConcurrentModification(err error) bool {
	return HasCode(err, CodeConcurrentModification)
}
