// Package errors provides structured error types for beaverlog.
// All errors include a category, code, message, and retryable flag for
// consistent error handling across components.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryStorage    ErrorCategory = "STORAGE"
	ErrCategoryQuery      ErrorCategory = "QUERY"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeEmptyEventName    = "EMPTY_EVENT_NAME"
	CodeEmptyUniqueID     = "EMPTY_UNIQUE_ID"
	CodeInvalidKeySegment = "INVALID_KEY_SEGMENT"
	CodeInvalidTimeKey    = "INVALID_TIME_KEY"
	CodeEmptyBatch        = "EMPTY_BATCH"

	// Storage codes
	CodePutFailed    = "PUT_FAILED"
	CodeScanFailed   = "SCAN_FAILED"
	CodeKeyNotFound  = "KEY_NOT_FOUND"
	CodeCorruptValue = "CORRUPT_VALUE"

	// Query codes
	CodeQueryCancelled = "QUERY_CANCELLED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// BeaverError is the structured error type used throughout the system.
type BeaverError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *BeaverError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *BeaverError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *BeaverError) Is(target error) bool {
	var t *BeaverError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new BeaverError.
func New(category ErrorCategory, code, message string) *BeaverError {
	return &BeaverError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new BeaverError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *BeaverError {
	return &BeaverError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *BeaverError) WithDetails(details map[string]interface{}) *BeaverError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var be *BeaverError
	if errors.As(err, &be) {
		return be.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a BeaverError.
func GetCategory(err error) ErrorCategory {
	var be *BeaverError
	if errors.As(err, &be) {
		return be.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a BeaverError.
func GetCode(err error) string {
	var be *BeaverError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

// isRetryable reports whether a failure with the given code may succeed when
// the same operation is issued again. Prefix scans and puts are idempotent.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryStorage && code == CodeScanFailed:
		return true
	case category == ErrCategoryStorage && code == CodePutFailed:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewValidationError(code, message string) *BeaverError {
	return New(ErrCategoryValidation, code, message)
}

func NewStorageError(code, message string, cause error) *BeaverError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewQueryError(code, message string, cause error) *BeaverError {
	return Wrap(ErrCategoryQuery, code, message, cause)
}

func NewInternalError(message string, cause error) *BeaverError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
