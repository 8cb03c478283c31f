package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeValidation indicates a malformed request rejected before scheduling.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeNotFound indicates a resource was not found.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeAuthentication indicates the console rejected the agent credentials.
	ErrCodeAuthentication ErrorCode = "authentication"
	// ErrCodeStep indicates a console step could not complete or reported an explicit error.
	ErrCodeStep ErrorCode = "step"
	// ErrCodeAmbiguity indicates zero or several rows matched a target identity.
	ErrCodeAmbiguity ErrorCode = "ambiguity"
	// ErrCodeReconciliation indicates neither UI feedback nor the balance delta confirmed an operation.
	ErrCodeReconciliation ErrorCode = "reconciliation_inconclusive"
	// ErrCodeResource indicates a browser session could not be acquired or created.
	ErrCodeResource ErrorCode = "resource"
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal ErrorCode = "internal"
	// ErrCodeTimeout indicates a timeout occurred.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeCanceled indicates the operation was canceled.
	ErrCodeCanceled ErrorCode = "canceled"
)

// AppError represents a structured application error with a code, message, and optional cause.
// It supports error wrapping and unwrapping for use with errors.Is and errors.As.
type AppError struct {
	// Code categorizes the error type
	Code ErrorCode
	// Message is a human-readable error message
	Message string
	// Cause is the underlying error that caused this error (optional)
	Cause error
	// Field is the specific field that caused the error (optional, for validation errors)
	Field string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

func newf(code ErrorCode, format string, args ...any) *AppError {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &AppError{Code: code, Message: msg}
}

// NotFound creates a new NotFound error.
func NotFound(message string) *AppError {
	return newf(ErrCodeNotFound, message)
}

// NotFoundf creates a new NotFound error with formatted message.
func NotFoundf(format string, args ...any) *AppError {
	return newf(ErrCodeNotFound, format, args...)
}

// Validation creates a new Validation error.
func Validation(message string) *AppError {
	return newf(ErrCodeValidation, message)
}

// Validationf creates a new Validation error with formatted message.
func Validationf(format string, args ...any) *AppError {
	return newf(ErrCodeValidation, format, args...)
}

// ValidationField creates a new Validation error for a specific field.
func ValidationField(field, message string) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: message,
		Field:   field,
	}
}

// Authenticationf creates a credential rejection error.
func Authenticationf(format string, args ...any) *AppError {
	return newf(ErrCodeAuthentication, format, args...)
}

// Stepf creates a step failure error.
func Stepf(format string, args ...any) *AppError {
	return newf(ErrCodeStep, format, args...)
}

// Ambiguityf creates a row disambiguation error.
func Ambiguityf(format string, args ...any) *AppError {
	return newf(ErrCodeAmbiguity, format, args...)
}

// Reconciliationf creates an inconclusive reconciliation error.
func Reconciliationf(format string, args ...any) *AppError {
	return newf(ErrCodeReconciliation, format, args...)
}

// Internalf creates a new Internal error with formatted message.
func Internalf(format string, args ...any) *AppError {
	return newf(ErrCodeInternal, format, args...)
}

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// isCode checks if an error has a specific error code.
func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsNotFound checks if an error is a NotFound error.
func IsNotFound(err error) bool {
	return isCode(err, ErrCodeNotFound)
}

// IsValidation checks if an error is a Validation error.
func IsValidation(err error) bool {
	return isCode(err, ErrCodeValidation)
}

// IsAuthentication checks if an error is an Authentication error.
func IsAuthentication(err error) bool {
	return isCode(err, ErrCodeAuthentication)
}

// IsAmbiguity checks if an error is an Ambiguity error.
func IsAmbiguity(err error) bool {
	return isCode(err, ErrCodeAmbiguity)
}

// IsResource checks if an error is a Resource error.
func IsResource(err error) bool {
	return isCode(err, ErrCodeResource)
}

// IsTimeout checks if an error is a Timeout error.
func IsTimeout(err error) bool {
	return isCode(err, ErrCodeTimeout)
}

// GetCode returns the ErrorCode from an error, or empty string if not an AppError.
// The outermost AppError in the chain wins.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the Field from an error, or empty string if not an AppError or no field set.
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}
