// Package apperrors defines the error taxonomy shared by the store, the
// generation manager and the HTTP handlers.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation_error"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeInternal     ErrorType = "internal_error"
)

// FieldError describes one problem with one input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (f FieldError) String() string {
	if f.Field == "" {
		return f.Message
	}
	return f.Field + ": " + f.Message
}

type AppError struct {
	Type    ErrorType
	Message string
	Err     error
	Code    string
	Details []FieldError
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewAppError(errType ErrorType, message string, originalError error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     originalError,
		Code:    generateErrorCode(errType),
	}
}

// NewValidationError reports user-correctable input problems.
func NewValidationError(message string, details ...FieldError) *AppError {
	err := NewAppError(ErrorTypeValidation, message, nil)
	err.Details = details
	return err
}

func NewNotFoundError(message string) *AppError {
	return NewAppError(ErrorTypeNotFound, message, nil)
}

func NewConflictError(message string) *AppError {
	return NewAppError(ErrorTypeConflict, message, nil)
}

func NewUnauthorizedError(message string) *AppError {
	return NewAppError(ErrorTypeUnauthorized, message, nil)
}

func NewInternalError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeInternal, message, originalError)
}

// TypeOf returns the AppError type in err's chain, or ErrorTypeInternal for
// anything else.
func TypeOf(err error) ErrorType {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type
	}
	return ErrorTypeInternal
}

func IsValidationError(err error) bool {
	return err != nil && TypeOf(err) == ErrorTypeValidation
}

func IsNotFoundError(err error) bool {
	return err != nil && TypeOf(err) == ErrorTypeNotFound
}

func IsConflictError(err error) bool {
	return err != nil && TypeOf(err) == ErrorTypeConflict
}

// DetailsOf returns the field details carried by err, if any.
func DetailsOf(err error) []FieldError {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Details
	}
	return nil
}

// HTTPStatus maps err to the status code handlers respond with.
func HTTPStatus(err error) int {
	switch TypeOf(err) {
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeConflict:
		return http.StatusConflict
	case ErrorTypeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func generateErrorCode(errType ErrorType) string {
	switch errType {
	case ErrorTypeValidation:
		return "VALIDATION_ERROR"
	case ErrorTypeNotFound:
		return "NOT_FOUND"
	case ErrorTypeConflict:
		return "CONFLICT"
	case ErrorTypeUnauthorized:
		return "UNAUTHORIZED"
	case ErrorTypeInternal:
		return "INTERNAL_ERROR"
	default:
		return "UNKNOWN_ERROR"
	}
}
