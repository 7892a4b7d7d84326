package common

import (
	"errors"
	"net/http"
)

// Common error types
var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")
	ErrInternal     = errors.New("internal server error")
	ErrConflict     = errors.New("resource conflict")
	ErrValidation   = errors.New("validation error")
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

// Machine readable error codes returned alongside the HTTP status.
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeInternal     = "INTERNAL_ERROR"
	CodeBadRequest   = "BAD_REQUEST"
)

// FieldError describes a single invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ConflictDetail identifies the ride that blocked an operation.
type ConflictDetail struct {
	ActiveRideID string `json:"active_ride_id,omitempty"`
	Status       string `json:"status,omitempty"`
}

// AppError represents an application error with HTTP status code
type AppError struct {
	Code      int         `json:"code"`
	ErrorCode string      `json:"error_code,omitempty"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	Err       error       `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap exposes the underlying error to errors.Is / errors.As.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError
func NewAppError(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// AsAppError returns the *AppError in err's chain, if any.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func NewNotFoundError(message string, err error) *AppError {
	if err == nil {
		err = ErrNotFound
	}
	return &AppError{
		Code:      http.StatusNotFound,
		ErrorCode: CodeNotFound,
		Message:   message,
		Err:       err,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Code:      http.StatusUnauthorized,
		ErrorCode: CodeUnauthorized,
		Message:   message,
		Err:       ErrUnauthorized,
	}
}

func NewForbiddenError(message string) *AppError {
	return &AppError{
		Code:      http.StatusForbidden,
		ErrorCode: CodeForbidden,
		Message:   message,
		Err:       ErrForbidden,
	}
}

func NewBadRequestError(message string, err error) *AppError {
	if err == nil {
		err = ErrBadRequest
	}
	return &AppError{
		Code:      http.StatusBadRequest,
		ErrorCode: CodeBadRequest,
		Message:   message,
		Err:       err,
	}
}

// NewInternalError wraps an unexpected failure. The wrapped error is only
// rendered to clients when ExposeInternalErrors is enabled.
func NewInternalError(message string, err error) *AppError {
	if err == nil {
		err = ErrInternal
	}
	return &AppError{
		Code:      http.StatusInternalServerError,
		ErrorCode: CodeInternal,
		Message:   message,
		Err:       err,
	}
}

func NewConflictError(message string) *AppError {
	return &AppError{
		Code:      http.StatusConflict,
		ErrorCode: CodeConflict,
		Message:   message,
		Err:       ErrConflict,
	}
}

// NewRideConflictError reports a conflict caused by another ride, carrying
// that ride's id and status.
func NewRideConflictError(message, rideID, status string) *AppError {
	return &AppError{
		Code:      http.StatusConflict,
		ErrorCode: CodeConflict,
		Message:   message,
		Details:   ConflictDetail{ActiveRideID: rideID, Status: status},
		Err:       ErrConflict,
	}
}

func NewValidationError(message string, fields []FieldError) *AppError {
	appErr := &AppError{
		Code:      http.StatusBadRequest,
		ErrorCode: CodeValidation,
		Message:   message,
		Err:       ErrValidation,
	}
	if len(fields) > 0 {
		appErr.Details = fields
	}
	return appErr
}
