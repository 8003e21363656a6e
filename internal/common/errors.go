package common

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies failures of the billing core. Each kind maps to one
// HTTP status at the boundary.
type ErrorKind string

const (
	KindValidation         ErrorKind = "VALIDATION_ERROR"
	KindNotFound           ErrorKind = "NOT_FOUND"
	KindUnauthenticated    ErrorKind = "UNAUTHORIZED"
	KindAuthorization      ErrorKind = "FORBIDDEN"
	KindInsufficientStock  ErrorKind = "INSUFFICIENT_STOCK"
	KindAlreadyPaid        ErrorKind = "ALREADY_PAID"
	KindSignature          ErrorKind = "SIGNATURE_VERIFICATION_FAILED"
	KindConflict           ErrorKind = "CONFLICT"
	KindGatewayUnavailable ErrorKind = "GATEWAY_UNAVAILABLE"
	KindStorage            ErrorKind = "STORAGE_ERROR"
	KindEmail              ErrorKind = "EMAIL_ERROR"
	KindRateLimited        ErrorKind = "RATE_LIMITED"
	KindInternal           ErrorKind = "SERVER_ERROR"
)

var kindStatus = map[ErrorKind]int{
	KindValidation:         http.StatusBadRequest,
	KindNotFound:           http.StatusNotFound,
	KindUnauthenticated:    http.StatusUnauthorized,
	KindAuthorization:      http.StatusForbidden,
	KindInsufficientStock:  http.StatusBadRequest,
	KindAlreadyPaid:        http.StatusBadRequest,
	KindSignature:          http.StatusBadRequest,
	KindConflict:           http.StatusConflict,
	KindGatewayUnavailable: http.StatusBadGateway,
	KindStorage:            http.StatusBadGateway,
	KindEmail:              http.StatusBadGateway,
	KindRateLimited:        http.StatusTooManyRequests,
	KindInternal:           http.StatusInternalServerError,
}

// AppError is the error type every service returns to handlers.
type AppError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Status returns the HTTP status code for the error kind.
func (e *AppError) Status() int {
	return StatusForKind(e.Kind)
}

func StatusForKind(kind ErrorKind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

func NewValidationError(format string, args ...interface{}) *AppError {
	return &AppError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NewNotFoundError(resource, id string) *AppError {
	msg := fmt.Sprintf("%s not found", resource)
	if id != "" {
		msg = fmt.Sprintf("%s not found: %s", resource, id)
	}
	return &AppError{Kind: KindNotFound, Message: msg}
}

func NewUnauthenticatedError(message string) *AppError {
	return &AppError{Kind: KindUnauthenticated, Message: message}
}

func NewAuthorizationError(message string) *AppError {
	return &AppError{Kind: KindAuthorization, Message: message}
}

func NewInsufficientStockError(productName string, available, requested int) *AppError {
	return &AppError{
		Kind:    KindInsufficientStock,
		Message: fmt.Sprintf("Insufficient stock for %s. Available: %d, Requested: %d", productName, available, requested),
	}
}

func NewAlreadyPaidError(billNumber string) *AppError {
	return &AppError{Kind: KindAlreadyPaid, Message: fmt.Sprintf("Bill %s is already paid", billNumber)}
}

func NewSignatureVerificationError() *AppError {
	return &AppError{Kind: KindSignature, Message: "Invalid payment signature"}
}

func NewConflictError(message string, err error) *AppError {
	return &AppError{Kind: KindConflict, Message: message, Err: err}
}

func NewGatewayUnavailableError(message string, err error) *AppError {
	return &AppError{Kind: KindGatewayUnavailable, Message: message, Err: err}
}

func NewStorageError(message string, err error) *AppError {
	return &AppError{Kind: KindStorage, Message: message, Err: err}
}

func NewEmailError(message string, err error) *AppError {
	return &AppError{Kind: KindEmail, Message: message, Err: err}
}

func NewRateLimitedError(message string) *AppError {
	return &AppError{Kind: KindRateLimited, Message: message}
}

// SecureErrorMessage wraps an internal failure without exposing driver
// details to clients.
func SecureErrorMessage(operation string, err error) *AppError {
	return &AppError{
		Kind:    KindInternal,
		Message: fmt.Sprintf("failed to %s: operation could not be completed", operation),
		Err:     err,
	}
}
