package common

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// ErrorResponse is the error envelope returned by every endpoint.
type ErrorResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Code    string            `json:"code,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// SuccessResponse wraps a single payload.
type SuccessResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// ListResponse wraps a page of results.
type ListResponse struct {
	Success     bool        `json:"success"`
	Count       int         `json:"count"`
	Total       int         `json:"totalBills"`
	TotalPages  int         `json:"totalPages"`
	CurrentPage int         `json:"currentPage"`
	Data        interface{} `json:"data"`
}

// CreateErrorResponse creates a standardized error response
func CreateErrorResponse(code ErrorKind, message string, details map[string]string) *ErrorResponse {
	return &ErrorResponse{
		Success: false,
		Message: message,
		Code:    string(code),
		Details: details,
	}
}

// SendError writes err using the envelope and the status mapped from its
// kind. Internal errors are logged and replaced with a generic message.
func SendError(c echo.Context, err error) error {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		appErr = SecureErrorMessage("process request", err)
	}
	status := appErr.Status()
	if status >= http.StatusInternalServerError {
		logrus.WithFields(logrus.Fields{
			"method": c.Request().Method,
			"path":   c.Path(),
			"kind":   appErr.Kind,
		}).WithError(appErr.Err).Error(appErr.Message)
	}
	return c.JSON(status, CreateErrorResponse(appErr.Kind, appErr.Message, nil))
}

// SendValidationError sends a validation error response
func SendValidationError(c echo.Context, field, message string) error {
	details := map[string]string{field: message}
	return c.JSON(http.StatusBadRequest, CreateErrorResponse(KindValidation, message, details))
}

// SendNotFoundError sends a not found error response
func SendNotFoundError(c echo.Context, resource string) error {
	return SendError(c, NewNotFoundError(resource, ""))
}

// SendUnauthorizedError sends an unauthorized error response
func SendUnauthorizedError(c echo.Context) error {
	return SendError(c, NewUnauthenticatedError("Unauthorized access"))
}

// HTTPErrorHandler renders framework errors (routing, middleware) in the
// same envelope as service errors.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		message := http.StatusText(he.Code)
		if m, ok := he.Message.(string); ok {
			message = m
		}
		kind := KindInternal
		switch he.Code {
		case http.StatusBadRequest:
			kind = KindValidation
		case http.StatusUnauthorized:
			kind = KindUnauthenticated
		case http.StatusForbidden:
			kind = KindAuthorization
		case http.StatusNotFound:
			kind = KindNotFound
		case http.StatusTooManyRequests:
			kind = KindRateLimited
		}
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(he.Code)
			return
		}
		_ = c.JSON(he.Code, CreateErrorResponse(kind, message, nil))
		return
	}
	_ = SendError(c, err)
}
