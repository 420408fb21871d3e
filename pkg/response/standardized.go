package response

import (
	"context"
	"errors"
	"net/http"
	"time"

	"insight-gateway/internal/utils"
)

// StandardResponse represents a standardized API response
type StandardResponse struct {
	Success       bool        `json:"success"`
	Data          interface{} `json:"data,omitempty"`
	Error         *ErrorInfo  `json:"error,omitempty"`
	Message       string      `json:"message,omitempty"`
	CorrelationID string      `json:"correlationId"`
	Timestamp     time.Time   `json:"timestamp"`
}

// ErrorInfo represents error information in responses
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse creates a successful response
func SuccessResponse(data interface{}, correlationID string) *StandardResponse {
	return &StandardResponse{
		Success:       true,
		Data:          data,
		CorrelationID: correlationID,
		Timestamp:     time.Now(),
	}
}

// ErrorResponse creates an error response
func ErrorResponse(code, message, details, correlationID string) *StandardResponse {
	return &StandardResponse{
		Success: false,
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
			Details: details,
		},
		CorrelationID: correlationID,
		Timestamp:     time.Now(),
	}
}

// ErrorResponseFromAppError creates an error response from AppError
func ErrorResponseFromAppError(appErr *utils.AppError, correlationID string) *StandardResponse {
	return ErrorResponse(appErr.Code, appErr.Message, appErr.Details, correlationID)
}

// FromError maps any error to its HTTP status and response body. Errors that
// are not AppErrors are reported as internal without leaking their text.
func FromError(err error, correlationID string) (int, *StandardResponse) {
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return utils.GetErrorStatus(appErr), ErrorResponseFromAppError(appErr, correlationID)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		timeout := utils.NewQueryTimeoutError(err)
		return utils.GetErrorStatus(timeout), ErrorResponseFromAppError(timeout, correlationID)
	}
	if errors.Is(err, context.Canceled) {
		return 499, ErrorResponse(utils.ErrCodeInvalidRequest, "Request cancelled", "", correlationID)
	}
	return http.StatusInternalServerError, InternalServerErrorResponse(correlationID)
}

// ValidationErrorResponse creates a validation error response
func ValidationErrorResponse(message string, correlationID string) *StandardResponse {
	return ErrorResponse(utils.ErrCodeValidationFailed, message, "", correlationID)
}

// InvalidRequestResponse reports a body or parameter that could not be bound
func InvalidRequestResponse(details string, correlationID string) *StandardResponse {
	return ErrorResponse(utils.ErrCodeInvalidRequest, "Invalid request", details, correlationID)
}

// InternalServerErrorResponse creates an internal server error response
func InternalServerErrorResponse(correlationID string) *StandardResponse {
	return ErrorResponse(utils.ErrCodeInternalError, "An internal error occurred", "", correlationID)
}

// UnauthorizedResponse creates an unauthorized error response
func UnauthorizedResponse(message string, correlationID string) *StandardResponse {
	if message == "" {
		message = "Unauthorized access"
	}
	return ErrorResponse(utils.ErrCodeUnauthorized, message, "", correlationID)
}

// ForbiddenResponse creates a forbidden error response
func ForbiddenResponse(message string, correlationID string) *StandardResponse {
	if message == "" {
		message = "Forbidden access"
	}
	return ErrorResponse(utils.ErrCodeForbidden, message, "", correlationID)
}
