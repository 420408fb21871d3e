package utils

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes with HTTP status mapping
const (
	// General errors
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeValidationFailed   = "VALIDATION_ERROR"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	ErrCodeInvalidJSON        = "INVALID_JSON"
	ErrCodeInvalidParameters  = "INVALID_PARAMETERS"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"

	// Schema errors
	ErrCodeMissingHeader = "MISSING_HEADER"
	ErrCodeMissingColumn = "MISSING_COLUMN"
	ErrCodeTypeMismatch  = "TYPE_MISMATCH"
	ErrCodeNullViolation = "NULL_VIOLATION"
	ErrCodeDuplicateKey  = "DUPLICATE_KEY"

	// Cross-reference errors
	ErrCodeDanglingReference = "DANGLING_REFERENCE"

	// Query errors
	ErrCodeInvalidPage       = "INVALID_PAGE"
	ErrCodeInvalidQuery      = "INVALID_QUERY"
	ErrCodeQueryTooExpensive = "QUERY_TOO_EXPENSIVE"
	ErrCodeQueryTimeout      = "QUERY_TIMEOUT"

	// Verification errors
	ErrCodeUnsupportedClaim = "UNSUPPORTED_CLAIM"

	// Data lifecycle errors
	ErrCodeStaleGeneration   = "STALE_GENERATION_CONFLICT"
	ErrCodeSourceUnavailable = "SOURCE_UNAVAILABLE"
	ErrCodeRefreshInProgress = "REFRESH_IN_PROGRESS"
)

// HTTPStatus maps error codes to HTTP status codes
var HTTPStatus = map[string]int{
	ErrCodeInvalidRequest:     http.StatusBadRequest,
	ErrCodeValidationFailed:   http.StatusUnprocessableEntity,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeInternalError:      http.StatusInternalServerError,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeRateLimitExceeded:  http.StatusTooManyRequests,
	ErrCodeInvalidJSON:        http.StatusBadRequest,
	ErrCodeInvalidParameters:  http.StatusBadRequest,
	ErrCodeUnauthorized:       http.StatusUnauthorized,
	ErrCodeForbidden:          http.StatusForbidden,

	ErrCodeMissingHeader: http.StatusUnprocessableEntity,
	ErrCodeMissingColumn: http.StatusUnprocessableEntity,
	ErrCodeTypeMismatch:  http.StatusUnprocessableEntity,
	ErrCodeNullViolation: http.StatusUnprocessableEntity,
	ErrCodeDuplicateKey:  http.StatusUnprocessableEntity,

	ErrCodeDanglingReference: http.StatusUnprocessableEntity,

	ErrCodeInvalidPage:       http.StatusBadRequest,
	ErrCodeInvalidQuery:      http.StatusBadRequest,
	ErrCodeQueryTooExpensive: http.StatusUnprocessableEntity,
	ErrCodeQueryTimeout:      http.StatusRequestTimeout,

	ErrCodeUnsupportedClaim: http.StatusConflict,

	ErrCodeStaleGeneration:   http.StatusInternalServerError,
	ErrCodeSourceUnavailable: http.StatusServiceUnavailable,
	ErrCodeRefreshInProgress: http.StatusConflict,
}

// Sentinel errors for errors.Is. Any AppError with the same code matches.
var (
	ErrMissingColumn     = &AppError{Code: ErrCodeMissingColumn, Message: getDefaultMessage(ErrCodeMissingColumn)}
	ErrTypeMismatch      = &AppError{Code: ErrCodeTypeMismatch, Message: getDefaultMessage(ErrCodeTypeMismatch)}
	ErrNullViolation     = &AppError{Code: ErrCodeNullViolation, Message: getDefaultMessage(ErrCodeNullViolation)}
	ErrDanglingReference = &AppError{Code: ErrCodeDanglingReference, Message: getDefaultMessage(ErrCodeDanglingReference)}
	ErrInvalidPage       = &AppError{Code: ErrCodeInvalidPage, Message: getDefaultMessage(ErrCodeInvalidPage)}
	ErrInvalidQuery      = &AppError{Code: ErrCodeInvalidQuery, Message: getDefaultMessage(ErrCodeInvalidQuery)}
	ErrQueryTooExpensive = &AppError{Code: ErrCodeQueryTooExpensive, Message: getDefaultMessage(ErrCodeQueryTooExpensive)}
	ErrQueryTimeout      = &AppError{Code: ErrCodeQueryTimeout, Message: getDefaultMessage(ErrCodeQueryTimeout)}
	ErrUnsupportedClaim  = &AppError{Code: ErrCodeUnsupportedClaim, Message: getDefaultMessage(ErrCodeUnsupportedClaim)}
	ErrStaleGeneration   = &AppError{Code: ErrCodeStaleGeneration, Message: getDefaultMessage(ErrCodeStaleGeneration)}
	ErrValidationFailed  = &AppError{Code: ErrCodeValidationFailed, Message: getDefaultMessage(ErrCodeValidationFailed)}
	ErrSourceUnavailable = &AppError{Code: ErrCodeSourceUnavailable, Message: getDefaultMessage(ErrCodeSourceUnavailable)}
)

// AppError represents an application error with additional context
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches any AppError carrying the same code
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// ErrorBuilder provides a fluent interface for creating errors
type ErrorBuilder struct {
	code    string
	message string
	details string
	cause   error
}

// NewErrorBuilder creates a new error builder
func NewErrorBuilder(code string) *ErrorBuilder {
	return &ErrorBuilder{code: code}
}

// WithMessage sets the error message
func (eb *ErrorBuilder) WithMessage(message string) *ErrorBuilder {
	eb.message = message
	return eb
}

// WithDetails sets the error details
func (eb *ErrorBuilder) WithDetails(details string) *ErrorBuilder {
	eb.details = details
	return eb
}

// WithCause sets the underlying error cause
func (eb *ErrorBuilder) WithCause(cause error) *ErrorBuilder {
	eb.cause = cause
	return eb
}

// Build constructs the final AppError
func (eb *ErrorBuilder) Build() *AppError {
	if eb.message == "" {
		eb.message = getDefaultMessage(eb.code)
	}

	return &AppError{
		Code:    eb.code,
		Message: eb.message,
		Details: eb.details,
		Cause:   eb.cause,
	}
}

// getDefaultMessage returns a default message for error codes
func getDefaultMessage(code string) string {
	messages := map[string]string{
		ErrCodeInvalidRequest:     "The request is invalid",
		ErrCodeValidationFailed:   "Validation failed",
		ErrCodeNotFound:           "Resource not found",
		ErrCodeInternalError:      "Internal server error",
		ErrCodeServiceUnavailable: "Service temporarily unavailable",
		ErrCodeRateLimitExceeded:  "Rate limit exceeded",
		ErrCodeInvalidJSON:        "Invalid JSON format",
		ErrCodeInvalidParameters:  "Invalid parameters",
		ErrCodeUnauthorized:       "Unauthorized access",
		ErrCodeForbidden:          "Forbidden access",

		ErrCodeMissingHeader: "Table has no header",
		ErrCodeMissingColumn: "Required column missing",
		ErrCodeTypeMismatch:  "Value does not match column type",
		ErrCodeNullViolation: "Null value in non-nullable column",
		ErrCodeDuplicateKey:  "Duplicate primary key",

		ErrCodeDanglingReference: "Reference to a nonexistent row",

		ErrCodeInvalidPage:       "Invalid page",
		ErrCodeInvalidQuery:      "Invalid query",
		ErrCodeQueryTooExpensive: "Query exceeds cost ceiling",
		ErrCodeQueryTimeout:      "Query timeout",

		ErrCodeUnsupportedClaim: "Claim is not supported by current data",

		ErrCodeStaleGeneration:   "Generation changed during publication",
		ErrCodeSourceUnavailable: "Data source unavailable",
		ErrCodeRefreshInProgress: "Refresh already in progress",
	}

	if msg, exists := messages[code]; exists {
		return msg
	}
	return "Unknown error"
}

// Convenience functions for common error types
func NewValidationError(message string, details string) *AppError {
	return NewErrorBuilder(ErrCodeValidationFailed).
		WithMessage(message).
		WithDetails(details).
		Build()
}

func NewInvalidPageError(page, pageSize int) *AppError {
	return NewErrorBuilder(ErrCodeInvalidPage).
		WithDetails(fmt.Sprintf("page=%d page_size=%d, both must be >= 1", page, pageSize)).
		Build()
}

func NewInvalidQueryError(details string) *AppError {
	return NewErrorBuilder(ErrCodeInvalidQuery).
		WithDetails(details).
		Build()
}

func NewQueryTooExpensiveError(details string) *AppError {
	return NewErrorBuilder(ErrCodeQueryTooExpensive).
		WithDetails(details).
		Build()
}

func NewQueryTimeoutError(cause error) *AppError {
	return NewErrorBuilder(ErrCodeQueryTimeout).
		WithCause(cause).
		WithDetails(cause.Error()).
		Build()
}

func NewUnsupportedClaimError(details string) *AppError {
	return NewErrorBuilder(ErrCodeUnsupportedClaim).
		WithDetails(details).
		Build()
}

func NewStaleGenerationError(expected, actual uint64) *AppError {
	return NewErrorBuilder(ErrCodeStaleGeneration).
		WithDetails(fmt.Sprintf("expected generation %d, found %d", expected, actual)).
		Build()
}

func NewSourceUnavailableError(source string, cause error) *AppError {
	return NewErrorBuilder(ErrCodeSourceUnavailable).
		WithMessage(fmt.Sprintf("data source %s unavailable", source)).
		WithCause(cause).
		WithDetails(cause.Error()).
		Build()
}

// IsErrorType checks if an error matches a specific error code
func IsErrorType(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// GetErrorStatus returns the HTTP status code for an error
func GetErrorStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		if status, exists := HTTPStatus[appErr.Code]; exists {
			return status
		}
	}
	return http.StatusInternalServerError
}
