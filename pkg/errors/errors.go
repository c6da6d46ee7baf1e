package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents application-specific error codes
type ErrorCode string

const (
	// Validation errors
	ErrCodeValidation   ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeMissingField ErrorCode = "MISSING_FIELD"

	// Authentication errors
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeInvalidToken ErrorCode = "INVALID_TOKEN"
	ErrCodeExpiredToken ErrorCode = "EXPIRED_TOKEN"

	// Authorization errors
	ErrCodeForbidden ErrorCode = "FORBIDDEN"

	// Not found errors
	ErrCodeNotFound             ErrorCode = "NOT_FOUND"
	ErrCodeSessionNotFound      ErrorCode = "SESSION_NOT_FOUND"
	ErrCodeConversationNotFound ErrorCode = "CONVERSATION_NOT_FOUND"

	// Call negotiation errors
	ErrCodeInsufficientBalance ErrorCode = "INSUFFICIENT_BALANCE"
	ErrCodePartyUnavailable    ErrorCode = "PARTY_UNAVAILABLE"
	ErrCodeSession             ErrorCode = "SESSION_ERROR"

	// Local call lifecycle errors
	ErrCodeCallInProgress    ErrorCode = "CALL_IN_PROGRESS"
	ErrCodeCallDebounced     ErrorCode = "CALL_DEBOUNCED"
	ErrCodeCallCancelled     ErrorCode = "CALL_CANCELLED"
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"

	// Media errors
	ErrCodeTransport         ErrorCode = "TRANSPORT_ERROR"
	ErrCodeDeviceUnavailable ErrorCode = "DEVICE_UNAVAILABLE"

	// Rate limiting errors
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Internal errors
	ErrCodeInternal       ErrorCode = "INTERNAL_ERROR"
	ErrCodeNetwork        ErrorCode = "NETWORK_ERROR"
	ErrCodeServiceUnavail ErrorCode = "SERVICE_UNAVAILABLE"
)

// AppError represents a structured application error with code, message, and HTTP status
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	StatusCode int       `json:"-"`
	Details    any       `json:"details,omitempty"`
	Err        error     `json:"-"`
}

// Error implements the error interface, returning a formatted error message
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the given code and message
// The status code defaults to 500 Internal Server Error
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

// NewWithStatus creates a new AppError with a specific HTTP status code
func NewWithStatus(code ErrorCode, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an existing error with an AppError, preserving the original error
// The status code defaults to 500 Internal Server Error
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// WrapWithStatus wraps an existing error with an AppError and specific status code
func WrapWithStatus(code ErrorCode, message string, statusCode int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

// WithDetails adds additional details to an AppError for debugging
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// Validation errors
func ValidationError(message string) *AppError {
	return NewWithStatus(ErrCodeValidation, message, http.StatusBadRequest)
}

func MissingFieldError(field string) *AppError {
	return NewWithStatus(ErrCodeMissingField, fmt.Sprintf("Missing required field: %s", field), http.StatusBadRequest)
}

// Authentication errors
func UnauthorizedError(message string) *AppError {
	return NewWithStatus(ErrCodeUnauthorized, message, http.StatusUnauthorized)
}

func InvalidTokenError(message string) *AppError {
	return NewWithStatus(ErrCodeInvalidToken, message, http.StatusUnauthorized)
}

// Not found errors
func NotFoundError(resource string) *AppError {
	return NewWithStatus(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func SessionNotFoundError() *AppError {
	return NewWithStatus(ErrCodeSessionNotFound, "Session not found", http.StatusNotFound)
}

// Call negotiation errors
func InsufficientBalanceError(message string) *AppError {
	return NewWithStatus(ErrCodeInsufficientBalance, message, http.StatusPaymentRequired)
}

func PartyUnavailableError(message string) *AppError {
	return NewWithStatus(ErrCodePartyUnavailable, message, http.StatusConflict)
}

// SessionError builds the error returned when the backend rejects session
// creation. code is the server-supplied errorCode; an empty code maps to
// ErrCodeSession.
func SessionError(code, message string, statusCode int) *AppError {
	if code == "" {
		code = string(ErrCodeSession)
	}
	if message == "" {
		message = "Failed to start call session"
	}
	return NewWithStatus(ErrorCode(code), message, statusCode)
}

// Local lifecycle errors
func CallInProgressError() *AppError {
	return NewWithStatus(ErrCodeCallInProgress, "A call is already in progress", http.StatusConflict)
}

func CallDebouncedError() *AppError {
	return NewWithStatus(ErrCodeCallDebounced, "Call initiation ignored: repeated within guard window", http.StatusTooManyRequests)
}

func CallCancelledError() *AppError {
	return NewWithStatus(ErrCodeCallCancelled, "Call cancelled by user", http.StatusOK)
}

func InvalidTransitionError(from, event string) *AppError {
	return NewWithStatus(ErrCodeInvalidTransition, fmt.Sprintf("event %s not allowed in stage %s", event, from), http.StatusConflict)
}

// Media errors
func TransportError(message string, err error) *AppError {
	return Wrap(ErrCodeTransport, message, err)
}

func DeviceUnavailableError(device string, err error) *AppError {
	return Wrap(ErrCodeDeviceUnavailable, fmt.Sprintf("%s unavailable", device), err)
}

// Internal errors
func InternalError(message string) *AppError {
	return NewWithStatus(ErrCodeInternal, message, http.StatusInternalServerError)
}

func NetworkError(err error) *AppError {
	return WrapWithStatus(ErrCodeNetwork, "Network error", http.StatusBadGateway, err)
}

func ServiceUnavailableError(message string) *AppError {
	return NewWithStatus(ErrCodeServiceUnavail, message, http.StatusServiceUnavailable)
}

// IsAppError checks if an error is (or wraps) an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// GetAppError extracts AppError from an error, wrapping non-AppErrors as InternalError
func GetAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return InternalError(err.Error())
}

// IsCode reports whether err is an AppError carrying code
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return false
	}
	return appErr.Code == code
}

// IsInsufficientBalance reports whether the backend refused a session for lack of funds
func IsInsufficientBalance(err error) bool {
	return IsCode(err, ErrCodeInsufficientBalance)
}

// CodeOf returns the error code carried by err, or "" for non-AppErrors
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}
