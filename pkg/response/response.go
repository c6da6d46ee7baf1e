package response

import (
	"time"

	"github.com/gin-gonic/gin"

	"consultline/pkg/errors"
)

// Response is the `{success, data}` envelope served by the chat endpoints.
// Error responses flatten the message and code so clients can read
// `{error, errorCode}` without unwrapping.
type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	ErrorCode string      `json:"errorCode,omitempty"`
	Meta      *Meta       `json:"meta,omitempty"`
}

// Meta contains response metadata
type Meta struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// SessionEnvelope is the session endpoint's `{ok, session}` shape
type SessionEnvelope struct {
	OK        bool        `json:"ok"`
	Session   interface{} `json:"session,omitempty"`
	Error     string      `json:"error,omitempty"`
	ErrorCode string      `json:"errorCode,omitempty"`
}

// Success sends a successful response
func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, Response{
		Success: true,
		Data:    data,
		Meta:    meta(c),
	})
}

// Raw sends data without the envelope, for endpoints whose shape is fixed by clients
func Raw(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, data)
}

// SessionOK sends `{ok: true, session}`
func SessionOK(c *gin.Context, session interface{}) {
	c.JSON(200, SessionEnvelope{OK: true, Session: session})
}

// SessionFail sends `{ok: false, error, errorCode}`
func SessionFail(c *gin.Context, statusCode int, errorCode, errorMessage string) {
	c.JSON(statusCode, SessionEnvelope{OK: false, Error: errorMessage, ErrorCode: errorCode})
}

// SessionFromError renders err in the session envelope using its AppError code and status
func SessionFromError(c *gin.Context, err error) {
	appErr := errors.GetAppError(err)
	status := appErr.StatusCode
	if status == 0 {
		status = 500
	}
	SessionFail(c, status, string(appErr.Code), appErr.Message)
}

// Error sends an error response
func Error(c *gin.Context, statusCode int, errorCode, errorMessage string) {
	c.JSON(statusCode, Response{
		Success:   false,
		Error:     errorMessage,
		ErrorCode: errorCode,
		Meta:      meta(c),
	})
}

// FromError renders err using its AppError code and status
func FromError(c *gin.Context, err error) {
	appErr := errors.GetAppError(err)
	status := appErr.StatusCode
	if status == 0 {
		status = 500
	}
	Error(c, status, string(appErr.Code), appErr.Message)
}

// ValidationError sends a validation error response (400)
func ValidationError(c *gin.Context, message string) {
	Error(c, 400, "VALIDATION_ERROR", message)
}

// Unauthorized sends unauthorized error (401)
func Unauthorized(c *gin.Context, message string) {
	Error(c, 401, "UNAUTHORIZED", message)
}

// Forbidden sends forbidden error (403)
func Forbidden(c *gin.Context, message string) {
	Error(c, 403, "FORBIDDEN", message)
}

// NotFound sends not found error (404)
func NotFound(c *gin.Context, message string) {
	Error(c, 404, "NOT_FOUND", message)
}

// InternalError sends internal server error (500)
func InternalError(c *gin.Context, message string) {
	Error(c, 500, "INTERNAL_ERROR", message)
}

func meta(c *gin.Context) *Meta {
	return &Meta{
		Timestamp: time.Now().UTC(),
		RequestID: getRequestID(c),
	}
}

// getRequestID extracts request ID from context
func getRequestID(c *gin.Context) string {
	if requestID, exists := c.Get("request_id"); exists {
		if id, ok := requestID.(string); ok {
			return id
		}
	}
	return ""
}
