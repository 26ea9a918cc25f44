package common

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}

// ErrorInfo contains error details
type ErrorInfo struct {
	Code      int         `json:"code"`
	ErrorCode string      `json:"error_code,omitempty"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}

// SuccessResponse sends a successful response
func SuccessResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

// CreatedResponse sends a created response
func CreatedResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Success: true, Data: data})
}

// ErrorResponse sends an error response
func ErrorResponse(c *gin.Context, statusCode int, message string) {
	c.AbortWithStatusJSON(statusCode, Response{
		Success: false,
		Error:   &ErrorInfo{Code: statusCode, Message: message},
	})
}

// AppErrorResponse sends an AppError response
func AppErrorResponse(c *gin.Context, err *AppError) {
	c.AbortWithStatusJSON(err.Code, Response{
		Success: false,
		Error: &ErrorInfo{
			Code:      err.Code,
			ErrorCode: err.ErrorCode,
			Message:   err.Message,
		},
	})
}

// ValidationErrorResponse sends a 400 with per-field details
func ValidationErrorResponse(c *gin.Context, details interface{}) {
	c.AbortWithStatusJSON(http.StatusBadRequest, Response{
		Success: false,
		Error: &ErrorInfo{
			Code:      http.StatusBadRequest,
			ErrorCode: "validation_failed",
			Message:   "request validation failed",
			Details:   details,
		},
	})
}
