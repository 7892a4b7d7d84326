package common

import (
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

var exposeInternalErrors atomic.Bool

// ExposeInternalErrors toggles whether the cause of a 500 is rendered to
// clients. Enabled only in development.
func ExposeInternalErrors(enabled bool) {
	exposeInternalErrors.Store(enabled)
}

// Response represents a standard API response
type Response struct {
	Success    bool        `json:"success"`
	Message    string      `json:"message,omitempty"`
	Data       interface{} `json:"data,omitempty"`
	Error      *ErrorInfo  `json:"error,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

// ErrorInfo contains error details
type ErrorInfo struct {
	Code      int         `json:"code"`
	ErrorCode string      `json:"error_code,omitempty"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	Cause     string      `json:"cause,omitempty"`
}

// Pagination contains metadata for paginated list responses
type Pagination struct {
	CurrentPage int   `json:"current_page"`
	TotalPages  int   `json:"total_pages"`
	TotalRides  int64 `json:"total_rides"`
	HasNextPage bool  `json:"has_next_page"`
	HasPrevPage bool  `json:"has_prev_page"`
}

// SuccessResponse sends a 200 response with a message and payload
func SuccessResponse(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// SuccessResponseWithPagination sends a list payload with page metadata
func SuccessResponseWithPagination(c *gin.Context, message string, data interface{}, page *Pagination) {
	c.JSON(http.StatusOK, Response{
		Success:    true,
		Message:    message,
		Data:       data,
		Pagination: page,
	})
}

// CreatedResponse sends a created response
func CreatedResponse(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// ErrorResponse sends an error response
func ErrorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, Response{
		Success: false,
		Message: message,
		Error: &ErrorInfo{
			Code:    statusCode,
			Message: message,
		},
	})
}

// AppErrorResponse sends an AppError response
func AppErrorResponse(c *gin.Context, err *AppError) {
	info := &ErrorInfo{
		Code:      err.Code,
		ErrorCode: err.ErrorCode,
		Message:   err.Message,
		Details:   err.Details,
	}
	if err.Code >= http.StatusInternalServerError && exposeInternalErrors.Load() && err.Err != nil {
		info.Cause = err.Err.Error()
	}
	c.JSON(err.Code, Response{
		Success: false,
		Message: err.Message,
		Error:   info,
	})
}
