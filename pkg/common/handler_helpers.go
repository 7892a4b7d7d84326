package common

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/richxcame/ride-dispatch/pkg/logger"
	"go.uber.org/zap"
)

// HandleServiceError renders err and reports whether a response was sent.
//
// Usage:
//
//	ride, err := h.service.AcceptRide(ctx, actor, rideID)
//	if HandleServiceError(c, err, "failed to accept ride") {
//	    return
//	}
func HandleServiceError(c *gin.Context, err error, fallbackMessage string) bool {
	if err == nil {
		return false
	}

	if appErr, ok := AsAppError(err); ok {
		if appErr.Code >= http.StatusInternalServerError {
			logger.ErrorContext(c.Request.Context(), appErr.Message, zap.Error(appErr.Err))
			_ = c.Error(appErr)
		}
		AppErrorResponse(c, appErr)
		return true
	}

	logger.ErrorContext(c.Request.Context(), fallbackMessage,
		zap.Error(err),
	)
	_ = c.Error(err)

	AppErrorResponse(c, NewInternalError(fallbackMessage, err))
	return true
}

// ParseUUIDParam parses a UUID from a URL parameter.
// Returns the UUID and true on success, or sends an error response and returns false on failure.
//
// Usage:
//
//	rideID, ok := ParseUUIDParam(c, "id", "ride ID")
//	if !ok {
//	    return
//	}
func ParseUUIDParam(c *gin.Context, paramName, displayName string) (uuid.UUID, bool) {
	paramValue := c.Param(paramName)
	if paramValue == "" {
		AppErrorResponse(c, NewValidationError(displayName+" is required",
			[]FieldError{{Field: paramName, Message: "is required"}}))
		return uuid.Nil, false
	}

	id, err := uuid.Parse(paramValue)
	if err != nil {
		AppErrorResponse(c, NewValidationError("invalid "+displayName,
			[]FieldError{{Field: paramName, Message: "must be a valid UUID"}}))
		return uuid.Nil, false
	}

	return id, true
}

// BindJSON binds the JSON body and sends a 400 on malformed input.
func BindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		AppErrorResponse(c, NewBadRequestError("invalid request body", err))
		return false
	}
	return true
}

// BindOptionalJSON is BindJSON for endpoints whose body may be omitted.
// An empty chunked body counts as omitted.
func BindOptionalJSON(c *gin.Context, obj interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(obj); err != nil {
		if errors.Is(err, io.EOF) {
			return true
		}
		AppErrorResponse(c, NewBadRequestError("invalid request body", err))
		return false
	}
	return true
}

// BindQuery binds query parameters and sends a 400 on malformed input.
func BindQuery(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		AppErrorResponse(c, NewBadRequestError("invalid query parameters", err))
		return false
	}
	return true
}
