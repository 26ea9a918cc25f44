package common

import (
	"errors"
	"net/http"

	"github.com/eugene-kirzhanov/vkcup21/pkg/logger"
	"github.com/eugene-kirzhanov/vkcup21/pkg/validation"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HandleServiceError writes err as a response and reports whether it did.
// AppErrors keep their status. Anything else is logged and becomes a 500
// carrying fallbackMessage.
//
//	details, err := h.service.Snapshot(id)
//	if common.HandleServiceError(c, err, "failed to read session") {
//	    return
//	}
func HandleServiceError(c *gin.Context, err error, fallbackMessage string) bool {
	if err == nil {
		return false
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		AppErrorResponse(c, appErr)
		return true
	}

	logger.ErrorContext(c.Request.Context(), fallbackMessage, zap.Error(err))
	_ = c.Error(err)
	AppErrorResponse(c, NewInternalError(fallbackMessage, err))
	return true
}

// ParseUUIDParam parses a UUID path parameter or responds with 400.
func ParseUUIDParam(c *gin.Context, paramName, displayName string) (uuid.UUID, bool) {
	paramValue := c.Param(paramName)
	if paramValue == "" {
		ErrorResponse(c, http.StatusBadRequest, displayName+" is required")
		return uuid.Nil, false
	}

	id, err := uuid.Parse(paramValue)
	if err != nil {
		AppErrorResponse(c, NewBadRequestError("invalid "+displayName, err))
		return uuid.Nil, false
	}
	return id, true
}

// BindJSON decodes the body into obj and runs struct validation. On failure
// the response is already written.
func BindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		AppErrorResponse(c, NewBadRequestError("invalid request body: "+err.Error(), err))
		return false
	}

	if err := validation.ValidateStruct(obj); err != nil {
		var verr *validation.ValidationError
		if errors.As(err, &verr) {
			ValidationErrorResponse(c, verr.Errors)
			return false
		}
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}
