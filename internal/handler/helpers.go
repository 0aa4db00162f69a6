package handler

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/aitutor/internal/ai"
	"github.com/xxxsen/aitutor/internal/middleware"
	"github.com/xxxsen/aitutor/internal/pkg/errcode"
	appErr "github.com/xxxsen/aitutor/internal/pkg/errors"
	"github.com/xxxsen/aitutor/internal/pkg/response"
	"github.com/xxxsen/aitutor/internal/rag"
)

func getUserID(c *gin.Context) string {
	value, _ := c.Get(middleware.ContextUserIDKey)
	userID, _ := value.(string)
	return userID
}

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	requestID, _ := c.Get(middleware.ContextRequestIDKey)
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.Any("request_id", requestID),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("user_id", getUserID(c)),
		zap.Error(err),
	)
	switch {
	case errors.Is(err, appErr.ErrUnauthorized):
		response.Error(c, errcode.ErrUnauthorized, appErr.Message(err, "unauthorized"))
	case errors.Is(err, appErr.ErrForbidden):
		response.Error(c, errcode.ErrForbidden, appErr.Message(err, "forbidden"))
	case errors.Is(err, appErr.ErrNotFound):
		response.Error(c, errcode.ErrNotFound, appErr.Message(err, "not found"))
	case errors.Is(err, appErr.ErrInvalid):
		response.Error(c, errcode.ErrInvalid, appErr.Message(err, "invalid request"))
	case errors.Is(err, appErr.ErrConflict):
		response.Error(c, errcode.ErrConflict, appErr.Message(err, "conflict"))
	case errors.Is(err, appErr.ErrTooMany):
		response.Error(c, errcode.ErrTooMany, "too many requests")
	case rag.IsContent(err):
		response.Error(c, errcode.ErrInvalidFile, "the document could not be read")
	case rag.IsConfig(err):
		response.Error(c, errcode.ErrInternal, "internal error")
	case rag.IsTransient(err), errors.Is(err, appErr.ErrUpstreamUnavailable),
		errors.Is(err, ai.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		response.Error(c, errcode.ErrAIUnavailable, "AI service is temporarily unavailable, please retry")
	default:
		response.Error(c, errcode.ErrInternal, "internal error")
	}
}
