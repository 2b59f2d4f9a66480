package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/pathweaver/pathweaver/internal/ai"
	"github.com/pathweaver/pathweaver/internal/middleware"
	"github.com/pathweaver/pathweaver/internal/pkg/errcode"
	appErr "github.com/pathweaver/pathweaver/internal/pkg/errors"
	"github.com/pathweaver/pathweaver/internal/pkg/response"
)

func getOwnerID(c *gin.Context) string {
	value, _ := c.Get(middleware.ContextOwnerIDKey)
	ownerID, _ := value.(string)
	return ownerID
}

// handleError maps service errors onto the wire taxonomy. Empty result and
// persistence failures keep distinct codes so the UI can react differently.
func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	)
	switch {
	case errors.Is(err, appErr.ErrUnauthorized):
		response.Error(c, errcode.ErrUnauthorized, "unauthorized")
	case errors.Is(err, appErr.ErrForbidden):
		response.Error(c, errcode.ErrForbidden, "forbidden")
	case errors.Is(err, appErr.ErrNotFound):
		response.Error(c, errcode.ErrNotFound, "not found")
	case errors.Is(err, appErr.ErrInvalid):
		response.Error(c, errcode.ErrInvalid, err.Error())
	case errors.Is(err, appErr.ErrConflict):
		response.Error(c, errcode.ErrConflict, "conflict")
	case errors.Is(err, appErr.ErrEmptyResult):
		response.Error(c, errcode.ErrEmptyResult, "no content matched the query, try rephrasing it")
	case errors.Is(err, appErr.ErrPersistence):
		response.Error(c, errcode.ErrPersistence, "could not save the learning path, try again")
	case errors.Is(err, ai.ErrCircuitOpen):
		response.Error(c, errcode.ErrCircuitOpen, "generation backend unavailable, back off and retry")
	case errors.Is(err, ai.ErrUnavailable):
		response.Error(c, errcode.ErrAIUnavailable, "ai not configured")
	default:
		response.Error(c, errcode.ErrInternal, "internal error")
	}
}
