package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"docgate/internal/core/apperror"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 8 << 20

// BaseHandler provides common handler utilities.
type BaseHandler struct{}

// NewBaseHandler creates a new base handler.
func NewBaseHandler() *BaseHandler {
	return &BaseHandler{}
}

// HandleError registers err on the gin context and aborts the request.
// The response is produced by middleware.ErrorHandler.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// ReadBody returns the request body. A missing body reads as empty.
func (h *BaseHandler) ReadBody(c *gin.Context) ([]byte, bool) {
	if c.Request.Body == nil {
		return nil, true
	}
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			appErr := apperror.NewValidation("request body too large").WithDetail("max_bytes", maxBodyBytes)
			appErr.HTTPStatus = http.StatusRequestEntityTooLarge
			h.HandleError(c, appErr)
			return nil, false
		}
		h.HandleError(c, apperror.NewValidation("failed to read request body").WithCause(err))
		return nil, false
	}
	return body, true
}

// OK sends 200 response with data.
func (h *BaseHandler) OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}
