package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/imageguard/imageguard-backend/internal/pkg/errors"
)

// Response is the unified HTTP envelope
type Response struct {
	Code    int         `json:"code"`              // business code, 0 on success
	Message string      `json:"message,omitempty"` // error message
	Data    interface{} `json:"data"`
}

// Success writes a 200 response
func Success(c *gin.Context, data interface{}) {
	if data == nil {
		data = struct{}{}
	}
	c.JSON(http.StatusOK, Response{
		Code: apperrors.Success,
		Data: data,
	})
}

// BadRequest writes a 400 response
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{
		Code:    apperrors.ErrBadRequest,
		Message: message,
		Data:    struct{}{},
	})
}

// HandleError maps an error onto the envelope. AppErrors carry their own
// HTTP status and business code; anything else is an internal error. Data
// may be non-nil to return a partial payload alongside the error, which the
// search path uses when results were computed but persistence failed.
func HandleError(c *gin.Context, err error, data interface{}) {
	if data == nil {
		data = struct{}{}
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		c.JSON(appErr.HTTPStatus(), Response{
			Code:    appErr.Code,
			Message: appErr.Message,
			Data:    data,
		})
		return
	}

	c.JSON(http.StatusInternalServerError, Response{
		Code:    apperrors.ErrInternalServer,
		Message: apperrors.GetMessage(apperrors.ErrInternalServer),
		Data:    data,
	})
}
