// Package httputils provides HTTP utility functions.
package httputils

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/cyplan/pkg/utils/errors"
	"github.com/kart-io/cyplan/pkg/utils/response"
)

// WriteResponse writes the enveloped response to the client.
func WriteResponse(c *gin.Context, err error, data interface{}) {
	if err != nil {
		var errno *errors.Errno
		if !stderrors.As(err, &errno) {
			errno = errors.ErrInternal.WithMessage(err.Error())
		}
		resp := response.ErrWithLang(errno, c.GetHeader("Accept-Language")).WithRequestID(c.GetString("request_id"))
		c.JSON(resp.HTTPStatus(), resp)
		return
	}

	resp := response.Success(data).WithRequestID(c.GetString("request_id"))
	c.JSON(resp.HTTPStatus(), resp)
}

// WriteError writes a raw {"error": msg} body, used by the thread endpoints.
func WriteError(c *gin.Context, err error) {
	var errno *errors.Errno
	if !stderrors.As(err, &errno) {
		errno = errors.ErrInternal.WithCause(err)
	}
	c.JSON(errno.HTTPStatus(), gin.H{"error": errno.MessageEN, "code": errno.Code})
}

// WriteCreated writes a successful envelope with status 201.
func WriteCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, response.Success(data).WithRequestID(c.GetString("request_id")))
}
