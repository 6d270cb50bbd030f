package util

import (
	"net/http"
	"strconv"

	"github.com/filswan/go-swan-lib/logs"
	"github.com/gin-gonic/gin"

	"github.com/robocompute/go-robocompute/constants"
	"github.com/robocompute/go-robocompute/internal/models"
)

// ErrorResponse maps err to its status code and wire envelope. Errors that
// carry no code become INTERNAL_ERROR without leaking their text.
func ErrorResponse(err error) (int, models.ErrorEnvelope) {
	e, ok := models.AsError(err)
	if !ok {
		logs.GetLogger().Errorf("internal error: %+v", err)
		e = models.ErrInternal("Internal server error")
	}
	return e.HTTPStatus(), models.ErrorEnvelope{Error: e}
}

// AbortWithError writes the error envelope for err and stops the handler chain.
func AbortWithError(c *gin.Context, err error) {
	status, body := ErrorResponse(err)
	if status == http.StatusTooManyRequests {
		if retry := body.Error.RetryAfter(); retry > 0 {
			c.Header(constants.HeaderRetryAfter, strconv.Itoa(retry))
		}
	}
	c.AbortWithStatusJSON(status, body)
}

// Respond writes v as the bare JSON body, or the error envelope when err is set.
func Respond(c *gin.Context, status int, v interface{}, err error) {
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(status, v)
}
