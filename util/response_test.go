package util

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/robocompute/go-robocompute/internal/models"
)

func TestErrorResponse(t *testing.T) {
	status, body := ErrorResponse(models.ErrTaskNotFound("task_1"))
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, models.CodeTaskNotFound, body.Error.Code)

	status, body = ErrorResponse(errors.New("disk on fire"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, models.CodeInternalError, body.Error.Code)
	assert.NotContains(t, body.Error.Message, "disk")
}

func TestAbortWithRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	AbortWithError(c, models.ErrRateLimit(42))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "42", w.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":{"code":"RATE_LIMIT_EXCEEDED","message":"Rate limit exceeded","details":{"retry_after":42}}}`, w.Body.String())
}
