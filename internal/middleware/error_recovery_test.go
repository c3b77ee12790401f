package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	contextutils "examprep/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestErrorRecoveryMiddleware_PanicRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ErrorRecoveryMiddleware(nil))
	router.GET("/panic", func(_ *gin.Context) {
		panic("test panic")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Internal server error")
}

func TestErrorRecoveryMiddleware_NormalRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ErrorRecoveryMiddleware(nil))
	router.GET("/normal", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/normal", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code contextutils.ErrorCode
		want int
	}{
		{contextutils.ErrorCodeInvalidInput, http.StatusBadRequest},
		{contextutils.ErrorCodeValidationFailed, http.StatusBadRequest},
		{contextutils.ErrorCodeUnauthorized, http.StatusUnauthorized},
		{contextutils.ErrorCodeTestNotFound, http.StatusNotFound},
		{contextutils.ErrorCodeRecordNotFound, http.StatusNotFound},
		{contextutils.ErrorCodeQuestionNotFound, http.StatusNotFound},
		{contextutils.ErrorCodeInvalidSession, http.StatusConflict},
		{contextutils.ErrorCodeGenerationFailure, http.StatusBadGateway},
		{contextutils.ErrorCodeMalformedAIResponse, http.StatusBadGateway},
		{contextutils.ErrorCodeDatabaseConnection, http.StatusServiceUnavailable},
		{contextutils.ErrorCodeDatabaseQuery, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.code))
		})
	}
}

func TestHandleAppError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"wrapped app error", contextutils.WrapErrorf(contextutils.ErrInvalidSession, "submit: %w", errors.New("x")), http.StatusConflict},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			HandleAppError(c, tt.err)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestHandleAppError_PlainErrorBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	HandleAppError(c, errors.New("disk full"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"INTERNAL_SERVER_ERROR"`)
	assert.Contains(t, w.Body.String(), `"details":"disk full"`)
}
