package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"examprep/internal/observability"
	contextutils "examprep/internal/utils"

	"github.com/gin-gonic/gin"
)

// ErrorRecoveryMiddleware turns panics into a 500 AppError response
func ErrorRecoveryMiddleware(logger *observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				stackTrace := string(debug.Stack())

				panicErr, ok := rec.(error)
				if !ok {
					panicErr = fmt.Errorf("panic: %v", rec)
				}
				if logger != nil {
					logger.Error(c.Request.Context(), "Panic recovered", panicErr, map[string]interface{}{
						"path":   c.Request.URL.Path,
						"method": c.Request.Method,
						"stack":  stackTrace,
					})
				}

				appErr := contextutils.NewAppErrorWithCause(
					contextutils.ErrorCodeInternalError,
					contextutils.SeverityFatal,
					"Internal server error",
					"A panic occurred while processing the request",
					panicErr,
				)
				if gin.Mode() == gin.DebugMode {
					appErr.Details = fmt.Sprintf("%s\nStack trace: %s", appErr.Details, stackTrace)
				}

				_ = c.Error(appErr)
				HandleAppError(c, appErr)
				c.Abort()
			}
		}()

		c.Next()
	}
}

// HandleAppError sends err as a structured JSON error with the status its code maps to
func HandleAppError(c *gin.Context, err error) {
	var appErr *contextutils.AppError
	if errors.As(err, &appErr) {
		StandardizeAppError(c, appErr)
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		StandardizeAppError(c, contextutils.NewAppError(contextutils.ErrorCodeTimeout, contextutils.SeverityWarn, "Request timed out", err.Error()))
		return
	}
	StandardizeAppError(c, contextutils.NewAppError(contextutils.ErrorCodeInternalError, contextutils.SeverityError, "Internal server error", err.Error()))
}

// StandardizeAppError sends a structured error response using AppError
func StandardizeAppError(c *gin.Context, err *contextutils.AppError) {
	c.JSON(HTTPStatus(err.Code), err.ToJSON())
}

// HTTPStatus maps AppError codes to HTTP status codes
func HTTPStatus(code contextutils.ErrorCode) int {
	switch code {
	case contextutils.ErrorCodeInvalidInput, contextutils.ErrorCodeMissingRequired,
		contextutils.ErrorCodeValidationFailed:
		return http.StatusBadRequest

	case contextutils.ErrorCodeUnauthorized:
		return http.StatusUnauthorized

	case contextutils.ErrorCodeRecordNotFound, contextutils.ErrorCodeTestNotFound,
		contextutils.ErrorCodeQuestionNotFound:
		return http.StatusNotFound

	case contextutils.ErrorCodeInvalidSession:
		return http.StatusConflict

	case contextutils.ErrorCodeGenerationFailure, contextutils.ErrorCodeMalformedAIResponse,
		contextutils.ErrorCodeAIRequestFailed, contextutils.ErrorCodeAIResponseInvalid:
		return http.StatusBadGateway

	case contextutils.ErrorCodeServiceUnavailable, contextutils.ErrorCodeDatabaseConnection:
		return http.StatusServiceUnavailable

	case contextutils.ErrorCodeTimeout:
		return http.StatusGatewayTimeout

	default:
		return http.StatusInternalServerError
	}
}
