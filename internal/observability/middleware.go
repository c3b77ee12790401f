package observability

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	contextutils "examprep/internal/utils"
)

// GinMiddleware creates OpenTelemetry middleware for Gin HTTP requests
func GinMiddleware(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName)
}

// GinMiddlewareWithErrorHandling returns otelgin followed by a handler that marks the
// request span as failed for 4xx and 5xx responses, carrying the AppError code when a
// handler recorded one. The annotator must run inside otelgin so the span is still open.
func GinMiddlewareWithErrorHandling(serviceName string) []gin.HandlerFunc {
	return []gin.HandlerFunc{otelgin.Middleware(serviceName), annotateErrorSpan}
}

func annotateErrorSpan(c *gin.Context) {
	c.Next()

	statusCode := c.Writer.Status()
	if statusCode < 400 {
		return
	}
	span := trace.SpanFromContext(c.Request.Context())
	if !span.IsRecording() {
		return
	}

	severity := determineErrorSeverity(statusCode, c.Errors)
	errorMsg := "client error"
	if statusCode >= 500 {
		errorMsg = "server error"
	}

	var appErr *contextutils.AppError
	for _, ginErr := range c.Errors {
		if contextutils.AsError(ginErr.Err, &appErr) {
			errorMsg = appErr.Message
			break
		}
		errorMsg = ginErr.Error()
	}

	span.RecordError(errors.New(errorMsg))
	span.SetStatus(codes.Error, errorMsg)
	span.SetAttributes(
		attribute.Int("http.status_code", statusCode),
		attribute.String("http.method", c.Request.Method),
		attribute.String("http.path", c.Request.URL.Path),
		attribute.String("error.handler", c.HandlerName()),
		attribute.String("error.severity", severity),
		attribute.Bool("error.server_error", statusCode >= 500),
	)
	if userID := c.GetInt("user_id"); userID != 0 {
		span.SetAttributes(attribute.Int("error.user_id", userID))
	}
	if appErr != nil {
		span.SetAttributes(
			attribute.String("error.code", string(appErr.Code)),
			attribute.Bool("error.retryable", contextutils.IsRetryable(appErr)),
		)
	}
}

// determineErrorSeverity determines the severity level based on status code and error types
func determineErrorSeverity(statusCode int, ginErrors []*gin.Error) string {
	for _, ginErr := range ginErrors {
		var appErr *contextutils.AppError
		if contextutils.AsError(ginErr.Err, &appErr) {
			return string(contextutils.GetErrorSeverity(appErr))
		}
	}

	switch {
	case statusCode >= 500:
		return string(contextutils.SeverityError)
	case statusCode >= 400:
		return string(contextutils.SeverityWarn)
	default:
		return string(contextutils.SeverityInfo)
	}
}
