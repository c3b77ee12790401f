package handlers

import (
	"examprep/internal/middleware"
	contextutils "examprep/internal/utils"

	"github.com/gin-gonic/gin"
)

// HandleAppError handles any AppError and sends appropriate HTTP response
func HandleAppError(c *gin.Context, err error) {
	_ = c.Error(err)
	middleware.HandleAppError(c, err)
}

// bindJSON decodes the request body into req and runs struct validation
func bindJSON(c *gin.Context, req interface{}) error {
	if err := c.ShouldBindJSON(req); err != nil {
		return contextutils.NewAppErrorWithCause(
			contextutils.ErrorCodeInvalidInput,
			contextutils.SeverityWarn,
			"Invalid request format",
			err.Error(),
			err,
		)
	}
	return contextutils.ValidateStruct(req)
}
