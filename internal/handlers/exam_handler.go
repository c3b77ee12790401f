package handlers

import (
	"net/http"
	"strconv"

	"examprep/internal/middleware"
	"examprep/internal/models"
	"examprep/internal/observability"
	"examprep/internal/services"
	contextutils "examprep/internal/utils"

	"github.com/gin-gonic/gin"
)

// ExamHandler serves the generate, test, start, submit and history endpoints
// for every exam kind under /api/v1/:exam
type ExamHandler struct {
	service services.ExamServiceInterface
	logger  *observability.Logger
}

// NewExamHandler creates an exam handler
func NewExamHandler(service services.ExamServiceInterface, logger *observability.Logger) *ExamHandler {
	return &ExamHandler{service: service, logger: logger}
}

// examParams resolves the exam path segment and the authenticated user
func examParams(c *gin.Context) (models.ExamKind, int, error) {
	exam, ok := models.ParseExamKind(c.Param("exam"))
	if !ok {
		return "", 0, contextutils.NewErrorf(contextutils.ErrInvalidInput, "unknown exam %q", c.Param("exam"))
	}
	userID, ok := middleware.UserID(c)
	if !ok {
		return "", 0, contextutils.ErrUnauthorized
	}
	return exam, userID, nil
}

// Generate handles POST /api/v1/:exam/generate
func (h *ExamHandler) Generate(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "generate_test")
	var err error
	defer observability.FinishSpan(span, &err)

	exam, userID, err := examParams(c)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	var req models.GenerateRequest
	if err = bindJSON(c, &req); err != nil {
		HandleAppError(c, err)
		return
	}
	genReq, err := services.NewGenerationRequest(exam, req)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	span.SetAttributes(observability.AttributeExam(string(exam)), observability.AttributeUserID(userID))

	test, err := h.service.Generate(ctx, genReq)
	if err != nil {
		h.logger.Error(ctx, "Test generation failed", err, map[string]interface{}{
			"user_id":    userID,
			"exam":       exam,
			"skill":      genReq.SkillOrSection,
			"difficulty": genReq.Difficulty,
		})
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, models.NewTestResponse(test))
}

// GetTest handles GET /api/v1/:exam/tests/:testId
func (h *ExamHandler) GetTest(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_test")
	var err error
	defer observability.FinishSpan(span, &err)

	exam, _, err := examParams(c)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	testID, convErr := strconv.Atoi(c.Param("testId"))
	if convErr != nil || testID <= 0 {
		err = contextutils.NewErrorf(contextutils.ErrInvalidInput, "invalid test id %q", c.Param("testId"))
		HandleAppError(c, err)
		return
	}

	test, err := h.service.GetTest(ctx, exam, testID)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.NewTestResponse(test))
}

// Start handles POST /api/v1/:exam/start
func (h *ExamHandler) Start(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "start_test")
	var err error
	defer observability.FinishSpan(span, &err)

	exam, userID, err := examParams(c)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	var req models.StartRequest
	if err = bindJSON(c, &req); err != nil {
		HandleAppError(c, err)
		return
	}

	history, err := h.service.Start(ctx, exam, userID, req.TestID)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	test, err := h.service.GetTest(ctx, exam, history.TestID)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, models.NewHistoryResponse(history, test))
}

// Submit handles POST /api/v1/:exam/submit
func (h *ExamHandler) Submit(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "submit_test")
	var err error
	defer observability.FinishSpan(span, &err)

	exam, userID, err := examParams(c)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	var req models.SubmitRequest
	if err = bindJSON(c, &req); err != nil {
		HandleAppError(c, err)
		return
	}
	if exam == models.ExamTOEIC {
		// TOEIC accepts single selections only
		for i := range req.Answers {
			req.Answers[i].SelectedAnswerIDs = nil
			req.Answers[i].AnswerText = nil
		}
	}

	result, err := h.service.Submit(ctx, exam, userID, req)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// History handles GET /api/v1/:exam/history
func (h *ExamHandler) History(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_history")
	var err error
	defer observability.FinishSpan(span, &err)

	exam, userID, err := examParams(c)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	list, err := h.service.History(ctx, exam, userID)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}
