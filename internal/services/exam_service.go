package services

import (
	"context"
	"strings"
	"time"

	"examprep/internal/config"
	"examprep/internal/models"
	"examprep/internal/observability"
	contextutils "examprep/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// ExamServiceInterface is the exam flow used by the HTTP handlers and the admin CLI
type ExamServiceInterface interface {
	Generate(ctx context.Context, req GenerationRequest) (*models.Test, error)
	GetTest(ctx context.Context, exam models.ExamKind, id int) (*models.Test, error)
	Start(ctx context.Context, exam models.ExamKind, userID, testID int) (*models.TestHistory, error)
	Submit(ctx context.Context, exam models.ExamKind, userID int, req models.SubmitRequest) (*models.SubmitResult, error)
	History(ctx context.Context, exam models.ExamKind, userID int) ([]models.HistoryResponse, error)
}

var _ ExamServiceInterface = (*ExamService)(nil)

// ExamService runs the generate, start, submit and history flows for both exams
type ExamService struct {
	repo         ExamRepository
	gateway      LLMGateway
	prompts      *PromptBuilder
	materializer *TestMaterializer
	grading      *GradingEngine
	cache        *RedisTestCache
	metrics      *observability.ExamMetrics
	logger       *observability.Logger

	toeicAttempts int
	backoffBase   time.Duration
	now           func() time.Time
}

// ExamServiceDeps groups the collaborators of ExamService. Cache and Metrics may be nil.
type ExamServiceDeps struct {
	Repo         ExamRepository
	Gateway      LLMGateway
	Prompts      *PromptBuilder
	Materializer *TestMaterializer
	Grading      *GradingEngine
	Cache        *RedisTestCache
	Metrics      *observability.ExamMetrics
	Logger       *observability.Logger
}

// NewExamService creates the service with the default TOEIC retry policy
func NewExamService(deps ExamServiceDeps) *ExamService {
	return &ExamService{
		repo:          deps.Repo,
		gateway:       deps.Gateway,
		prompts:       deps.Prompts,
		materializer:  deps.Materializer,
		grading:       deps.Grading,
		cache:         deps.Cache,
		metrics:       deps.Metrics,
		logger:        deps.Logger,
		toeicAttempts: config.TOEICGenerationAttempts,
		backoffBase:   config.GenerationBackoffBase,
		now:           time.Now,
	}
}

// normalizeSkill maps known IELTS skills to their canonical spelling and
// leaves anything else as sent
func normalizeSkill(skill string) string {
	skill = strings.TrimSpace(skill)
	for _, known := range []string{models.SkillReading, models.SkillListening, models.SkillWriting, models.SkillSpeaking} {
		if strings.EqualFold(skill, known) {
			return known
		}
	}
	return skill
}

// NewGenerationRequest validates a generate call for exam
func NewGenerationRequest(exam models.ExamKind, req models.GenerateRequest) (GenerationRequest, error) {
	difficulty, ok := models.NormalizeDifficulty(req.Difficulty)
	if !ok {
		return GenerationRequest{}, contextutils.NewErrorf(contextutils.ErrInvalidInput, "difficulty must be Easy, Medium or Hard, got %q", req.Difficulty)
	}
	skill := strings.TrimSpace(req.SkillOrSection())
	if skill == "" {
		field := "skill"
		if exam == models.ExamTOEIC {
			field = "section"
		}
		return GenerationRequest{}, contextutils.NewErrorf(contextutils.ErrMissingRequired, "%s is required", field)
	}
	if exam == models.ExamIELTS {
		skill = normalizeSkill(skill)
	}
	return GenerationRequest{
		Exam:           exam,
		SkillOrSection: skill,
		Level:          strings.TrimSpace(req.Level),
		Difficulty:     difficulty,
	}, nil
}

// Generate asks the model for a new test, materializes and stores it. TOEIC
// generation is retried with exponential backoff; IELTS gets a single attempt.
func (s *ExamService) Generate(ctx context.Context, req GenerationRequest) (result0 *models.Test, err error) {
	ctx, span := observability.TraceExamFunction(ctx, "generate",
		observability.AttributeExam(string(req.Exam)),
		observability.AttributeSkill(req.SkillOrSection),
		observability.AttributeDifficulty(req.Difficulty),
	)
	defer observability.FinishSpan(span, &err)

	attempts := 1
	if req.Exam == models.ExamTOEIC {
		attempts = s.toeicAttempts
	}

	var test *models.Test
	var lastErr error
retry:
	for attempt := 1; attempt <= attempts; attempt++ {
		test, lastErr = s.generateOnce(ctx, req)
		if lastErr == nil {
			span.SetAttributes(attribute.Int("generation.attempts", attempt))
			break
		}
		if !retryableGeneration(lastErr) {
			break
		}
		s.logger.Warn(ctx, "Test generation attempt failed", map[string]interface{}{
			"exam":     req.Exam,
			"skill":    req.SkillOrSection,
			"attempt":  attempt,
			"attempts": attempts,
			"error":    lastErr.Error(),
		})
		if attempt == attempts {
			break
		}
		delay := s.backoffBase * time.Duration(1<<(attempt-1))
		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
			break retry
		case <-time.After(delay):
		}
	}
	if lastErr != nil {
		s.metrics.GenerationFailed(ctx, string(req.Exam))
		if !retryableGeneration(lastErr) {
			return nil, lastErr
		}
		return nil, contextutils.WrapErrorf(contextutils.ErrGenerationFailure, "failed to generate %s %s test: %w", req.Exam, req.SkillOrSection, lastErr)
	}

	if err := s.repo.CreateTest(ctx, test); err != nil {
		return nil, err
	}
	s.cache.Put(ctx, test)
	s.metrics.TestGenerated(ctx, string(req.Exam), req.SkillOrSection)
	span.SetAttributes(observability.AttributeTestID(test.ID))

	s.logger.Info(ctx, "Generated test", map[string]interface{}{
		"test_id":    test.ID,
		"exam":       req.Exam,
		"skill":      req.SkillOrSection,
		"difficulty": req.Difficulty,
		"questions":  test.TotalQuestions,
	})
	return test, nil
}

// retryableGeneration is false for request and configuration errors that a
// second attempt cannot fix
func retryableGeneration(err error) bool {
	return !contextutils.IsError(err, contextutils.ErrInvalidInput) &&
		!contextutils.IsError(err, contextutils.ErrAIConfigInvalid)
}

func (s *ExamService) generateOnce(ctx context.Context, req GenerationRequest) (*models.Test, error) {
	prompt, err := s.prompts.BuildGenerationPrompt(req)
	if err != nil {
		return nil, err
	}
	raw, err := s.gateway.Generate(ctx, prompt.Text)
	if err != nil {
		return nil, err
	}
	return s.materializer.Materialize(ctx, raw, req, prompt)
}

// GetTest loads a test, from the cache when possible
func (s *ExamService) GetTest(ctx context.Context, exam models.ExamKind, id int) (result0 *models.Test, err error) {
	ctx, span := observability.TraceExamFunction(ctx, "get_test",
		observability.AttributeExam(string(exam)),
		observability.AttributeTestID(id),
	)
	defer observability.FinishSpan(span, &err)

	if test, ok := s.cache.Get(ctx, exam, id); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return test, nil
	}
	test, err := s.repo.GetTest(ctx, exam, id)
	if err != nil {
		return nil, err
	}
	s.cache.Put(ctx, test)
	return test, nil
}

// Start opens an in-progress session for userID on an existing test
func (s *ExamService) Start(ctx context.Context, exam models.ExamKind, userID, testID int) (result0 *models.TestHistory, err error) {
	ctx, span := observability.TraceExamFunction(ctx, "start",
		observability.AttributeExam(string(exam)),
		observability.AttributeUserID(userID),
		observability.AttributeTestID(testID),
	)
	defer observability.FinishSpan(span, &err)

	test, err := s.GetTest(ctx, exam, testID)
	if err != nil {
		return nil, err
	}
	history := &models.TestHistory{
		UserID:       userID,
		TestID:       test.ID,
		ExamKind:     exam,
		Status:       models.StatusInProgress,
		StartedAt:    s.now(),
		TotalAnswers: test.TotalQuestions,
	}
	if err := s.repo.CreateHistory(ctx, history); err != nil {
		return nil, err
	}
	span.SetAttributes(observability.AttributeHistoryID(history.ID))
	return history, nil
}

// Submit grades the answers of an in-progress session and completes it.
// A session can be completed once; later submissions fail with ErrInvalidSession.
func (s *ExamService) Submit(ctx context.Context, exam models.ExamKind, userID int, req models.SubmitRequest) (result0 *models.SubmitResult, err error) {
	ctx, span := observability.TraceExamFunction(ctx, "submit",
		observability.AttributeExam(string(exam)),
		observability.AttributeUserID(userID),
		observability.AttributeHistoryID(req.HistoryID),
	)
	defer observability.FinishSpan(span, &err)

	history, err := s.repo.GetHistory(ctx, exam, userID, req.HistoryID)
	if err != nil {
		return nil, err
	}
	if history.Status != models.StatusInProgress {
		return nil, contextutils.NewErrorf(contextutils.ErrInvalidSession, "Test is already completed")
	}
	test, err := s.GetTest(ctx, exam, history.TestID)
	if err != nil {
		return nil, err
	}

	grading, err := s.grading.Grade(ctx, history, test, req.Answers)
	if err != nil {
		return nil, err
	}

	completedAt := s.now()
	score := grading.Score
	history.CompletedAt = &completedAt
	history.CorrectAnswers = grading.CorrectAnswers
	history.Score = &score
	history.TimeSpentSeconds = req.TimeSpentSeconds
	if history.TotalAnswers <= 0 {
		history.TotalAnswers = test.TotalQuestions
	}
	if err := s.repo.CompleteHistory(ctx, history, grading.UserAnswers); err != nil {
		return nil, err
	}
	s.metrics.SubmissionGraded(ctx, string(exam))

	result := &models.SubmitResult{
		HistoryID:          history.ID,
		TestID:             test.ID,
		Score:              score,
		CorrectAnswers:     grading.CorrectAnswers,
		TotalQuestions:     history.TotalAnswers,
		TotalAnswers:       history.TotalAnswers,
		AccuracyPercentage: roundHalfUp(grading.Percentage*100, 2),
		TimeSpentSeconds:   req.TimeSpentSeconds,
		CompletedAt:        completedAt,
		QuestionResults:    grading.QuestionResults,
	}
	if exam == models.ExamTOEIC {
		result.TestTitle = test.Title
		result.SkillOrSection = test.SkillOrSection
		result.Difficulty = test.Difficulty
	}

	s.logger.Info(ctx, "Submitted test", map[string]interface{}{
		"history_id": history.ID,
		"test_id":    test.ID,
		"user_id":    userID,
		"score":      score,
		"correct":    grading.CorrectAnswers,
	})
	return result, nil
}

// History lists the user's sessions for exam, newest first
func (s *ExamService) History(ctx context.Context, exam models.ExamKind, userID int) (result0 []models.HistoryResponse, err error) {
	ctx, span := observability.TraceExamFunction(ctx, "history",
		observability.AttributeExam(string(exam)),
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	histories, err := s.repo.ListHistory(ctx, exam, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(histories))
	for _, h := range histories {
		ids = append(ids, h.TestID)
	}
	tests, err := s.repo.GetTestTitles(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]models.HistoryResponse, 0, len(histories))
	for i := range histories {
		out = append(out, models.NewHistoryResponse(&histories[i], tests[histories[i].TestID]))
	}
	return out, nil
}
