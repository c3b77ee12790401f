package services

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"examprep/internal/models"
	"examprep/internal/observability"
	contextutils "examprep/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ieltsReadingPayload = `{
  "title": "IELTS Academic Reading Test - Easy",
  "durationMinutes": 60,
  "questions": [
    {"questionNumber": 1, "questionText": "The surname of the applicant is ____.", "questionType": "form_completion",
     "passage": "The applicant, Mr Allen, called on Monday.",
     "answers": [{"answerOption": "answer", "answerText": "Allen", "isCorrect": true, "explanation": "Stated in line 1"}]},
    {"questionNumber": 2, "questionText": "The call was made on ____.", "questionType": "form_completion",
     "answers": [{"answerOption": "answer", "answerText": "Monday", "isCorrect": "yes"}]}
  ]
}`

const toeicReadingPayload = `{
  "title": "TOEIC Reading Test - Medium",
  "durationMinutes": 25,
  "questions": [
    {"questionText": "The report was ____ by Friday.", "questionType": "incomplete_sentence", "part": "Part 5",
     "answers": [{"answerOption": "A", "answerText": "complete", "isCorrect": false},
                 {"answerOption": "B", "answerText": "completed", "isCorrect": true}]},
    {"questionText": "Please ____ the attached form.", "questionType": "incomplete_sentence", "part": "Part 5",
     "answers": [{"answerOption": "A", "answerText": "review", "isCorrect": true},
                 {"answerOption": "B", "answerText": "reviews", "isCorrect": false}]}
  ]
}`

func newTestExamService(t *testing.T, gw LLMGateway) (*ExamService, *GormExamRepository) {
	t.Helper()
	logger := testLogger()
	repo := NewGormExamRepository(newTestDB(t), logger)
	prompts := newTestPromptBuilder(t, rand.New(rand.NewSource(1)))
	svc := NewExamService(ExamServiceDeps{
		Repo:         repo,
		Gateway:      gw,
		Prompts:      prompts,
		Materializer: NewTestMaterializer(rand.New(rand.NewSource(1)), nil, logger),
		Grading:      NewGradingEngine(NewEssayGrader(gw, prompts, logger), logger),
		Metrics:      observability.NewExamMetrics(),
		Logger:       logger,
	})
	svc.backoffBase = time.Millisecond
	return svc, repo
}

func ieltsReading() GenerationRequest {
	return GenerationRequest{Exam: models.ExamIELTS, SkillOrSection: models.SkillReading, Level: "Academic", Difficulty: models.DifficultyEasy}
}

func toeicReading() GenerationRequest {
	return GenerationRequest{Exam: models.ExamTOEIC, SkillOrSection: "Reading", Difficulty: models.DifficultyMedium}
}

func TestNewGenerationRequest(t *testing.T) {
	req, err := NewGenerationRequest(models.ExamIELTS, models.GenerateRequest{Skill: "listening", Difficulty: "easy"})
	require.NoError(t, err)
	assert.Equal(t, models.SkillListening, req.SkillOrSection)
	assert.Equal(t, models.DifficultyEasy, req.Difficulty)

	req, err = NewGenerationRequest(models.ExamTOEIC, models.GenerateRequest{Section: "Part 3 Conversations", Difficulty: "HARD"})
	require.NoError(t, err)
	assert.Equal(t, "Part 3 Conversations", req.SkillOrSection)
	assert.Equal(t, models.DifficultyHard, req.Difficulty)

	_, err = NewGenerationRequest(models.ExamIELTS, models.GenerateRequest{Skill: "Reading", Difficulty: "impossible"})
	assert.True(t, contextutils.IsError(err, contextutils.ErrInvalidInput))

	_, err = NewGenerationRequest(models.ExamTOEIC, models.GenerateRequest{Difficulty: "Easy"})
	require.Error(t, err)
	assert.True(t, contextutils.IsError(err, contextutils.ErrMissingRequired))
	assert.Contains(t, err.Error(), "section is required")
}

func TestExamService_GenerateIELTS(t *testing.T) {
	gw := &fakeGateway{responses: []string{ieltsReadingPayload}}
	svc, repo := newTestExamService(t, gw)

	test, err := svc.Generate(context.Background(), ieltsReading())
	require.NoError(t, err)
	assert.Equal(t, 1, gw.calls())
	require.NotZero(t, test.ID)
	assert.Equal(t, 2, test.TotalQuestions)

	stored, err := repo.GetTest(context.Background(), models.ExamIELTS, test.ID)
	require.NoError(t, err)
	require.Len(t, stored.Questions, 2)
	assert.Equal(t, "Allen", stored.Questions[0].Answers[0].Text)
	assert.True(t, stored.Questions[1].Answers[0].IsCorrect, "string booleans are coerced")
}

func TestExamService_GenerateIELTSDoesNotRetry(t *testing.T) {
	gw := &fakeGateway{errs: []error{errors.New("upstream down")}, responses: []string{"", ieltsReadingPayload}}
	svc, _ := newTestExamService(t, gw)

	_, err := svc.Generate(context.Background(), ieltsReading())
	require.Error(t, err)
	assert.True(t, contextutils.IsError(err, contextutils.ErrGenerationFailure))
	assert.Equal(t, 1, gw.calls())
}

func TestExamService_GenerateTOEICRetries(t *testing.T) {
	t.Run("succeeds on the third attempt", func(t *testing.T) {
		gw := &fakeGateway{
			errs:      []error{errors.New("rate limited"), nil},
			responses: []string{"", "not json", toeicReadingPayload},
		}
		svc, _ := newTestExamService(t, gw)
		test, err := svc.Generate(context.Background(), toeicReading())
		require.NoError(t, err)
		assert.Equal(t, 3, gw.calls())
		assert.Equal(t, models.ExamTOEIC, test.ExamKind)
		assert.Equal(t, "Part 5", test.Questions[0].Part)
	})

	t.Run("gives up after three attempts", func(t *testing.T) {
		gw := &fakeGateway{responses: []string{"still not json"}}
		svc, _ := newTestExamService(t, gw)
		_, err := svc.Generate(context.Background(), toeicReading())
		require.Error(t, err)
		assert.True(t, contextutils.IsError(err, contextutils.ErrGenerationFailure))
		assert.Equal(t, 3, gw.calls())
	})

	t.Run("cancelled context stops the backoff", func(t *testing.T) {
		gw := &fakeGateway{responses: []string{"nope"}}
		svc, _ := newTestExamService(t, gw)
		svc.backoffBase = time.Hour
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()
		_, err := svc.Generate(ctx, toeicReading())
		require.Error(t, err)
		assert.Equal(t, 1, gw.calls())
	})

	t.Run("configuration errors are not retried", func(t *testing.T) {
		gw := &fakeGateway{errs: []error{contextutils.ErrAIConfigInvalid}}
		svc, _ := newTestExamService(t, gw)
		_, err := svc.Generate(context.Background(), toeicReading())
		assert.True(t, contextutils.IsError(err, contextutils.ErrAIConfigInvalid))
		assert.Equal(t, 1, gw.calls())
	})
}

func TestExamService_StartAndSubmit(t *testing.T) {
	gw := &fakeGateway{responses: []string{ieltsReadingPayload}}
	svc, repo := newTestExamService(t, gw)
	ctx := context.Background()

	test, err := svc.Generate(ctx, ieltsReading())
	require.NoError(t, err)

	_, err = svc.Start(ctx, models.ExamIELTS, 5, 9999)
	assert.True(t, contextutils.IsError(err, contextutils.ErrTestNotFound))
	_, err = svc.Start(ctx, models.ExamTOEIC, 5, test.ID)
	assert.True(t, contextutils.IsError(err, contextutils.ErrTestNotFound), "tests are scoped to their exam")

	history, err := svc.Start(ctx, models.ExamIELTS, 5, test.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, history.Status)
	assert.Equal(t, 2, history.TotalAnswers)

	q1 := test.Questions[0].ID
	_, err = svc.Submit(ctx, models.ExamIELTS, 5, models.SubmitRequest{
		HistoryID: history.ID,
		Answers:   []models.SubmittedAnswer{{QuestionID: 424242, AnswerText: strPtr("x")}},
	})
	assert.True(t, contextutils.IsError(err, contextutils.ErrQuestionNotFound))
	stillOpen, err := repo.GetHistory(ctx, models.ExamIELTS, 5, history.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, stillOpen.Status)

	_, err = svc.Submit(ctx, models.ExamIELTS, 6, models.SubmitRequest{HistoryID: history.ID})
	assert.True(t, contextutils.IsError(err, contextutils.ErrRecordNotFound), "another user's session is not found")

	result, err := svc.Submit(ctx, models.ExamIELTS, 5, models.SubmitRequest{
		HistoryID:        history.ID,
		Answers:          []models.SubmittedAnswer{{QuestionID: q1, AnswerText: strPtr(" allen ")}},
		TimeSpentSeconds: 420,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.CorrectAnswers)
	assert.Equal(t, 2, result.TotalQuestions)
	assert.Equal(t, 6.0, result.Score)
	assert.Equal(t, 50.0, result.AccuracyPercentage)
	assert.Empty(t, result.TestTitle, "IELTS results omit test metadata")
	require.Len(t, result.QuestionResults, 1)
	assert.Equal(t, "Allen", result.QuestionResults[0].CorrectAnswer)

	completed, err := repo.GetHistory(ctx, models.ExamIELTS, 5, history.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, completed.Status)
	assert.Equal(t, 420, completed.TimeSpentSeconds)
	require.NotNil(t, completed.CompletedAt)

	_, err = svc.Submit(ctx, models.ExamIELTS, 5, models.SubmitRequest{HistoryID: history.ID})
	require.Error(t, err)
	assert.True(t, contextutils.IsError(err, contextutils.ErrInvalidSession))
	assert.Contains(t, err.Error(), "Test is already completed")
}

func TestExamService_SubmitTOEIC(t *testing.T) {
	gw := &fakeGateway{responses: []string{toeicReadingPayload}}
	svc, _ := newTestExamService(t, gw)
	ctx := context.Background()

	test, err := svc.Generate(ctx, toeicReading())
	require.NoError(t, err)
	history, err := svc.Start(ctx, models.ExamTOEIC, 1, test.ID)
	require.NoError(t, err)

	wrong := test.Questions[0].Answers[0].ID
	right := test.Questions[1].Answers[0].ID
	result, err := svc.Submit(ctx, models.ExamTOEIC, 1, models.SubmitRequest{
		HistoryID: history.ID,
		Answers: []models.SubmittedAnswer{
			{QuestionID: test.Questions[0].ID, SelectedAnswerID: &wrong},
			{QuestionID: test.Questions[1].ID, SelectedAnswerID: &right},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 258.0, result.Score)
	assert.Equal(t, 50.0, result.AccuracyPercentage)
	assert.Equal(t, "TOEIC Reading Test - Medium", result.TestTitle)
	assert.Equal(t, "Reading", result.SkillOrSection)
	assert.Equal(t, models.DifficultyMedium, result.Difficulty)
	assert.Equal(t, test.ID, result.TestID)
	assert.Equal(t, "B", result.QuestionResults[0].CorrectAnswerOption)
	assert.Equal(t, "A", result.QuestionResults[0].SelectedAnswerOption)
}

func TestExamService_History(t *testing.T) {
	gw := &fakeGateway{responses: []string{ieltsReadingPayload}}
	svc, _ := newTestExamService(t, gw)
	ctx := context.Background()

	test, err := svc.Generate(ctx, ieltsReading())
	require.NoError(t, err)

	clock := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }
	first, err := svc.Start(ctx, models.ExamIELTS, 2, test.ID)
	require.NoError(t, err)
	clock = clock.Add(time.Hour)
	second, err := svc.Start(ctx, models.ExamIELTS, 2, test.ID)
	require.NoError(t, err)

	list, err := svc.History(ctx, models.ExamIELTS, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
	assert.Equal(t, test.Title, list[0].TestTitle)
	assert.Equal(t, models.SkillReading, list[0].SkillOrSection)

	empty, err := svc.History(ctx, models.ExamTOEIC, 2)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
