package services

import (
	"context"
	"errors"
	"time"

	"examprep/internal/models"
	"examprep/internal/observability"
	contextutils "examprep/internal/utils"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// ExamRepository persists tests and test sessions
type ExamRepository interface {
	CreateTest(ctx context.Context, test *models.Test) error
	GetTest(ctx context.Context, exam models.ExamKind, id int) (*models.Test, error)
	CreateHistory(ctx context.Context, history *models.TestHistory) error
	GetHistory(ctx context.Context, exam models.ExamKind, userID, id int) (*models.TestHistory, error)
	CompleteHistory(ctx context.Context, history *models.TestHistory, answers []models.UserAnswer) error
	ListHistory(ctx context.Context, exam models.ExamKind, userID int) ([]models.TestHistory, error)
	GetTestTitles(ctx context.Context, ids []int) (map[int]*models.Test, error)
}

// GormExamRepository implements ExamRepository over gorm
type GormExamRepository struct {
	db     *gorm.DB
	logger *observability.Logger
}

// NewGormExamRepository creates a repository on db
func NewGormExamRepository(db *gorm.DB, logger *observability.Logger) *GormExamRepository {
	return &GormExamRepository{db: db, logger: logger}
}

// CreateTest inserts the test with its questions and answers in one transaction
func (r *GormExamRepository) CreateTest(ctx context.Context, test *models.Test) (err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "create_test",
		observability.AttributeExam(string(test.ExamKind)),
		attribute.Int("questions.count", len(test.Questions)),
	)
	defer observability.FinishSpan(span, &err)

	if test.CreatedAt.IsZero() {
		test.CreatedAt = time.Now()
	}
	if err := r.db.WithContext(ctx).Create(test).Error; err != nil {
		return contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to save test: %w", err)
	}
	span.SetAttributes(observability.AttributeTestID(test.ID))
	return nil
}

// GetTest loads a test of the given exam with questions and answers in order
func (r *GormExamRepository) GetTest(ctx context.Context, exam models.ExamKind, id int) (result0 *models.Test, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "get_test", observability.AttributeTestID(id))
	defer observability.FinishSpan(span, &err)

	var test models.Test
	err = r.db.WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB { return db.Order("question_number ASC, id ASC") }).
		Preload("Questions.Answers", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("id = ? AND exam_kind = ?", id, exam).
		First(&test).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, contextutils.NewErrorf(contextutils.ErrTestNotFound, "Test not found")
	}
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to load test %d: %w", id, err)
	}
	return &test, nil
}

// GetTestTitles loads tests by id without their questions
func (r *GormExamRepository) GetTestTitles(ctx context.Context, ids []int) (result0 map[int]*models.Test, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "get_test_titles", attribute.Int("tests.count", len(ids)))
	defer observability.FinishSpan(span, &err)

	out := make(map[int]*models.Test, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var tests []models.Test
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&tests).Error; err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to load tests: %w", err)
	}
	for i := range tests {
		out[tests[i].ID] = &tests[i]
	}
	return out, nil
}

// CreateHistory inserts a new session
func (r *GormExamRepository) CreateHistory(ctx context.Context, history *models.TestHistory) (err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "create_history",
		observability.AttributeTestID(history.TestID),
		observability.AttributeUserID(history.UserID),
	)
	defer observability.FinishSpan(span, &err)

	if err := r.db.WithContext(ctx).Create(history).Error; err != nil {
		return contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to save test history: %w", err)
	}
	return nil
}

// GetHistory loads one of the user's sessions for the given exam
func (r *GormExamRepository) GetHistory(ctx context.Context, exam models.ExamKind, userID, id int) (result0 *models.TestHistory, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "get_history",
		observability.AttributeHistoryID(id),
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	var h models.TestHistory
	err = r.db.WithContext(ctx).
		Where("id = ? AND user_id = ? AND exam_kind = ?", id, userID, exam).
		First(&h).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, contextutils.NewErrorf(contextutils.ErrRecordNotFound, "Test history not found")
	}
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to load test history %d: %w", id, err)
	}
	return &h, nil
}

// CompleteHistory moves an in-progress session to completed and stores its
// answers atomically. Losing the race to another submission returns ErrInvalidSession.
func (r *GormExamRepository) CompleteHistory(ctx context.Context, history *models.TestHistory, answers []models.UserAnswer) (err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "complete_history",
		observability.AttributeHistoryID(history.ID),
		attribute.Int("answers.count", len(answers)),
	)
	defer observability.FinishSpan(span, &err)

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.TestHistory{}).
			Where("id = ? AND status = ?", history.ID, models.StatusInProgress).
			Updates(map[string]interface{}{
				"status":             models.StatusCompleted,
				"completed_at":       history.CompletedAt,
				"correct_answers":    history.CorrectAnswers,
				"total_answers":      history.TotalAnswers,
				"score":              history.Score,
				"time_spent_seconds": history.TimeSpentSeconds,
			})
		if res.Error != nil {
			return contextutils.WrapErrorf(contextutils.ErrDatabaseTransaction, "failed to complete test history: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			observability.SetCallResult(span, "lost_race")
			return contextutils.NewErrorf(contextutils.ErrInvalidSession, "Test is already completed")
		}

		if len(answers) > 0 {
			for i := range answers {
				answers[i].HistoryID = history.ID
			}
			if err := tx.Create(&answers).Error; err != nil {
				return contextutils.WrapErrorf(contextutils.ErrDatabaseTransaction, "failed to save user answers: %w", err)
			}
		}
		history.Status = models.StatusCompleted
		history.UserAnswers = answers
		return nil
	})
}

// ListHistory returns the user's sessions for an exam, newest first
func (r *GormExamRepository) ListHistory(ctx context.Context, exam models.ExamKind, userID int) (result0 []models.TestHistory, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "list_history",
		observability.AttributeUserID(userID),
		observability.AttributeExam(string(exam)),
	)
	defer observability.FinishSpan(span, &err)

	var out []models.TestHistory
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND exam_kind = ?", userID, exam).
		Order("started_at DESC, id DESC").
		Find(&out).Error; err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseQuery, "failed to list test history: %w", err)
	}
	span.SetAttributes(attribute.Int("history.count", len(out)))
	return out, nil
}
