package models

import (
	"encoding/json"
	"time"
)

// GenerateRequest asks for a new test. IELTS callers send Skill, TOEIC callers send Section.
type GenerateRequest struct {
	Skill      string `json:"skill,omitempty"`
	Section    string `json:"section,omitempty"`
	Level      string `json:"level,omitempty"`
	Difficulty string `json:"difficulty" validate:"required"`
}

// SkillOrSection returns whichever of Skill or Section was supplied
func (r GenerateRequest) SkillOrSection() string {
	if r.Skill != "" {
		return r.Skill
	}
	return r.Section
}

// StartRequest opens a session on an existing test
type StartRequest struct {
	TestID int `json:"testId" validate:"required,gt=0"`
}

// SubmittedAnswer is one question's answer inside a SubmitRequest
type SubmittedAnswer struct {
	QuestionID        int     `json:"questionId" validate:"required,gt=0"`
	SelectedAnswerID  *int    `json:"selectedAnswerId,omitempty"`
	SelectedAnswerIDs []int   `json:"selectedAnswerIds,omitempty"`
	AnswerText        *string `json:"answerText,omitempty"`
}

// SubmitRequest completes a session
type SubmitRequest struct {
	HistoryID        int               `json:"historyId" validate:"required,gt=0"`
	Answers          []SubmittedAnswer `json:"answers" validate:"dive"`
	TimeSpentSeconds int               `json:"timeSpentSeconds" validate:"gte=0"`
}

// AnswerResponse hides isCorrect and explanation while a test is being taken
type AnswerResponse struct {
	ID          int     `json:"id"`
	Option      string  `json:"answerOption"`
	Text        string  `json:"answerText"`
	IsCorrect   *bool   `json:"isCorrect"`
	Explanation *string `json:"explanation"`
}

// QuestionResponse is a question as shown to a test taker
type QuestionResponse struct {
	ID        int              `json:"id"`
	Number    int              `json:"questionNumber"`
	Text      string           `json:"questionText"`
	Type      QuestionType     `json:"questionType"`
	Passage   string           `json:"passage,omitempty"`
	AudioURL  string           `json:"audioUrl,omitempty"`
	ImageURL  string           `json:"imageUrl,omitempty"`
	MinWords  int              `json:"minWords,omitempty"`
	ChartData json.RawMessage  `json:"chartData,omitempty"`
	Part      string           `json:"part,omitempty"`
	Answers   []AnswerResponse `json:"answers"`
}

// TestResponse is a generated test with answer metadata suppressed
type TestResponse struct {
	ID              int                `json:"id"`
	ExamKind        ExamKind           `json:"examKind"`
	Skill           string             `json:"skill,omitempty"`
	Section         string             `json:"section,omitempty"`
	Level           string             `json:"level,omitempty"`
	Difficulty      string             `json:"difficulty"`
	Title           string             `json:"title"`
	DurationMinutes int                `json:"durationMinutes"`
	TotalQuestions  int                `json:"totalQuestions"`
	CreatedAt       time.Time          `json:"createdAt"`
	Questions       []QuestionResponse `json:"questions"`
}

// NewTestResponse builds the taker-facing view of a test
func NewTestResponse(t *Test) TestResponse {
	resp := TestResponse{
		ID:              t.ID,
		ExamKind:        t.ExamKind,
		Level:           t.Level,
		Difficulty:      t.Difficulty,
		Title:           t.Title,
		DurationMinutes: t.DurationMinutes,
		TotalQuestions:  t.TotalQuestions,
		CreatedAt:       t.CreatedAt,
		Questions:       make([]QuestionResponse, 0, len(t.Questions)),
	}
	if t.ExamKind == ExamTOEIC {
		resp.Section = t.SkillOrSection
	} else {
		resp.Skill = t.SkillOrSection
	}
	for _, q := range t.Questions {
		qr := QuestionResponse{
			ID:       q.ID,
			Number:   q.Number,
			Text:     q.Text,
			Type:     q.Type,
			Passage:  q.Passage,
			AudioURL: q.AudioURL,
			ImageURL: q.ImageURL,
			MinWords: q.MinWords,
			Part:     q.Part,
			Answers:  make([]AnswerResponse, 0, len(q.Answers)),
		}
		if len(q.ChartData) > 0 {
			qr.ChartData = json.RawMessage(q.ChartData)
		}
		for _, a := range q.Answers {
			qr.Answers = append(qr.Answers, AnswerResponse{ID: a.ID, Option: a.Option, Text: a.Text})
		}
		resp.Questions = append(resp.Questions, qr)
	}
	return resp
}

// HistoryResponse summarizes one session
type HistoryResponse struct {
	ID               int           `json:"id"`
	TestID           int           `json:"testId"`
	TestTitle        string        `json:"testTitle"`
	SkillOrSection   string        `json:"skillOrSection"`
	Difficulty       string        `json:"difficulty"`
	Status           HistoryStatus `json:"status"`
	StartedAt        time.Time     `json:"startedAt"`
	CompletedAt      *time.Time    `json:"completedAt,omitempty"`
	Score            *float64      `json:"score,omitempty"`
	CorrectAnswers   int           `json:"correctAnswers"`
	TotalAnswers     int           `json:"totalAnswers"`
	TimeSpentSeconds int           `json:"timeSpentSeconds"`
}

// NewHistoryResponse joins a session with its test; test may be nil if it was removed
func NewHistoryResponse(h *TestHistory, t *Test) HistoryResponse {
	resp := HistoryResponse{
		ID:               h.ID,
		TestID:           h.TestID,
		Status:           h.Status,
		StartedAt:        h.StartedAt,
		CompletedAt:      h.CompletedAt,
		Score:            h.Score,
		CorrectAnswers:   h.CorrectAnswers,
		TotalAnswers:     h.TotalAnswers,
		TimeSpentSeconds: h.TimeSpentSeconds,
	}
	if t != nil {
		resp.TestTitle = t.Title
		resp.SkillOrSection = t.SkillOrSection
		resp.Difficulty = t.Difficulty
	}
	return resp
}

// QuestionResult is the graded view of one question
type QuestionResult struct {
	QuestionID     int          `json:"questionId"`
	QuestionNumber int          `json:"questionNumber"`
	QuestionText   string       `json:"questionText"`
	QuestionType   QuestionType `json:"questionType"`
	Passage        string       `json:"passage,omitempty"`
	AudioURL       string       `json:"audioUrl,omitempty"`
	ImageURL       string       `json:"imageUrl,omitempty"`
	Part           string       `json:"part,omitempty"`
	UserAnswer     string       `json:"userAnswer"`
	CorrectAnswer  string       `json:"correctAnswer"`
	IsCorrect      bool         `json:"isCorrect"`
	Explanation    string       `json:"explanation"`
	SampleAnswer   string       `json:"sampleAnswer,omitempty"`
	BandScore      *float64     `json:"bandScore,omitempty"`
	Feedback       string       `json:"feedback,omitempty"`

	// TOEIC single-choice detail
	SelectedAnswerID     *int   `json:"selectedAnswerId,omitempty"`
	SelectedAnswerOption string `json:"selectedAnswerOption,omitempty"`
	SelectedAnswerText   string `json:"selectedAnswerText,omitempty"`
	CorrectAnswerID      *int   `json:"correctAnswerId,omitempty"`
	CorrectAnswerOption  string `json:"correctAnswerOption,omitempty"`
	CorrectAnswerText    string `json:"correctAnswerText,omitempty"`
}

// SubmitResult is returned when a session is submitted
type SubmitResult struct {
	HistoryID          int              `json:"historyId"`
	TestID             int              `json:"testId"`
	TestTitle          string           `json:"testTitle,omitempty"`
	SkillOrSection     string           `json:"skillOrSection,omitempty"`
	Difficulty         string           `json:"difficulty,omitempty"`
	Score              float64          `json:"score"`
	CorrectAnswers     int              `json:"correctAnswers"`
	TotalQuestions     int              `json:"totalQuestions"`
	TotalAnswers       int              `json:"totalAnswers"`
	AccuracyPercentage float64          `json:"accuracyPercentage"`
	TimeSpentSeconds   int              `json:"timeSpentSeconds"`
	CompletedAt        time.Time        `json:"completedAt"`
	QuestionResults    []QuestionResult `json:"questionResults"`
}
