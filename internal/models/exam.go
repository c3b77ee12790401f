// Package models defines the exam aggregates persisted by the service and the
// request/response shapes exchanged over HTTP.
package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// ExamKind identifies which exam family a test belongs to
type ExamKind string

const (
	// ExamIELTS is the IELTS exam family, scored in bands
	ExamIELTS ExamKind = "ielts"
	// ExamTOEIC is the TOEIC exam family, scored on the 10-990 scale
	ExamTOEIC ExamKind = "toeic"
)

// ParseExamKind normalizes a path segment such as "IELTS" to an ExamKind
func ParseExamKind(s string) (ExamKind, bool) {
	switch ExamKind(strings.ToLower(strings.TrimSpace(s))) {
	case ExamIELTS:
		return ExamIELTS, true
	case ExamTOEIC:
		return ExamTOEIC, true
	}
	return "", false
}

// Difficulty levels accepted by the generator
const (
	DifficultyEasy   = "Easy"
	DifficultyMedium = "Medium"
	DifficultyHard   = "Hard"
)

// NormalizeDifficulty returns the canonical spelling of a difficulty, or false if unknown
func NormalizeDifficulty(s string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "easy":
		return DifficultyEasy, true
	case "medium":
		return DifficultyMedium, true
	case "hard":
		return DifficultyHard, true
	}
	return "", false
}

// IELTS skills
const (
	SkillReading   = "Reading"
	SkillListening = "Listening"
	SkillWriting   = "Writing"
	SkillSpeaking  = "Speaking"
)

// QuestionType enumerates the question formats the generator produces
type QuestionType string

const (
	MultipleChoice               QuestionType = "multiple_choice"
	FormCompletion               QuestionType = "form_completion"
	SentenceCompletion           QuestionType = "sentence_completion"
	Matching                     QuestionType = "matching"
	Flowchart                    QuestionType = "flowchart"
	Essay                        QuestionType = "essay"
	IncompleteSentence           QuestionType = "incomplete_sentence"
	TextCompletion               QuestionType = "text_completion"
	ReadingComprehension         QuestionType = "reading_comprehension"
	Photograph                   QuestionType = "photograph"
	QuestionTypeQuestionResponse QuestionType = "question_response"
	Conversation                 QuestionType = "conversation"
	Talk                         QuestionType = "talk"
)

// HistoryStatus is the lifecycle state of a test session
type HistoryStatus string

const (
	StatusInProgress HistoryStatus = "in_progress"
	StatusCompleted  HistoryStatus = "completed"
	StatusAbandoned  HistoryStatus = "abandoned"
)

// Test is a generated exam. It owns its questions.
type Test struct {
	ID              int        `gorm:"primaryKey" json:"id"`
	ExamKind        ExamKind   `gorm:"size:10;not null;index" json:"examKind"`
	SkillOrSection  string     `gorm:"size:50;not null" json:"skillOrSection"`
	Level           string     `gorm:"size:50" json:"level"`
	Difficulty      string     `gorm:"size:20;not null" json:"difficulty"`
	Title           string     `gorm:"not null" json:"title"`
	DurationMinutes int        `json:"durationMinutes"`
	TotalQuestions  int        `json:"totalQuestions"`
	Part            string     `gorm:"size:50" json:"part,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	Questions       []Question `gorm:"foreignKey:TestID;constraint:OnDelete:CASCADE" json:"questions"`
}

// Question belongs to a test by TestID and owns its answers.
// Empty strings and zero MinWords mean the optional field is absent.
type Question struct {
	ID           int            `gorm:"primaryKey" json:"id"`
	TestID       int            `gorm:"not null;index" json:"testId"`
	Number       int            `gorm:"column:question_number;not null" json:"questionNumber"`
	Text         string         `gorm:"column:question_text;type:text;not null" json:"questionText"`
	Type         QuestionType   `gorm:"column:question_type;size:50" json:"questionType"`
	Passage      string         `gorm:"type:text" json:"passage,omitempty"`
	AudioURL     string         `gorm:"type:text" json:"audioUrl,omitempty"`
	ImageURL     string         `gorm:"type:text" json:"imageUrl,omitempty"`
	SampleAnswer string         `gorm:"type:text" json:"sampleAnswer,omitempty"`
	MinWords     int            `json:"minWords,omitempty"`
	ChartData    datatypes.JSON `json:"chartData,omitempty"`
	Part         string         `gorm:"size:20" json:"part,omitempty"`
	Answers      []Answer       `gorm:"foreignKey:QuestionID;constraint:OnDelete:CASCADE" json:"answers"`
}

// Answer is one option or accepted value of a question
type Answer struct {
	ID          int    `gorm:"primaryKey" json:"id"`
	QuestionID  int    `gorm:"not null;index" json:"questionId"`
	Option      string `gorm:"column:answer_option;size:10" json:"answerOption"`
	Text        string `gorm:"column:answer_text;type:text" json:"answerText"`
	IsCorrect   bool   `gorm:"not null;default:false" json:"isCorrect"`
	Explanation string `gorm:"type:text" json:"explanation,omitempty"`
}

// CorrectAnswers returns the answers flagged correct, in stored order
func (q *Question) CorrectAnswers() []Answer {
	var out []Answer
	for _, a := range q.Answers {
		if a.IsCorrect {
			out = append(out, a)
		}
	}
	return out
}

// TestHistory is one user's attempt at a test. It owns the submitted answers
// and references the test by id only.
type TestHistory struct {
	ID               int           `gorm:"primaryKey" json:"id"`
	UserID           int           `gorm:"not null;index" json:"userId"`
	TestID           int           `gorm:"not null;index" json:"testId"`
	ExamKind         ExamKind      `gorm:"size:10;not null" json:"examKind"`
	Status           HistoryStatus `gorm:"size:20;not null;index" json:"status"`
	StartedAt        time.Time     `gorm:"not null" json:"startedAt"`
	CompletedAt      *time.Time    `json:"completedAt,omitempty"`
	CorrectAnswers   int           `json:"correctAnswers"`
	TotalAnswers     int           `json:"totalAnswers"`
	Score            *float64      `json:"score,omitempty"`
	TimeSpentSeconds int           `json:"timeSpentSeconds"`
	UserAnswers      []UserAnswer  `gorm:"foreignKey:HistoryID;constraint:OnDelete:CASCADE" json:"-"`
}

// UserAnswer records what was submitted for one question. Written once, never updated.
type UserAnswer struct {
	ID               int    `gorm:"primaryKey" json:"id"`
	HistoryID        int    `gorm:"not null;index" json:"historyId"`
	QuestionID       int    `gorm:"not null" json:"questionId"`
	SelectedAnswerID *int   `json:"selectedAnswerId,omitempty"`
	UserAnswerText   string `gorm:"type:text" json:"userAnswerText,omitempty"`
	IsCorrect        bool   `gorm:"not null;default:false" json:"isCorrect"`
}

// TableName pins the table name so the SQL migrations and gorm agree
func (TestHistory) TableName() string { return "test_histories" }
