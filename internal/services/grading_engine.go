package services

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"examprep/internal/models"
	"examprep/internal/observability"
	contextutils "examprep/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

const displaySeparator = "|||"

// ObjectiveGrade is the result of grading a non-essay answer
type ObjectiveGrade struct {
	IsCorrect bool
	// UserAnswer is the submission in display form
	UserAnswer string
	// Selected is the chosen answer for single-select submissions
	Selected *models.Answer
}

// GradeObjective applies the correctness rule for a non-essay question. The
// first non-empty field of the submission decides the rule: answer text, then
// a set of selected ids, then a single selected id.
func GradeObjective(q *models.Question, sub models.SubmittedAnswer) ObjectiveGrade {
	if sub.AnswerText != nil && strings.TrimSpace(*sub.AnswerText) != "" {
		text := strings.TrimSpace(*sub.AnswerText)
		switch q.Type {
		case models.Matching:
			return ObjectiveGrade{IsCorrect: gradeMatching(q, text), UserAnswer: text}
		case models.Flowchart:
			return ObjectiveGrade{IsCorrect: gradeFlowchart(q, text), UserAnswer: text}
		}
		correct := false
		if ca := q.CorrectAnswers(); len(ca) > 0 {
			correct = strings.EqualFold(text, strings.TrimSpace(ca[0].Text))
		}
		return ObjectiveGrade{IsCorrect: correct, UserAnswer: text}
	}

	if len(sub.SelectedAnswerIDs) > 0 {
		selected := make(map[int]bool, len(sub.SelectedAnswerIDs))
		for _, id := range sub.SelectedAnswerIDs {
			selected[id] = true
		}
		correct := true
		var letters []string
		matched := 0
		for _, a := range q.Answers {
			if selected[a.ID] {
				letters = append(letters, a.Option)
				matched++
			}
			if selected[a.ID] != a.IsCorrect {
				correct = false
			}
		}
		// ids that do not belong to this question break set equality
		if matched != len(selected) {
			correct = false
		}
		sort.Strings(letters)
		return ObjectiveGrade{IsCorrect: correct, UserAnswer: strings.Join(letters, ", ")}
	}

	if sub.SelectedAnswerID != nil {
		for i := range q.Answers {
			if q.Answers[i].ID == *sub.SelectedAnswerID {
				a := &q.Answers[i]
				return ObjectiveGrade{IsCorrect: a.IsCorrect, UserAnswer: a.Option, Selected: a}
			}
		}
	}
	return ObjectiveGrade{}
}

type indexedValue struct {
	idx   int
	value string
}

// splitPairs parses "index:value,index:value". Entries that do not split into
// exactly two parts are ignored; an unparsable index yields -1.
func splitPairs(text string, firstColonOnly bool) []indexedValue {
	var out []indexedValue
	for _, pair := range strings.Split(text, ",") {
		var parts []string
		if firstColonOnly {
			parts = strings.SplitN(pair, ":", 2)
		} else {
			parts = strings.Split(pair, ":")
		}
		if len(parts) != 2 {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			idx = -1
		}
		out = append(out, indexedValue{idx: idx, value: strings.TrimSpace(parts[1])})
	}
	return out
}

// gradeMatching is all-or-nothing: every "item:letter" pair must name the
// option stored on the answer at that item index
func gradeMatching(q *models.Question, text string) bool {
	pairs := splitPairs(text, false)
	if len(pairs) == 0 {
		return false
	}
	for _, p := range pairs {
		if p.idx < 0 || p.idx >= len(q.Answers) || !strings.EqualFold(p.value, q.Answers[p.idx].Option) {
			return false
		}
	}
	return true
}

// gradeFlowchart is all-or-nothing over "blank:word" pairs
func gradeFlowchart(q *models.Question, text string) bool {
	pairs := splitPairs(text, true)
	if len(pairs) == 0 {
		return false
	}
	for _, p := range pairs {
		if p.idx < 0 || p.idx >= len(q.Answers) || !strings.EqualFold(p.value, strings.TrimSpace(q.Answers[p.idx].Text)) {
			return false
		}
	}
	return true
}

// CorrectAnswerDisplay renders the correct answer and explanation for results
func CorrectAnswerDisplay(q *models.Question) (correct, explanation string) {
	switch q.Type {
	case models.Matching, models.Flowchart:
		var answers, explanations []string
		for _, a := range q.Answers {
			answers = append(answers, a.Option+":"+a.Text)
			if a.Explanation != "" {
				explanations = append(explanations, a.Option+":"+a.Text+":"+a.Explanation)
			}
		}
		return strings.Join(answers, displaySeparator), strings.Join(explanations, displaySeparator)
	case models.MultipleChoice:
		var letters, explanations []string
		for _, a := range q.CorrectAnswers() {
			letters = append(letters, a.Option)
			if a.Explanation != "" {
				explanations = append(explanations, a.Explanation)
			}
		}
		return strings.Join(letters, ", "), strings.Join(explanations, "\n")
	}
	if ca := q.CorrectAnswers(); len(ca) > 0 {
		return ca[0].Text, ca[0].Explanation
	}
	return "", ""
}

// Grading is the graded outcome of a submission, ready to persist
type Grading struct {
	CorrectAnswers  int
	Score           float64
	Percentage      float64
	QuestionResults []models.QuestionResult
	UserAnswers     []models.UserAnswer
}

// GradingEngine grades a submission against the session's test
type GradingEngine struct {
	essays *EssayGrader
	logger *observability.Logger
}

// NewGradingEngine creates a grading engine
func NewGradingEngine(essays *EssayGrader, logger *observability.Logger) *GradingEngine {
	return &GradingEngine{essays: essays, logger: logger}
}

// Grade scores answers for an in-progress session. Questions without a
// submitted answer count as incorrect.
func (e *GradingEngine) Grade(ctx context.Context, history *models.TestHistory, test *models.Test, answers []models.SubmittedAnswer) (result0 *Grading, err error) {
	ctx, span := observability.TraceExamFunction(ctx, "grade",
		observability.AttributeHistoryID(history.ID),
		observability.AttributeTestID(test.ID),
		attribute.Int("answers.count", len(answers)),
	)
	defer observability.FinishSpan(span, &err)

	if history.Status != models.StatusInProgress {
		return nil, contextutils.ErrInvalidSession
	}

	byID := make(map[int]*models.Question, len(test.Questions))
	for i := range test.Questions {
		byID[test.Questions[i].ID] = &test.Questions[i]
	}
	seen := make(map[int]bool, len(answers))
	for _, sub := range answers {
		if _, ok := byID[sub.QuestionID]; !ok {
			return nil, contextutils.NewErrorf(contextutils.ErrQuestionNotFound, "Question not found: %d", sub.QuestionID)
		}
		if seen[sub.QuestionID] {
			return nil, contextutils.NewErrorf(contextutils.ErrInvalidInput, "duplicate answer for question %d", sub.QuestionID)
		}
		seen[sub.QuestionID] = true
	}

	g := &Grading{}
	var essayBands []float64
	for _, sub := range answers {
		q := byID[sub.QuestionID]
		result := models.QuestionResult{
			QuestionID:     q.ID,
			QuestionNumber: q.Number,
			QuestionText:   q.Text,
			QuestionType:   q.Type,
			Passage:        q.Passage,
			AudioURL:       q.AudioURL,
			ImageURL:       q.ImageURL,
			Part:           q.Part,
		}
		ua := models.UserAnswer{QuestionID: q.ID}

		if q.Type == models.Essay {
			essay := ""
			if sub.AnswerText != nil {
				essay = *sub.AnswerText
			}
			grade := e.essays.Grade(ctx, q, essay)
			essayBands = append(essayBands, grade.Band)
			band := grade.Band
			result.UserAnswer = essay
			result.CorrectAnswer = q.SampleAnswer
			result.SampleAnswer = q.SampleAnswer
			result.IsCorrect = grade.Passed()
			result.Explanation = grade.Feedback
			result.Feedback = grade.Feedback
			result.BandScore = &band
			ua.UserAnswerText = essay
			ua.IsCorrect = grade.Passed()
		} else {
			og := GradeObjective(q, sub)
			result.UserAnswer = og.UserAnswer
			result.IsCorrect = og.IsCorrect
			result.CorrectAnswer, result.Explanation = CorrectAnswerDisplay(q)
			if og.Selected != nil {
				id := og.Selected.ID
				result.SelectedAnswerID = &id
				result.SelectedAnswerOption = og.Selected.Option
				result.SelectedAnswerText = og.Selected.Text
				ua.SelectedAnswerID = &id
			}
			if ca := q.CorrectAnswers(); len(ca) > 0 {
				id := ca[0].ID
				result.CorrectAnswerID = &id
				result.CorrectAnswerOption = ca[0].Option
				result.CorrectAnswerText = ca[0].Text
			}
			if sub.AnswerText != nil {
				ua.UserAnswerText = *sub.AnswerText
			}
			ua.IsCorrect = og.IsCorrect
		}

		if result.IsCorrect {
			g.CorrectAnswers++
		}
		g.QuestionResults = append(g.QuestionResults, result)
		g.UserAnswers = append(g.UserAnswers, ua)
	}

	total := history.TotalAnswers
	if total <= 0 {
		total = test.TotalQuestions
	}
	g.Percentage = Percentage(g.CorrectAnswers, total)
	switch {
	case test.ExamKind == models.ExamTOEIC:
		g.Score = TOEICScore(g.Percentage, total)
	case test.SkillOrSection == models.SkillWriting:
		g.Score = IELTSWritingScore(essayBands, total)
	default:
		g.Score = IELTSBandScore(g.Percentage)
	}

	span.SetAttributes(attribute.Int("grading.correct", g.CorrectAnswers), attribute.Float64("grading.score", g.Score))
	e.logger.Debug(ctx, "Graded submission", map[string]interface{}{
		"history_id": history.ID,
		"correct":    g.CorrectAnswers,
		"total":      total,
		"score":      g.Score,
	})
	return g, nil
}
