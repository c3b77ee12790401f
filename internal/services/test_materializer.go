package services

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"examprep/internal/models"
	"examprep/internal/observability"
	contextutils "examprep/internal/utils"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"
)

const (
	// Repair runs when more than this share of multiple-choice questions is single-answer
	singleAnswerRepairThreshold = 0.40
	// and converts until at most this share is left
	singleAnswerTarget = 0.35

	defaultMinWords = 150

	promotedExplanation = "This option is also a correct answer based on the information provided."
)

// TestMaterializer turns raw model output into an unsaved Test aggregate
type TestMaterializer struct {
	rng    RandomSource
	media  *MediaEnricher
	logger *observability.Logger
}

// NewTestMaterializer creates a materializer. media may be nil to skip enrichment.
func NewTestMaterializer(rng RandomSource, media *MediaEnricher, logger *observability.Logger) *TestMaterializer {
	return &TestMaterializer{rng: rng, media: media, logger: logger}
}

// Materialize parses raw, validates it, repairs the answer distribution and attaches media
func (m *TestMaterializer) Materialize(ctx context.Context, raw string, req GenerationRequest, prompt Prompt) (result0 *models.Test, err error) {
	ctx, span := observability.TraceExamFunction(ctx, "materialize",
		observability.AttributeExam(string(req.Exam)),
		observability.AttributeSkill(req.SkillOrSection),
		attribute.Int("raw.length", len(raw)),
	)
	defer observability.FinishSpan(span, &err)

	payload, err := extractJSONObject(raw)
	if err != nil {
		return nil, err
	}
	if violations := ValidateGeneratedTestSchema(payload); len(violations) > 0 {
		span.SetAttributes(attribute.StringSlice("schema.violations", violations))
		return nil, contextutils.NewErrorf(contextutils.ErrMalformedAIResponse, "AI response does not match the test schema: %s", strings.Join(violations, "; "))
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrMalformedAIResponse, "failed to decode AI response: %w", err)
	}

	test := &models.Test{
		ExamKind:        req.Exam,
		SkillOrSection:  req.SkillOrSection,
		Level:           req.Level,
		Difficulty:      req.Difficulty,
		Title:           coerceString(doc["title"]),
		DurationMinutes: coerceInt(doc["durationMinutes"]),
		Part:            prompt.Variant,
	}
	writing := req.Exam == models.ExamIELTS && req.SkillOrSection == models.SkillWriting

	rawQuestions, _ := doc["questions"].([]interface{})
	for _, rq := range rawQuestions {
		obj, ok := rq.(map[string]interface{})
		if !ok {
			continue
		}
		q, keep := m.buildQuestion(ctx, obj, writing)
		if !keep {
			continue
		}
		q.Number = len(test.Questions) + 1
		test.Questions = append(test.Questions, q)
	}
	if len(test.Questions) == 0 {
		return nil, contextutils.NewErrorf(contextutils.ErrMalformedAIResponse, "AI response contained no usable questions")
	}
	test.TotalQuestions = len(test.Questions)

	converted := RepairAnswerDistribution(m.rng, test.Questions)
	span.SetAttributes(attribute.Int("questions.count", test.TotalQuestions), attribute.Int("repair.converted", converted))
	if converted > 0 {
		m.logger.Info(ctx, "Converted single-answer questions to multi-select", map[string]interface{}{
			"converted": converted,
			"total":     test.TotalQuestions,
		})
	}

	if m.media != nil {
		m.media.Enrich(ctx, test)
	}
	return test, nil
}

// buildQuestion maps one question object; false means it is unusable and dropped
func (m *TestMaterializer) buildQuestion(ctx context.Context, obj map[string]interface{}, writing bool) (models.Question, bool) {
	q := models.Question{
		Text:         strings.TrimSpace(coerceString(obj["questionText"])),
		Type:         models.QuestionType(strings.ToLower(strings.TrimSpace(coerceString(obj["questionType"])))),
		Passage:      coerceString(obj["passage"]),
		Part:         coerceString(obj["part"]),
		SampleAnswer: coerceString(obj["sampleAnswer"]),
		MinWords:     coerceInt(obj["minWords"]),
	}
	if q.Type == "" {
		q.Type = models.MultipleChoice
	}
	if chart, ok := obj["chartData"].(map[string]interface{}); ok {
		if b, err := json.Marshal(chart); err == nil {
			q.ChartData = datatypes.JSON(b)
		}
	}
	if (writing || q.Type == models.Essay) && q.MinWords <= 0 {
		q.MinWords = defaultMinWords
	}

	rawAnswers, _ := obj["answers"].([]interface{})
	for _, ra := range rawAnswers {
		a, ok := ra.(map[string]interface{})
		if !ok {
			continue
		}
		option := strings.TrimSpace(coerceString(a["answerOption"]))
		if option == "" {
			continue
		}
		q.Answers = append(q.Answers, models.Answer{
			Option:      option,
			Text:        coerceString(a["answerText"]),
			IsCorrect:   coerceBool(a["isCorrect"]),
			Explanation: coerceString(a["explanation"]),
		})
	}

	if q.Type == models.MultipleChoice && len(q.CorrectAnswers()) == 0 {
		m.logger.Warn(ctx, "Dropping multiple-choice question without a correct answer", map[string]interface{}{
			"question_text": truncate(q.Text, 80),
			"answers":       len(q.Answers),
		})
		return q, false
	}
	return q, true
}

// RepairAnswerDistribution promotes distractors on single-answer multiple-choice
// questions when they make up more than 40% of them, until at most 35% remain.
// It returns how many questions were converted.
func RepairAnswerDistribution(rng RandomSource, questions []models.Question) int {
	var mcq, single []int
	for i := range questions {
		if questions[i].Type != models.MultipleChoice {
			continue
		}
		mcq = append(mcq, i)
		if len(questions[i].CorrectAnswers()) == 1 {
			single = append(single, i)
		}
	}
	if len(mcq) == 0 || float64(len(single))/float64(len(mcq)) <= singleAnswerRepairThreshold {
		return 0
	}

	need := len(single) - int(math.Floor(float64(len(mcq))*singleAnswerTarget))
	shuffle(rng, single)

	converted := 0
	for _, qi := range single {
		if converted >= need {
			break
		}
		q := &questions[qi]
		var incorrect []int
		for ai := range q.Answers {
			if !q.Answers[ai].IsCorrect {
				incorrect = append(incorrect, ai)
			}
		}
		if len(incorrect) == 0 {
			continue
		}
		shuffle(rng, incorrect)
		promote := 1 + rng.Intn(2)
		for j := 0; j < promote && j < len(incorrect); j++ {
			a := &q.Answers[incorrect[j]]
			a.IsCorrect = true
			if strings.TrimSpace(a.Explanation) == "" {
				a.Explanation = promotedExplanation
			}
		}
		converted++
	}
	return converted
}

// shuffle is a Fisher-Yates shuffle over the injected source
func shuffle(rng RandomSource, s []int) {
	for i := len(s) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		s[i], s[j] = s[j], s[i]
	}
}

// extractJSONObject strips markdown fences and bounds the payload by the first
// '{' and the last '}'
func extractJSONObject(raw string) ([]byte, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil, contextutils.NewErrorf(contextutils.ErrMalformedAIResponse, "no JSON object found in AI response")
	}
	return []byte(s[start : end+1]), nil
}

// coerceBool accepts a JSON boolean, the strings "true", "yes" and "1"
// (trimmed, any case), or a number equal to 1. Anything else is false.
func coerceBool(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "1":
			return true
		}
	case float64:
		return t == 1
	case json.Number:
		f, err := t.Float64()
		return err == nil && f == 1
	case int:
		return t == 1
	}
	return false
}

// coerceInt reads a JSON number or numeric string; anything else is 0
func coerceInt(v interface{}) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return int(f)
		}
	}
	return 0
}

// coerceString reads a JSON string or number; null and other types give ""
func coerceString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return ""
}
