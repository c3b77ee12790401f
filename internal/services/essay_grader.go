package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"examprep/internal/models"
	"examprep/internal/observability"
	contextutils "examprep/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

const (
	essayPassBand       = 6.0
	essayPenalty        = 1.0
	essayMinBand        = 1.0
	essayMaxBand        = 9.0
	essayFallbackBase   = 3.0
	essayFallbackCap    = 6.0
	essayWordsPerPoint  = 50.0
	noEssayFeedback     = "No essay submitted."
	essayFallbackNotice = "Unable to perform detailed grading. Basic score based on essay length."
)

// EssayGrade is the outcome of grading one essay
type EssayGrade struct {
	Band      float64
	Feedback  string
	WordCount int
	// Fallback is set when the heuristic replaced the model's grade
	Fallback bool
}

// Passed reports whether the essay counts as a correct answer
func (g EssayGrade) Passed() bool {
	return g.Band >= essayPassBand
}

// essayGradingResponse reads the fields used for scoring; the per-criterion
// bands requested in the prompt are informational only
type essayGradingResponse struct {
	BandScore *float64 `json:"bandScore"`
	Feedback  string   `json:"feedback"`
}

// EssayGrader asks the model for a band and falls back to a length heuristic
type EssayGrader struct {
	gateway LLMGateway
	prompts *PromptBuilder
	logger  *observability.Logger
}

// NewEssayGrader creates an essay grader
func NewEssayGrader(gateway LLMGateway, prompts *PromptBuilder, logger *observability.Logger) *EssayGrader {
	return &EssayGrader{gateway: gateway, prompts: prompts, logger: logger}
}

// Grade never fails: any model or parse error yields the heuristic grade
func (g *EssayGrader) Grade(ctx context.Context, q *models.Question, essay string) EssayGrade {
	ctx, span := observability.TraceAIFunction(ctx, "grade_essay", attribute.Int("question.id", q.ID))
	defer span.End()

	if strings.TrimSpace(essay) == "" {
		observability.SetCallResult(span, "empty_essay")
		return EssayGrade{Band: 0, Feedback: noEssayFeedback}
	}

	words := len(strings.Fields(essay))
	minWords := q.MinWords
	if minWords <= 0 {
		minWords = defaultMinWords
	}
	span.SetAttributes(attribute.Int("essay.words", words), attribute.Int("essay.min_words", minWords))

	grade, err := g.gradeWithModel(ctx, q, essay, words, minWords)
	if err != nil {
		g.logger.Error(ctx, "Essay grading failed, using length heuristic", err, map[string]interface{}{
			"question_id": q.ID,
			"words":       words,
		})
		observability.SetCallResult(span, "fallback")
		return EssayGrade{
			Band:      math.Min(essayFallbackCap, essayFallbackBase+float64(words)/essayWordsPerPoint),
			Feedback:  essayFallbackNotice,
			WordCount: words,
			Fallback:  true,
		}
	}

	if words < minWords {
		grade.Band = math.Max(essayMinBand, grade.Band-essayPenalty)
		grade.Feedback = fmt.Sprintf("Word count: %d/%d (below minimum). %s", words, minWords, grade.Feedback)
	}
	observability.SetCallResult(span, "success")
	span.SetAttributes(attribute.Float64("essay.band", grade.Band))
	return grade
}

func (g *EssayGrader) gradeWithModel(ctx context.Context, q *models.Question, essay string, words, minWords int) (EssayGrade, error) {
	prompt, err := g.prompts.BuildEssayGradingPrompt(q.Text, essay, q.SampleAnswer, words, minWords)
	if err != nil {
		return EssayGrade{}, err
	}
	raw, err := g.gateway.Generate(ctx, prompt)
	if err != nil {
		return EssayGrade{}, err
	}
	payload, err := extractJSONObject(raw)
	if err != nil {
		return EssayGrade{}, err
	}
	var resp essayGradingResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return EssayGrade{}, contextutils.WrapErrorf(contextutils.ErrMalformedAIResponse, "failed to decode essay grade: %w", err)
	}
	if resp.BandScore == nil {
		return EssayGrade{}, contextutils.NewErrorf(contextutils.ErrMalformedAIResponse, "essay grade has no bandScore")
	}
	band := *resp.BandScore
	if band < essayMinBand || band > essayMaxBand {
		return EssayGrade{}, contextutils.NewErrorf(contextutils.ErrMalformedAIResponse, "essay band %.1f out of range", band)
	}
	return EssayGrade{Band: band, Feedback: resp.Feedback, WordCount: words}, nil
}
