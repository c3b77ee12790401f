package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"examprep/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGateway replays scripted completions in order
type fakeGateway struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	prompts   []string
}

func (f *fakeGateway) Generate(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	i := len(f.prompts) - 1
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	if err != nil {
		return "", err
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	if len(f.responses) > 0 {
		return f.responses[len(f.responses)-1], nil
	}
	return "", errors.New("no scripted response")
}

func (f *fakeGateway) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("word ", n))
}

func newTestEssayGrader(t *testing.T, gw LLMGateway) *EssayGrader {
	return NewEssayGrader(gw, newTestPromptBuilder(t, &fixedSource{}), testLogger())
}

func TestEssayGrader_Grade(t *testing.T) {
	q := &models.Question{ID: 1, Text: "Discuss both views", MinWords: 150, SampleAnswer: "Model essay"}

	t.Run("short essay loses a band and gets a warning", func(t *testing.T) {
		gw := &fakeGateway{responses: []string{"```json\n{\"bandScore\": 7.0, \"feedback\": \"Good range.\"}\n```"}}
		g := newTestEssayGrader(t, gw).Grade(context.Background(), q, words(80))
		assert.Equal(t, 6.0, g.Band)
		assert.Equal(t, "Word count: 80/150 (below minimum). Good range.", g.Feedback)
		assert.True(t, g.Passed())
		assert.False(t, g.Fallback)
		require.Len(t, gw.prompts, 1)
		assert.Contains(t, gw.prompts[0], "Model essay")
		assert.Contains(t, gw.prompts[0], "WORD COUNT: 80 (minimum required: 150)")
	})

	t.Run("penalty floors at 1.0", func(t *testing.T) {
		gw := &fakeGateway{responses: []string{`{"bandScore": 1.5, "feedback": "Weak."}`}}
		g := newTestEssayGrader(t, gw).Grade(context.Background(), q, words(10))
		assert.Equal(t, 1.0, g.Band)
		assert.False(t, g.Passed())
	})

	t.Run("long enough essay keeps its band", func(t *testing.T) {
		gw := &fakeGateway{responses: []string{`{"bandScore": 5.5, "feedback": "Fine."}`}}
		g := newTestEssayGrader(t, gw).Grade(context.Background(), q, words(200))
		assert.Equal(t, 5.5, g.Band)
		assert.Equal(t, "Fine.", g.Feedback)
		assert.False(t, g.Passed())
	})

	t.Run("empty essay scores zero without calling the model", func(t *testing.T) {
		gw := &fakeGateway{}
		g := newTestEssayGrader(t, gw).Grade(context.Background(), q, "   ")
		assert.Equal(t, 0.0, g.Band)
		assert.Equal(t, "No essay submitted.", g.Feedback)
		assert.Equal(t, 0, gw.calls())
	})

	t.Run("gateway failure falls back to length heuristic", func(t *testing.T) {
		gw := &fakeGateway{errs: []error{errors.New("boom")}}
		g := newTestEssayGrader(t, gw).Grade(context.Background(), q, words(100))
		assert.Equal(t, 5.0, g.Band)
		assert.True(t, g.Fallback)
		assert.Equal(t, "Unable to perform detailed grading. Basic score based on essay length.", g.Feedback)
	})

	t.Run("heuristic is capped at 6.0", func(t *testing.T) {
		gw := &fakeGateway{responses: []string{"not json at all"}}
		g := newTestEssayGrader(t, gw).Grade(context.Background(), q, words(400))
		assert.Equal(t, 6.0, g.Band)
		assert.True(t, g.Fallback)
	})

	t.Run("missing or out of range band falls back", func(t *testing.T) {
		for _, resp := range []string{`{"feedback":"x"}`, `{"bandScore": 12, "feedback":"x"}`, `{"bandScore": 0, "feedback":"x"}`, `{"bandScore": 0.5, "feedback":"x"}`} {
			gw := &fakeGateway{responses: []string{resp}}
			g := newTestEssayGrader(t, gw).Grade(context.Background(), q, words(50))
			assert.True(t, g.Fallback, resp)
			assert.Equal(t, 4.0, g.Band)
		}
	})
}
