package services

import (
	"fmt"
	"strings"
	"sync"

	"examprep/internal/models"
	contextutils "examprep/internal/utils"
)

// RandomSource is the subset of *rand.Rand the builder and repair pass draw from
type RandomSource interface {
	Intn(n int) int
	Float64() float64
}

// lockedSource serializes access to a RandomSource shared between requests
type lockedSource struct {
	mu  sync.Mutex
	src RandomSource
}

func (l *lockedSource) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.src.Intn(n)
}

func (l *lockedSource) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.src.Float64()
}

// NewLockedSource makes src safe for concurrent use
func NewLockedSource(src RandomSource) RandomSource {
	return &lockedSource{src: src}
}

// WeightedChoice returns an index into weights with probability proportional
// to its weight. Non-positive weights are never chosen; if none is positive it returns 0.
func WeightedChoice(r RandomSource, weights []float64) int {
	total := 0.0
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total <= 0 {
		return 0
	}
	x := r.Float64() * total
	last := 0
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		if x < w {
			return i
		}
		x -= w
		last = i
	}
	return last
}

// MatchingArchetype is one of the Listening Section 3 matching formats
type MatchingArchetype struct {
	Name    string
	Prompt  string
	Items   []string
	Options []string
}

// matchingArchetypes are chosen uniformly for Section 3
var matchingArchetypes = []MatchingArchetype{
	{
		Name:    "People - Opinions",
		Prompt:  "What opinion does each person have about",
		Items:   []string{"Sarah", "Tom", "Lisa", "Mark"},
		Options: []string{"A. It's too expensive", "B. It saves time", "C. It's more reliable", "D. It needs improvement"},
	},
	{
		Name:    "People - Problems",
		Prompt:  "What problem does each person mention",
		Items:   []string{"Student 1", "Student 2", "Student 3", "Student 4"},
		Options: []string{"A. Lack of time", "B. Limited resources", "C. Technical difficulties", "D. Communication issues"},
	},
	{
		Name:    "Places - Features",
		Prompt:  "What feature is mentioned for each place",
		Items:   []string{"Library", "Sports Center", "Cafeteria", "Student Union"},
		Options: []string{"A. Extended opening hours", "B. Free WiFi", "C. Quiet study areas", "D. Group booking available"},
	},
	{
		Name:    "Courses - Characteristics",
		Prompt:  "What is described about each course",
		Items:   []string{"Psychology 101", "History 202", "Science 303", "Art 404"},
		Options: []string{"A. Requires fieldwork", "B. Has online component", "C. Includes group project", "D. Offers internship"},
	},
	{
		Name:    "Days - Activities",
		Prompt:  "What activity is planned for each day",
		Items:   []string{"Monday", "Tuesday", "Wednesday", "Thursday"},
		Options: []string{"A. Team meeting", "B. Lab session", "C. Guest lecture", "D. Field trip"},
	},
	{
		Name:    "Statements - Speakers",
		Prompt:  "Who made each statement",
		Items:   []string{"Dr. Brown", "Prof. Smith", "Dr. Lee", "Prof. Wilson"},
		Options: []string{"A. More funding is needed", "B. Research shows progress", "C. Students should participate", "D. The deadline is flexible"},
	},
}

// difficultyProfile is the question count and band target for a difficulty
type difficultyProfile struct {
	count int
	band  string
}

var ieltsDifficulty = map[string]difficultyProfile{
	models.DifficultyEasy:   {count: 10, band: "5.5-6.5"},
	models.DifficultyMedium: {count: 15, band: "6.5-7.5"},
	models.DifficultyHard:   {count: 20, band: "7.5-8.5"},
}

// GenerationRequest is a validated generate call
type GenerationRequest struct {
	Exam           models.ExamKind
	SkillOrSection string
	Level          string
	Difficulty     string
}

// Prompt is a rendered generation prompt plus the variant that was picked
type Prompt struct {
	Text     string
	Template string
	// Variant names the chosen section or task, e.g. "Section 3" or "Task 1"
	Variant string
}

// PromptBuilder renders generation and grading prompts. Variant choices
// draw from the injected random source.
type PromptBuilder struct {
	templates *PromptTemplateManager
	rng       RandomSource
}

// NewPromptBuilder creates a builder. rng must be safe for concurrent use if the builder is shared.
func NewPromptBuilder(templates *PromptTemplateManager, rng RandomSource) *PromptBuilder {
	return &PromptBuilder{templates: templates, rng: rng}
}

// IsTOEICListening reports whether a TOEIC section is a listening section
func IsTOEICListening(section string) bool {
	if strings.Contains(section, "Listening") {
		return true
	}
	for _, p := range []string{"Part 1", "Part 2", "Part 3", "Part 4"} {
		if strings.Contains(section, p) {
			return true
		}
	}
	return false
}

// BuildGenerationPrompt picks the template for req and renders it
func (b *PromptBuilder) BuildGenerationPrompt(req GenerationRequest) (result0 Prompt, err error) {
	switch req.Exam {
	case models.ExamIELTS:
		return b.buildIELTS(req)
	case models.ExamTOEIC:
		return b.buildTOEIC(req)
	}
	return Prompt{}, contextutils.NewErrorf(contextutils.ErrInvalidInput, "unknown exam %q", req.Exam)
}

func (b *PromptBuilder) buildIELTS(req GenerationRequest) (Prompt, error) {
	profile, ok := ieltsDifficulty[req.Difficulty]
	if !ok {
		return Prompt{}, contextutils.NewErrorf(contextutils.ErrInvalidInput, "unknown difficulty %q", req.Difficulty)
	}
	level := req.Level
	if level == "" {
		level = "Academic"
	}
	data := PromptTemplateData{
		Level:         level,
		Skill:         req.SkillOrSection,
		Difficulty:    req.Difficulty,
		QuestionCount: profile.count,
		BandRange:     profile.band,
	}

	var name, variant string
	switch req.SkillOrSection {
	case models.SkillListening:
		data.DurationMinutes = 30
		switch req.Difficulty {
		case models.DifficultyEasy:
			if WeightedChoice(b.rng, []float64{0.5, 0.5}) == 0 {
				name, variant = IELTSListeningSection1Template, "Section 1"
			} else {
				name, variant = IELTSListeningSection2Template, "Section 2"
			}
		case models.DifficultyMedium:
			archetype := matchingArchetypes[b.rng.Intn(len(matchingArchetypes))]
			data.Archetype = &archetype
			data.QuestionCount = 1
			name, variant = IELTSListeningSection3Template, "Section 3"
		default:
			data.QuestionCount = 1
			name, variant = IELTSListeningSection4Template, "Section 4"
		}
		data.Title = fmt.Sprintf("IELTS Listening %s - %s - %s", variant, level, req.Difficulty)
	case models.SkillWriting:
		data.QuestionCount = 1
		if WeightedChoice(b.rng, []float64{0.5, 0.5}) == 0 {
			name, variant = IELTSWritingTask1Template, "Task 1"
			data.DurationMinutes = 20
		} else {
			name, variant = IELTSWritingTask2Template, "Task 2"
			data.DurationMinutes = 30
		}
		data.Title = fmt.Sprintf("IELTS Writing %s - %s - %s", variant, level, req.Difficulty)
	default:
		name = IELTSStandardTemplate
		data.DurationMinutes = 60
		data.Title = fmt.Sprintf("IELTS %s %s Test - %s", level, req.SkillOrSection, req.Difficulty)
	}

	return b.render(name, variant, data)
}

func (b *PromptBuilder) buildTOEIC(req GenerationRequest) (Prompt, error) {
	data := PromptTemplateData{
		Section:         req.SkillOrSection,
		Difficulty:      req.Difficulty,
		DurationMinutes: 25,
	}
	name := TOEICReadingTemplate
	variant := "Reading"
	data.QuestionCount = 15
	if IsTOEICListening(req.SkillOrSection) {
		name, variant = TOEICListeningTemplate, "Listening"
		data.QuestionCount = 20
	}
	data.Title = fmt.Sprintf("TOEIC %s Test - %s", variant, req.Difficulty)
	return b.render(name, variant, data)
}

func (b *PromptBuilder) render(name, variant string, data PromptTemplateData) (Prompt, error) {
	example, err := b.templates.LoadExample(name)
	if err != nil {
		return Prompt{}, err
	}
	data.Example = example
	text, err := b.templates.RenderTemplate(name, data)
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{Text: text, Template: name, Variant: variant}, nil
}

// BuildEssayGradingPrompt renders the examiner prompt for one essay
func (b *PromptBuilder) BuildEssayGradingPrompt(topic, essay, sampleAnswer string, wordCount, minWords int) (result0 string, err error) {
	return b.templates.RenderTemplate(EssayGradingTemplate, PromptTemplateData{
		Topic:        topic,
		Essay:        essay,
		SampleAnswer: sampleAnswer,
		WordCount:    wordCount,
		MinWords:     minWords,
	})
}
