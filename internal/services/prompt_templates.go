package services

import (
	"embed"
	"fmt"
	"strings"
	"text/template"

	contextutils "examprep/internal/utils"
)

//go:embed templates/*.tmpl
var promptTemplatesFS embed.FS

//go:embed templates/examples/*.json
var promptExamplesFS embed.FS

// Template names as constants
const (
	IELTSStandardTemplate          = "ielts_standard.tmpl"
	IELTSListeningSection1Template = "ielts_listening_section1.tmpl"
	IELTSListeningSection2Template = "ielts_listening_section2.tmpl"
	IELTSListeningSection3Template = "ielts_listening_section3.tmpl"
	IELTSListeningSection4Template = "ielts_listening_section4.tmpl"
	IELTSWritingTask1Template      = "ielts_writing_task1.tmpl"
	IELTSWritingTask2Template      = "ielts_writing_task2.tmpl"
	TOEICListeningTemplate         = "toeic_listening.tmpl"
	TOEICReadingTemplate           = "toeic_reading.tmpl"
	EssayGradingTemplate           = "essay_grading.tmpl"
)

// PromptTemplateData holds data for rendering prompt templates
type PromptTemplateData struct {
	Level           string
	Skill           string
	Section         string
	Difficulty      string
	QuestionCount   int
	BandRange       string
	Title           string
	DurationMinutes int
	Archetype       *MatchingArchetype
	Example         string

	// Essay grading
	Topic        string
	Essay        string
	SampleAnswer string
	WordCount    int
	MinWords     int
}

// PromptTemplateManager renders the embedded prompt templates
type PromptTemplateManager struct {
	templates *template.Template
}

// NewPromptTemplateManager parses every embedded template
func NewPromptTemplateManager() (result0 *PromptTemplateManager, err error) {
	templates, err := template.New("").
		Funcs(template.FuncMap{"join": strings.Join}).
		ParseFS(promptTemplatesFS, "templates/*.tmpl")
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to parse prompt templates: %w", err)
	}
	return &PromptTemplateManager{templates: templates}, nil
}

// RenderTemplate renders a template with the given data
func (tm *PromptTemplateManager) RenderTemplate(templateName string, data PromptTemplateData) (result0 string, err error) {
	var buf strings.Builder
	if err := tm.templates.ExecuteTemplate(&buf, templateName, data); err != nil {
		return "", contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to render %s: %w", templateName, err)
	}
	return buf.String(), nil
}

// LoadExample loads the worked JSON example paired with a template
func (tm *PromptTemplateManager) LoadExample(templateName string) (result0 string, err error) {
	examplePath := fmt.Sprintf("templates/examples/%s_example.json", strings.TrimSuffix(templateName, ".tmpl"))
	content, err := promptExamplesFS.ReadFile(examplePath)
	if err != nil {
		return "", contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to load example for %s: %w", templateName, err)
	}
	return strings.TrimSpace(string(content)), nil
}
