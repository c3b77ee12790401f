package services

import (
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// GeneratedTestSchema is the minimum shape accepted from the model. Optional
// fields are left loose and normalized by the materializer.
const GeneratedTestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["title", "questions"],
  "properties": {
    "title": {"type": "string", "minLength": 1},
    "durationMinutes": {"type": ["integer", "number", "string", "null"]},
    "questions": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["questionText"],
        "properties": {
          "questionNumber": {"type": ["integer", "number", "string", "null"]},
          "questionText": {"type": "string", "minLength": 1},
          "questionType": {"type": ["string", "null"]},
          "passage": {"type": ["string", "null"]},
          "part": {"type": ["string", "null"]},
          "sampleAnswer": {"type": ["string", "null"]},
          "chartData": {"type": ["object", "null"]},
          "answers": {
            "type": ["array", "null"],
            "items": {
              "type": "object",
              "properties": {
                "answerOption": {"type": ["string", "number", "null"]},
                "answerText": {"type": ["string", "number", "null"]},
                "explanation": {"type": ["string", "null"]}
              }
            }
          }
        }
      }
    }
  }
}`

var (
	generatedTestSchemaOnce sync.Once
	generatedTestSchema     *gojsonschema.Schema
	generatedTestSchemaErr  error
)

// ValidateGeneratedTestSchema returns one message per schema violation; empty means valid
func ValidateGeneratedTestSchema(payload []byte) []string {
	generatedTestSchemaOnce.Do(func() {
		generatedTestSchema, generatedTestSchemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(GeneratedTestSchema))
	})
	if generatedTestSchemaErr != nil {
		return []string{generatedTestSchemaErr.Error()}
	}

	result, err := generatedTestSchema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return []string{err.Error()}
	}
	if result.Valid() {
		return nil
	}
	errs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		errs = append(errs, desc.String())
	}
	return errs
}
