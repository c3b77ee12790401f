package contextutils

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateStruct(t *testing.T) {
	type req struct {
		Level      string `validate:"required"`
		Difficulty string `validate:"required,oneof=Easy Medium Hard"`
	}

	assert.NoError(t, ValidateStruct(req{Level: "Academic", Difficulty: "Easy"}))

	err := ValidateStruct(req{Difficulty: "Extreme"})
	assert.True(t, errors.Is(err, ErrValidationFailed))
	assert.Contains(t, err.Error(), "Level failed on 'required'")
	assert.Contains(t, err.Error(), "Difficulty failed on 'oneof'")
}
