package validator

import (
	"testing"

	govalidator "github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type typedRequest struct {
	QuestionType string `json:"question_type" validate:"required,question_type"`
	Count        int    `json:"count" validate:"required,min=1,max=50"`
}

func TestQuestionTypeValidation(t *testing.T) {
	v := govalidator.New()
	register(v)

	for _, qt := range []string{"single_choice", "judgment", "true_false", "short_answer"} {
		assert.NoError(t, v.Struct(typedRequest{QuestionType: qt, Count: 3}), qt)
	}

	err := v.Struct(typedRequest{QuestionType: "essay", Count: 0})
	require.Error(t, err)

	fields := TranslateErrors(err)
	assert.Contains(t, fields["question_type"], "must be one of")
	assert.Contains(t, fields, "count")
}
