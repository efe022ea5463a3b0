package service

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-examgen/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAnswer(t *testing.T) {
	tests := []struct {
		qt   model.QuestionType
		in   string
		want string
	}{
		{model.QuestionTypeSingleChoice, " b ", "B"},
		{model.QuestionTypeSingleChoice, "B. Chloroplast", "B"},
		{model.QuestionTypeMultipleChoice, "C, a", "AC"},
		{model.QuestionTypeMultipleChoice, "ACA", "AC"},
		{model.QuestionTypeJudgment, "True", "A"},
		{model.QuestionTypeJudgment, "错误", "B"},
		{model.QuestionTypeJudgment, "√", "A"},
		{model.QuestionTypeJudgment, "b", "B"},
		{model.QuestionTypeFillBlank, "  Carbon   Dioxide ", "carbon dioxide"},
	}
	for _, tt := range tests {
		t.Run(string(tt.qt)+"/"+tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeAnswer(tt.qt, tt.in))
		})
	}
}

func question(qt model.QuestionType, answer string) model.QuestionWithAnswer {
	id := uuid.New()
	return model.QuestionWithAnswer{
		Question: model.Question{ID: id, QuestionType: qt},
		Answer:   model.Answer{QuestionID: id, CorrectAnswer: answer, Analysis: "why"},
	}
}

func TestBuildResult_SingleQuestionRoundTrip(t *testing.T) {
	items := []model.QuestionWithAnswer{question(model.QuestionTypeSingleChoice, "B")}
	qid := items[0].Question.ID.String()

	right := BuildResult(uuid.New(), uuid.New(), items, map[string]string{qid: "B"})
	assert.Equal(t, 100, right.Score)
	assert.Equal(t, 1, right.CorrectCount)
	require.Len(t, right.Details, 1)
	assert.True(t, right.Details[0].Correct)

	wrong := BuildResult(uuid.New(), uuid.New(), items, map[string]string{qid: "A"})
	assert.Equal(t, 0, wrong.Score)
	assert.False(t, wrong.Details[0].Correct)
	assert.Equal(t, "B", wrong.Details[0].CorrectAnswer)
}

func TestBuildResult_MixedTypes(t *testing.T) {
	items := []model.QuestionWithAnswer{
		question(model.QuestionTypeMultipleChoice, "AC"),
		question(model.QuestionTypeJudgment, "A"),
		question(model.QuestionTypeFillBlank, "ATP"),
		question(model.QuestionTypeSingleChoice, ""),
	}
	submitted := map[string]string{
		items[0].Question.ID.String(): "c,a",
		items[1].Question.ID.String(): "对",
		items[2].Question.ID.String(): "adp",
		items[3].Question.ID.String(): "A",
	}

	res := BuildResult(uuid.New(), uuid.New(), items, submitted)

	assert.Equal(t, 2, res.CorrectCount)
	assert.Equal(t, 4, res.TotalCount)
	assert.Equal(t, 50, res.Score)
	assert.False(t, res.Details[3].Correct, "a question without a stored answer is never correct")
}

func TestScore_Rounds(t *testing.T) {
	assert.Equal(t, 67, Score(2, 3))
	assert.Equal(t, 33, Score(1, 3))
	assert.Equal(t, 0, Score(0, 0))
}
