package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// QuestionType enumerates the kinds of questions the generator can produce.
type QuestionType string

const (
	QuestionTypeSingleChoice   QuestionType = "single_choice"
	QuestionTypeMultipleChoice QuestionType = "multiple_choice"
	QuestionTypeJudgment       QuestionType = "judgment"
	QuestionTypeFillBlank      QuestionType = "fill_blank"
	QuestionTypeShortAnswer    QuestionType = "short_answer"
)

// Label returns the human-readable name used inside prompts.
func (t QuestionType) Label() string {
	switch t {
	case QuestionTypeSingleChoice:
		return "Single choice"
	case QuestionTypeMultipleChoice:
		return "Multiple choice"
	case QuestionTypeJudgment:
		return "True/False"
	case QuestionTypeFillBlank:
		return "Fill in the blank"
	case QuestionTypeShortAnswer:
		return "Short answer"
	default:
		return string(t)
	}
}

// IsChoice reports whether answers are option letters.
func (t QuestionType) IsChoice() bool {
	return t == QuestionTypeSingleChoice || t == QuestionTypeMultipleChoice || t == QuestionTypeJudgment
}

// PublicType maps the stored type to the value clients see.
func (t QuestionType) PublicType() string {
	if t == QuestionTypeJudgment {
		return "true_false"
	}
	return string(t)
}

// ParseQuestionType accepts both stored and client-facing type names.
func ParseQuestionType(s string) QuestionType {
	if s == "true_false" {
		return QuestionTypeJudgment
	}
	return QuestionType(s)
}

// Difficulty enumerates exercise difficulty levels.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Label returns the human-readable name used inside prompts.
func (d Difficulty) Label() string {
	switch d {
	case DifficultyEasy:
		return "Easy"
	case DifficultyMedium:
		return "Medium"
	case DifficultyHard:
		return "Hard"
	default:
		return string(d)
	}
}

// Option is one lettered choice of a question.
type Option struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// Question is a persisted, immutable exercise question.
type Question struct {
	ID           uuid.UUID    `json:"id"`
	ExerciseID   uuid.UUID    `json:"exercise_id"`
	QuestionType QuestionType `json:"question_type"`
	Stem         string       `json:"stem"`
	Options      []Option     `json:"options"`
	OrderNum     int          `json:"order_num"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Answer is the single answer row owned by a Question.
type Answer struct {
	ID            uuid.UUID `json:"id"`
	QuestionID    uuid.UUID `json:"question_id"`
	CorrectAnswer string    `json:"correct_answer"`
	Analysis      string    `json:"analysis"`
	NeedsReview   bool      `json:"needs_review"`
}

// QuestionWithAnswer pairs a question with its answer for batch writes and reads.
type QuestionWithAnswer struct {
	Question Question
	Answer   Answer
}

// OptionsJSON encodes options for the jsonb column.
func OptionsJSON(opts []Option) ([]byte, error) {
	if opts == nil {
		opts = []Option{}
	}
	return json.Marshal(opts)
}

// OptionMap converts ordered options into {"A": "text"} for clients.
func OptionMap(opts []Option) map[string]string {
	m := make(map[string]string, len(opts))
	for _, o := range opts {
		m[o.Label] = o.Text
	}
	return m
}
