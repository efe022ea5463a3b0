package service

import (
	"math"
	"slices"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-examgen/internal/model"
)

var judgmentSynonyms = map[string]string{
	"A": "A", "TRUE": "A", "T": "A", "YES": "A", "对": "A", "√": "A", "✓": "A", "正确": "A",
	"B": "B", "FALSE": "B", "F": "B", "NO": "B", "错": "B", "×": "B", "✗": "B", "错误": "B",
}

// NormalizeAnswer maps an answer to the form used for comparison.
func NormalizeAnswer(qt model.QuestionType, s string) string {
	s = strings.TrimSpace(s)
	switch qt {
	case model.QuestionTypeSingleChoice:
		return firstLetter(s)
	case model.QuestionTypeMultipleChoice:
		return letterSet(s)
	case model.QuestionTypeJudgment:
		up := strings.ToUpper(strings.TrimRight(s, ".。"))
		if v, ok := judgmentSynonyms[up]; ok {
			return v
		}
		return firstLetter(s)
	default:
		return strings.ToLower(strings.Join(strings.Fields(s), " "))
	}
}

func firstLetter(s string) string {
	for _, r := range strings.ToUpper(s) {
		if r >= 'A' && r <= 'H' {
			return string(r)
		}
		if unicode.IsLetter(r) {
			break
		}
	}
	return strings.ToUpper(s)
}

// letterSet returns the sorted distinct option letters in s, so "C, a" and "AC" compare equal.
func letterSet(s string) string {
	var letters []rune
	for _, r := range strings.ToUpper(s) {
		if r >= 'A' && r <= 'H' && !slices.Contains(letters, r) {
			letters = append(letters, r)
		}
	}
	slices.Sort(letters)
	return string(letters)
}

// Grade compares submitted answers, keyed by question ID, with the stored answers.
func Grade(items []model.QuestionWithAnswer, submitted map[string]string) (details []model.GradedAnswer, correct int) {
	details = make([]model.GradedAnswer, 0, len(items))
	for _, it := range items {
		qt := it.Question.QuestionType
		got := submitted[it.Question.ID.String()]
		ok := strings.TrimSpace(got) != "" &&
			strings.TrimSpace(it.Answer.CorrectAnswer) != "" &&
			NormalizeAnswer(qt, got) == NormalizeAnswer(qt, it.Answer.CorrectAnswer)
		if ok {
			correct++
		}
		details = append(details, model.GradedAnswer{
			QuestionID:    it.Question.ID,
			Submitted:     got,
			CorrectAnswer: it.Answer.CorrectAnswer,
			Correct:       ok,
			Analysis:      it.Answer.Analysis,
		})
	}
	return details, correct
}

// Score returns the rounded percentage of correct answers.
func Score(correct, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(correct) / float64(total)))
}

// BuildResult grades a submission into a result row.
func BuildResult(exerciseID, ownerID uuid.UUID, items []model.QuestionWithAnswer, submitted map[string]string) *model.ExerciseResult {
	details, correct := Grade(items, submitted)
	return &model.ExerciseResult{
		ID:           uuid.New(),
		ExerciseID:   exerciseID,
		OwnerID:      ownerID,
		Score:        Score(correct, len(items)),
		CorrectCount: correct,
		TotalCount:   len(items),
		Details:      details,
	}
}
