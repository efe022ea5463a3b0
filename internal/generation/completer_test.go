package generation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-examgen/internal/examparser"
	"github.com/stemsi/exstem-examgen/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"
)

func TestCompleter_OneCallPerIncompleteEntry(t *testing.T) {
	m := newFakeModel()
	m.complete = func(prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "second stem"):
			return "Answer: C\nAnalysis: Because C.", nil
		case strings.Contains(prompt, "third stem"):
			return "```\nAnswer: D\nAnalysis: D is right.\nIt covers the whole cycle.\n```", nil
		}
		return "", nil
	}
	entries := []examparser.Entry{
		{Stem: "first stem", CorrectAnswer: "A", Analysis: "done"},
		{Stem: "second stem", CorrectAnswer: "B"},
		{Stem: "third stem", Options: []model.Option{{Label: "D", Text: "Calvin"}}},
	}

	c := NewCompleter(m, semaphore.NewWeighted(2), 4, zerolog.Nop())
	report := c.Complete(context.Background(), entries, model.QuestionTypeSingleChoice)

	assert.Len(t, m.completeCalls(), 2)
	assert.Equal(t, CompletionReport{Attempted: 2, Repaired: 2, Flagged: 0}, report)

	assert.Equal(t, "first stem", entries[0].Stem)
	assert.Equal(t, "B", entries[1].CorrectAnswer, "existing answer is kept")
	assert.Equal(t, "Because C.", entries[1].Analysis)
	assert.Equal(t, "D", entries[2].CorrectAnswer)
	assert.Equal(t, "D is right.\nIt covers the whole cycle.", entries[2].Analysis)
	for _, e := range entries {
		assert.False(t, e.Flagged)
	}
}

func TestCompleter_NoCallsWhenComplete(t *testing.T) {
	m := newFakeModel()
	entries := []examparser.Entry{{Stem: "s", CorrectAnswer: "A", Analysis: "x"}}

	report := NewCompleter(m, nil, 2, zerolog.Nop()).Complete(context.Background(), entries, model.QuestionTypeSingleChoice)

	assert.Empty(t, m.completeCalls())
	assert.Zero(t, report.Attempted)
}

func TestCompleter_FailureFlagsOnlyThatEntry(t *testing.T) {
	m := newFakeModel()
	entries := []examparser.Entry{
		{Stem: "broken stem"},
		{Stem: "fine stem"},
		{Stem: "vague stem"},
	}
	m.complete = func(prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "broken"):
			return "", errors.New("upstream 500")
		case strings.Contains(prompt, "vague"):
			return "Answer: B", nil
		}
		return "Answer: A\nAnalysis: ok", nil
	}

	report := NewCompleter(m, semaphore.NewWeighted(1), 3, zerolog.Nop()).Complete(context.Background(), entries, model.QuestionTypeSingleChoice)

	require.Len(t, m.completeCalls(), 3, "exactly one attempt each, no retries")
	assert.Equal(t, 3, report.Attempted)
	assert.Equal(t, 1, report.Repaired)
	assert.Equal(t, 2, report.Flagged)

	assert.True(t, entries[0].Flagged)
	assert.False(t, entries[1].Flagged)
	assert.True(t, entries[2].Flagged)
	assert.Equal(t, "B", entries[2].CorrectAnswer, "partial repair is kept")
	assert.Equal(t, "fine stem", entries[1].Stem, "order is preserved")
}

func TestCompleter_CountsParserFlaggedEntries(t *testing.T) {
	m := newFakeModel()
	entries := []examparser.Entry{
		{Stem: "s", CorrectAnswer: "A", Analysis: "x", Flagged: true},
		{Stem: "t", CorrectAnswer: "B", Analysis: "y"},
	}

	report := NewCompleter(m, nil, 2, zerolog.Nop()).Complete(context.Background(), entries, model.QuestionTypeSingleChoice)

	assert.Empty(t, m.completeCalls())
	assert.Equal(t, CompletionReport{Flagged: 1}, report)
}

func TestSupplementPrompt_ListsOptions(t *testing.T) {
	e := &examparser.Entry{
		Stem:    "Which pigment absorbs light?",
		Options: []model.Option{{Label: "A", Text: "Chlorophyll"}, {Label: "B", Text: "Keratin"}},
	}
	p := supplementPrompt(e, model.QuestionTypeSingleChoice)

	assert.Contains(t, p, "Question type: Single choice")
	assert.Contains(t, p, "A. Chlorophyll\nB. Keratin")
}
