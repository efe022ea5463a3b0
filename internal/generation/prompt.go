package generation

import (
	"fmt"
	"strings"

	"github.com/stemsi/exstem-examgen/internal/model"
)

// Intent describes the exercise the model is asked to write.
type Intent struct {
	Title        string
	QuestionType model.QuestionType
	Difficulty   model.Difficulty
	Count        int
	KeyPoints    []string
}

// Bounds caps each prompt section independently, in runes.
type Bounds struct {
	Intent    int
	Knowledge int
	Material  int
}

// DefaultBounds are the production section caps.
var DefaultBounds = Bounds{
	Intent:    IntentBound,
	Knowledge: KnowledgeBound,
	Material:  MaterialBound,
}

// PromptComposer builds generation prompts. It is deterministic: identical
// inputs always yield an identical prompt.
type PromptComposer struct {
	Bounds Bounds
}

// NewPromptComposer creates a composer with DefaultBounds.
func NewPromptComposer() PromptComposer {
	return PromptComposer{Bounds: DefaultBounds}
}

const formatSection = `You are an experienced teacher writing exam questions from study material.

## Output format
Write plain text only, no markdown tables or code blocks. Number every question and follow this layout exactly:

1. <question stem>
A. <option>
B. <option>
C. <option>
D. <option>
Answer: <correct option letter(s) or the answer text>
Analysis: <a short paragraph explaining why the answer is correct>

Rules:
- Start every question on a new line with its number and a period.
- Single choice: four options A-D and exactly one correct letter.
- Multiple choice: four options A-D; the answer lists every correct letter without separators, for example "AC".
- True/False: exactly two options, "A. True" and "B. False"; the answer is A or B.
- Fill in the blank: mark each blank with "____" and give no options; the answer is the missing text.
- Short answer: give no options; the answer is a concise model answer.
- Every question must have both an "Answer:" line and an "Analysis:" line.
- Leave one blank line between questions and write nothing after the last question.

## Example
1. Which organelle carries out photosynthesis in plant cells?
A. Mitochondrion
B. Chloroplast
C. Ribosome
D. Nucleus
Answer: B
Analysis: Chloroplasts contain chlorophyll, which captures light energy and converts it into chemical energy.`

// Compose assembles format, intent, knowledge and material sections in that order.
func (c PromptComposer) Compose(in Intent, ragContext, material string) string {
	sections := []string{
		formatSection,
		"## Requirements\n" + TruncateRunes(intentText(in), c.Bounds.Intent),
	}
	if rag := strings.TrimSpace(ragContext); rag != "" {
		sections = append(sections, "## Knowledge reference\nUse the reference below to keep questions accurate. Do not quote it verbatim.\n"+
			TruncateRunes(rag, c.Bounds.Knowledge))
	}
	sections = append(sections, "## Study material\n"+TruncateRunes(strings.TrimSpace(material), c.Bounds.Material))
	return strings.Join(sections, "\n\n")
}

func intentText(in Intent) string {
	var b strings.Builder
	if in.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", in.Title)
	}
	fmt.Fprintf(&b, "Question type: %s\n", in.QuestionType.Label())
	fmt.Fprintf(&b, "Difficulty: %s\n", in.Difficulty.Label())
	fmt.Fprintf(&b, "Number of questions: %d\n", in.Count)
	if len(in.KeyPoints) > 0 {
		b.WriteString("Key points to cover:\n")
		for _, kp := range in.KeyPoints {
			if kp = strings.TrimSpace(kp); kp != "" {
				fmt.Fprintf(&b, "- %s\n", kp)
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
