package generation

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-examgen/internal/llm"
	"github.com/stemsi/exstem-examgen/internal/model"
)

const maxKeyPoints = 20

// Analysis is the advisory output of material analysis.
type Analysis struct {
	KeyPoints      []string `json:"key_points"`
	SuggestedTitle string   `json:"suggested_title"`
}

// AnalyzeOptions describes the exercise the key points are for.
type AnalyzeOptions struct {
	QuestionType model.QuestionType
	Difficulty   model.Difficulty
	Count        int
}

// Analyzer extracts key points from study material.
type Analyzer struct {
	model llm.Model
	log   zerolog.Logger
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(m llm.Model, log zerolog.Logger) *Analyzer {
	return &Analyzer{
		model: m,
		log:   log.With().Str("component", "material_analyzer").Logger(),
	}
}

func analyzePrompt(material string, opts AnalyzeOptions) string {
	var b strings.Builder
	b.WriteString("You are an experienced teacher. Read the study material and list the key knowledge points an exam on it should test.\n")
	if opts.QuestionType != "" {
		fmt.Fprintf(&b, "The exam will use %s questions", opts.QuestionType.Label())
		if opts.Difficulty != "" {
			fmt.Fprintf(&b, " at %s difficulty", opts.Difficulty.Label())
		}
		if opts.Count > 0 {
			fmt.Fprintf(&b, ", %d in total", opts.Count)
		}
		b.WriteString(".\n")
	}
	b.WriteString("Reply with a JSON array of short strings, one key point per element, and nothing else.\n")
	b.WriteString(`Example: ["Light reactions produce ATP", "The Calvin cycle fixes carbon dioxide"]`)
	b.WriteString("\n\nStudy material:\n")
	b.WriteString(material)
	return b.String()
}

// Analyze returns key points and a suggested title. A reply that is not a
// JSON array of strings yields *llm.FormatError.
func (a *Analyzer) Analyze(ctx context.Context, material string, opts AnalyzeOptions) (*Analysis, error) {
	truncated := TruncateRunes(material, AnalyzeMaterialBound)

	reply, err := a.model.Complete(ctx, analyzePrompt(truncated, opts))
	if err != nil {
		return nil, fmt.Errorf("analyze material: %w", err)
	}

	var raw []string
	if err := llm.DecodeJSON("analyze material", reply, '[', ']', &raw); err != nil {
		a.log.Warn().Err(err).Msg("Key point reply was not a JSON array")
		return nil, err
	}

	points := make([]string, 0, len(raw))
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			points = append(points, p)
		}
		if len(points) == maxKeyPoints {
			break
		}
	}

	return &Analysis{
		KeyPoints:      points,
		SuggestedTitle: SuggestTitle(points, material),
	}, nil
}
