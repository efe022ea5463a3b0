package generation

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-examgen/internal/llm"
)

// Fragment is one knowledge-base hit.
type Fragment struct {
	Text   string
	Score  float64
	Source string
}

// Retriever queries the knowledge base.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]Fragment, error)
}

const curationPrompt = `You are organizing reference notes for an exam writer.
Rewrite the reference text below:
- remove duplicated or near-duplicated passages;
- group the remaining content into topical sections;
- give every section a short markdown heading (##).
Keep facts, definitions and formulas unchanged. Output only the reorganized text.

Reference text:
`

// Augmenter turns material into knowledge-base context.
type Augmenter struct {
	retriever Retriever
	model     llm.Model
	curate    bool
	log       zerolog.Logger
}

// NewAugmenter creates an Augmenter. model may be nil when curate is false.
func NewAugmenter(retriever Retriever, model llm.Model, curate bool, log zerolog.Logger) *Augmenter {
	return &Augmenter{
		retriever: retriever,
		model:     model,
		curate:    curate && model != nil,
		log:       log.With().Str("component", "context_augmenter").Logger(),
	}
}

// RetrievalQuery returns the query sent to the knowledge base for material.
func RetrievalQuery(material string) string {
	q := TruncateRunes(material, RetrievalQueryBound)
	if strings.TrimSpace(q) == "" {
		return "exercise"
	}
	return q
}

// Augment returns ragContext. Failures degrade to less context, never to an error.
func (a *Augmenter) Augment(ctx context.Context, material string) string {
	if a == nil || a.retriever == nil {
		return ""
	}

	fragments, err := a.retriever.Retrieve(ctx, RetrievalQuery(material))
	if err != nil {
		a.log.Warn().Err(err).Msg("Knowledge retrieval failed, continuing without context")
		return ""
	}

	texts := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if t := strings.TrimSpace(f.Text); t != "" {
			texts = append(texts, t)
		}
	}
	ragText := strings.Join(texts, "\n\n")
	if !a.curate || utf8.RuneCountInString(ragText) < curationMinInputRunes {
		return ragText
	}

	curated, err := a.model.Complete(ctx, curationPrompt+TruncateRunes(ragText, CurationInputBound))
	if err != nil {
		a.log.Warn().Err(err).Msg("Context curation failed, using raw fragments")
		return ragText
	}
	curated = strings.TrimSpace(llm.StripCodeFences(curated))
	if curated == "" {
		a.log.Warn().Msg("Context curation returned nothing, using raw fragments")
		return ragText
	}
	return TruncateRunes(curated, CurationOutputBound)
}
