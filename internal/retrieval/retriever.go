package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-examgen/internal/generation"
	"github.com/stemsi/exstem-examgen/internal/llm"
)

// retryOptions are shared by every knowledge-base call. Only transient
// upstream failures are retried.
func retryOptions(ctx context.Context, log zerolog.Logger, op string) []retry.Option {
	return []retry.Option{
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(200 * time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(llm.IsRetryable),
		retry.OnRetry(func(n uint, err error) {
			log.Debug().Err(err).Uint("attempt", n+1).Str("op", op).Msg("Retrying knowledge base call")
		}),
	}
}

// Retriever embeds a query and searches the chunk collection.
type Retriever struct {
	embedder llm.Embedder
	store    *Qdrant
	topK     int
	log      zerolog.Logger
}

// NewRetriever creates a Retriever returning at most topK fragments.
func NewRetriever(embedder llm.Embedder, store *Qdrant, topK int, log zerolog.Logger) *Retriever {
	if topK <= 0 {
		topK = 8
	}
	return &Retriever{
		embedder: embedder,
		store:    store,
		topK:     topK,
		log:      log.With().Str("component", "qdrant_retriever").Logger(),
	}
}

// Retrieve implements generation.Retriever.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]generation.Fragment, error) {
	vectors, err := retry.DoWithData(func() ([][]float32, error) {
		return r.embedder.Embed(ctx, []string{query})
	}, retryOptions(ctx, r.log, "embed query")...)
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vectors))
	}

	hits, err := retry.DoWithData(func() ([]ScoredPoint, error) {
		return r.store.Search(ctx, vectors[0], r.topK, nil)
	}, retryOptions(ctx, r.log, "search")...)
	if err != nil {
		return nil, err
	}

	fragments := make([]generation.Fragment, 0, len(hits))
	for _, h := range hits {
		content, _ := h.Payload[payloadContent].(string)
		if strings.TrimSpace(content) == "" {
			continue
		}
		source, _ := h.Payload[payloadDocID].(string)
		fragments = append(fragments, generation.Fragment{Text: content, Score: h.Score, Source: source})
	}
	r.log.Debug().Int("hits", len(hits)).Int("fragments", len(fragments)).Msg("Knowledge retrieved")
	return fragments, nil
}

var _ generation.Retriever = (*Retriever)(nil)
