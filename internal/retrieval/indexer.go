package retrieval

import (
	"context"
	"fmt"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-examgen/internal/llm"
	"golang.org/x/sync/errgroup"
)

// embedBatchSize is the largest input list the embedding endpoint accepts.
const embedBatchSize = 10

// Indexer chunks, embeds and stores doc text.
type Indexer struct {
	embedder    llm.Embedder
	store       *Qdrant
	splitter    Splitter
	concurrency int
	log         zerolog.Logger
}

// NewIndexer creates an Indexer.
func NewIndexer(embedder llm.Embedder, store *Qdrant, log zerolog.Logger) *Indexer {
	return &Indexer{
		embedder:    embedder,
		store:       store,
		splitter:    DefaultSplitter,
		concurrency: 4,
		log:         log.With().Str("component", "qdrant_indexer").Logger(),
	}
}

// Index replaces the points of docID with fresh chunks of text and returns
// the chunk count.
func (ix *Indexer) Index(ctx context.Context, docID, ownerID uuid.UUID, text string) (int, error) {
	chunks := ix.splitter.Split(text)
	if len(chunks) == 0 {
		return 0, nil
	}

	vectors := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.concurrency)
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := min(start+embedBatchSize, len(chunks))
		g.Go(func() error {
			batch, err := retry.DoWithData(func() ([][]float32, error) {
				return ix.embedder.Embed(gctx, chunks[start:end])
			}, retryOptions(gctx, ix.log, "embed chunks")...)
			if err != nil {
				return err
			}
			if len(batch) != end-start {
				return fmt.Errorf("embed chunks %d-%d: got %d vectors", start, end, len(batch))
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	if err := retry.Do(func() error {
		return ix.store.EnsureCollection(ctx, len(vectors[0]))
	}, retryOptions(ctx, ix.log, "ensure collection")...); err != nil {
		return 0, err
	}
	if err := retry.Do(func() error {
		return ix.store.DeleteDoc(ctx, docID)
	}, retryOptions(ctx, ix.log, "delete stale points")...); err != nil {
		return 0, err
	}

	points := make([]Point, len(chunks))
	for i, c := range chunks {
		points[i] = Point{
			ID:     ChunkPointID(docID, i),
			Vector: vectors[i],
			Payload: map[string]any{
				payloadDocID:      docID.String(),
				payloadOwnerID:    ownerID.String(),
				payloadChunkIndex: i,
				payloadContent:    c,
			},
		}
	}
	if err := retry.Do(func() error {
		return ix.store.Upsert(ctx, points)
	}, retryOptions(ctx, ix.log, "upsert")...); err != nil {
		return 0, err
	}

	ix.log.Info().Str("doc_id", docID.String()).Int("chunks", len(chunks)).Msg("Doc indexed")
	return len(chunks), nil
}

// Remove deletes the points of docID.
func (ix *Indexer) Remove(ctx context.Context, docID uuid.UUID) error {
	return retry.Do(func() error {
		return ix.store.DeleteDoc(ctx, docID)
	}, retryOptions(ctx, ix.log, "delete")...)
}
