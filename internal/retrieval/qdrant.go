package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-examgen/internal/llm"
)

const maxErrorBody = 1024

// Payload keys stored with every chunk point.
const (
	payloadDocID      = "docId"
	payloadOwnerID    = "ownerId"
	payloadChunkIndex = "chunkIndex"
	payloadContent    = "content"
)

// Point is one chunk vector.
type Point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// ScoredPoint is one search hit.
type ScoredPoint struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

// Qdrant talks to the Qdrant REST API for a single collection.
type Qdrant struct {
	baseURL    string
	collection string
	apiKey     string
	http       *http.Client
}

// NewQdrant creates a Qdrant client. httpClient may be nil.
func NewQdrant(baseURL, collection, apiKey string, httpClient *http.Client) *Qdrant {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Qdrant{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		apiKey:     apiKey,
		http:       httpClient,
	}
}

// ChunkPointID derives a stable point id so re-indexing a doc overwrites its points.
func ChunkPointID(docID uuid.UUID, chunkIndex int) string {
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(fmt.Sprintf("%s_%d", docID, chunkIndex))).String()
}

type envelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
}

func (q *Qdrant) collectionPath(suffix string) string {
	return "/collections/" + url.PathEscape(q.collection) + suffix
}

// EnsureCollection creates the collection with cosine distance when it is missing.
func (q *Qdrant) EnsureCollection(ctx context.Context, dim int) error {
	err := q.doJSON(ctx, "get collection", http.MethodGet, q.collectionPath(""), nil, nil)
	if err == nil {
		return nil
	}
	var ue *llm.UpstreamError
	if !errors.As(err, &ue) || ue.StatusCode != http.StatusNotFound {
		return err
	}

	req := map[string]any{
		"vectors": map[string]any{"size": dim, "distance": "Cosine"},
	}
	return q.doJSON(ctx, "create collection", http.MethodPut, q.collectionPath(""), req, nil)
}

// Upsert writes points and waits until they are searchable.
func (q *Qdrant) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	return q.doJSON(ctx, "upsert", http.MethodPut, q.collectionPath("/points?wait=true"), map[string]any{"points": points}, nil)
}

// DeleteDoc removes every point of a doc.
func (q *Qdrant) DeleteDoc(ctx context.Context, docID uuid.UUID) error {
	req := map[string]any{"filter": matchFilter(payloadDocID, docID.String())}
	return q.doJSON(ctx, "delete", http.MethodPost, q.collectionPath("/points/delete?wait=true"), req, nil)
}

// Search returns the closest points to vector. filter may be nil.
func (q *Qdrant) Search(ctx context.Context, vector []float32, limit int, filter map[string]any) ([]ScoredPoint, error) {
	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
		"with_vector":  false,
	}
	if filter != nil {
		req["filter"] = filter
	}
	var out []ScoredPoint
	if err := q.doJSON(ctx, "search", http.MethodPost, q.collectionPath("/points/search"), req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func matchFilter(key, value string) map[string]any {
	return map[string]any{
		"must": []map[string]any{
			{"key": key, "match": map[string]any{"value": value}},
		},
	}
}

func (q *Qdrant) doJSON(ctx context.Context, op, method, path string, in, out any) error {
	op = "qdrant " + op

	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}

	resp, err := q.http.Do(req)
	if err != nil {
		return &llm.UpstreamError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &llm.UpstreamError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))),
		}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return &llm.FormatError{Op: op, Err: err}
	}
	if len(env.Result) == 0 || string(env.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return &llm.FormatError{Op: op, Raw: string(env.Result), Err: err}
	}
	return nil
}
