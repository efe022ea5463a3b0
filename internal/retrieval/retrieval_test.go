package retrieval

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-examgen/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	mu     sync.Mutex
	inputs [][]string
	err    error
}

func (e *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.inputs = append(e.inputs, texts)
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1, 0}
	}
	return out, nil
}

func writeResult(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"result": result, "status": "ok"})
}

func TestRetriever_Retrieve(t *testing.T) {
	var searches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/collections/docs/points/search", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("api-key"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.EqualValues(t, 2, body["limit"])
		assert.Equal(t, true, body["with_payload"])

		// First attempt fails transiently, the retry succeeds.
		if searches.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeResult(w, []map[string]any{
			{"id": "a", "score": 0.9, "payload": map[string]any{"content": "Chlorophyll absorbs light.", "docId": "d1"}},
			{"id": "b", "score": 0.5, "payload": map[string]any{"content": "  "}},
		})
	}))
	defer srv.Close()

	emb := &fakeEmbedder{}
	r := NewRetriever(emb, NewQdrant(srv.URL, "docs", "secret", srv.Client()), 2, zerolog.Nop())

	got, err := r.Retrieve(context.Background(), "photosynthesis")

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Chlorophyll absorbs light.", got[0].Text)
	assert.Equal(t, "d1", got[0].Source)
	assert.InDelta(t, 0.9, got[0].Score, 1e-9)
	assert.Equal(t, int32(2), searches.Load())
	assert.Equal(t, [][]string{{"photosynthesis"}}, emb.inputs)
}

func TestRetriever_NonRetryableFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":{"error":"bad vector"}}`))
	}))
	defer srv.Close()

	r := NewRetriever(&fakeEmbedder{}, NewQdrant(srv.URL, "docs", "", srv.Client()), 4, zerolog.Nop())
	_, err := r.Retrieve(context.Background(), "q")

	var ue *llm.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, http.StatusBadRequest, ue.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestIndexer_Index(t *testing.T) {
	var (
		mu       sync.Mutex
		created  bool
		deleted  bool
		upserted []Point
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/collections/docs":
			if !created {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			writeResult(w, map[string]any{})
		case r.Method == http.MethodPut && r.URL.Path == "/collections/docs":
			var body map[string]map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "Cosine", body["vectors"]["distance"])
			assert.EqualValues(t, 3, body["vectors"]["size"])
			created = true
			writeResult(w, true)
		case r.URL.Path == "/collections/docs/points/delete":
			deleted = true
			writeResult(w, map[string]any{"status": "completed"})
		case r.URL.Path == "/collections/docs/points":
			var body struct {
				Points []Point `json:"points"`
			}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			upserted = append(upserted, body.Points...)
			writeResult(w, map[string]any{"status": "completed"})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	emb := &fakeEmbedder{}
	ix := NewIndexer(emb, NewQdrant(srv.URL, "docs", "", srv.Client()), zerolog.Nop())
	ix.splitter = Splitter{Size: 20, Overlap: 0}

	docID, ownerID := uuid.New(), uuid.New()
	text := strings.Repeat("word ", 60)
	n, err := ix.Index(context.Background(), docID, ownerID, text)

	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, deleted)
	require.Len(t, upserted, n)
	assert.Greater(t, n, embedBatchSize, "several embedding batches")
	for _, in := range emb.inputs {
		assert.LessOrEqual(t, len(in), embedBatchSize)
	}
	for i, p := range upserted {
		assert.Equal(t, ChunkPointID(docID, i), p.ID)
		assert.Equal(t, docID.String(), p.Payload["docId"])
		assert.Equal(t, ownerID.String(), p.Payload["ownerId"])
		assert.EqualValues(t, i, p.Payload["chunkIndex"])
		assert.NotEmpty(t, p.Payload["content"])
	}
}

func TestChunkPointID_Stable(t *testing.T) {
	id := uuid.New()
	assert.Equal(t, ChunkPointID(id, 3), ChunkPointID(id, 3))
	assert.NotEqual(t, ChunkPointID(id, 3), ChunkPointID(id, 4))
}

func TestSplitter(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		assert.Nil(t, DefaultSplitter.Split("  \n "))
	})

	t.Run("short text is one chunk", func(t *testing.T) {
		assert.Equal(t, []string{"Plants make food."}, DefaultSplitter.Split(" Plants make food. "))
	})

	t.Run("chunks respect size and overlap", func(t *testing.T) {
		text := strings.Repeat("x", 2500)
		chunks := Splitter{Size: 1000, Overlap: 150}.Split(text)
		require.Len(t, chunks, 3)
		for _, c := range chunks {
			assert.LessOrEqual(t, utf8.RuneCountInString(c), 1000)
		}
		assert.Equal(t, 1000, utf8.RuneCountInString(chunks[0]))
		assert.Equal(t, 1000, utf8.RuneCountInString(chunks[1]))
	})

	t.Run("prefers paragraph breaks", func(t *testing.T) {
		text := strings.Repeat("a", 70) + "\n\n" + strings.Repeat("b", 70)
		chunks := Splitter{Size: 100, Overlap: 0}.Split(text)
		require.Len(t, chunks, 2)
		assert.Equal(t, strings.Repeat("a", 70), chunks[0])
		assert.Equal(t, strings.Repeat("b", 70), chunks[1])
	})

	t.Run("prefers sentence ends", func(t *testing.T) {
		text := strings.Repeat("a", 60) + "。" + strings.Repeat("b", 60)
		chunks := Splitter{Size: 100, Overlap: 0}.Split(text)
		require.Len(t, chunks, 2)
		assert.Equal(t, strings.Repeat("a", 60)+"。", chunks[0])
	})
}
