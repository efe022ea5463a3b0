package generation

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-examgen/internal/model"
)

// fakeModel scripts llm.Model. Stream replays chunks and then returns
// streamErr; when failAfter >= 0 it stops with streamErr after that many chunks.
type fakeModel struct {
	mu        sync.Mutex
	prompts   []string
	complete  func(prompt string) (string, error)
	chunks    []string
	failAfter int
	streamErr error
	usage     *model.Usage
}

func newFakeModel() *fakeModel {
	return &fakeModel{failAfter: -1}
}

func (m *fakeModel) Complete(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	fn := m.complete
	m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if fn == nil {
		return "", nil
	}
	return fn(prompt)
}

func (m *fakeModel) Stream(ctx context.Context, prompt string, onDelta func(string) error) (*model.Usage, error) {
	for i, c := range m.chunks {
		if m.failAfter >= 0 && i == m.failAfter {
			return nil, m.streamErr
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := onDelta(c); err != nil {
			return nil, err
		}
	}
	if m.streamErr != nil && m.failAfter < 0 {
		return nil, m.streamErr
	}
	return m.usage, nil
}

func (m *fakeModel) completeCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.prompts)
}

type fakeRetriever struct {
	fragments []Fragment
	err       error
	queries   []string
}

func (r *fakeRetriever) Retrieve(_ context.Context, query string) ([]Fragment, error) {
	r.queries = append(r.queries, query)
	return r.fragments, r.err
}

// fakeStore keeps resource status and committed batches in memory.
type fakeStore struct {
	mu          sync.Mutex
	status      map[uuid.UUID]model.ResourceStatus
	exercises   map[uuid.UUID]model.Exercise
	items       map[uuid.UUID][]model.QuestionWithAnswer
	docs        map[uuid.UUID]model.DocSummary
	history     map[uuid.UUID][]model.ResourceStatus
	finalizeErr error
	failErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		status:    map[uuid.UUID]model.ResourceStatus{},
		exercises: map[uuid.UUID]model.Exercise{},
		items:     map[uuid.UUID][]model.QuestionWithAnswer{},
		docs:      map[uuid.UUID]model.DocSummary{},
		history:   map[uuid.UUID][]model.ResourceStatus{},
	}
}

func (s *fakeStore) set(id uuid.UUID, st model.ResourceStatus) {
	s.status[id] = st
	s.history[id] = append(s.history[id], st)
}

func (s *fakeStore) seedDoc(st model.ResourceStatus) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.set(id, st)
	return id
}

func (s *fakeStore) InsertExercise(_ context.Context, ex *model.Exercise) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exercises[ex.ID] = *ex
	s.set(ex.ID, ex.Status)
	return nil
}

func (s *fakeStore) TransitionStatus(_ context.Context, ref model.ResourceRef, from []model.ResourceStatus, to model.ResourceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if to == model.StatusFailed && s.failErr != nil {
		return s.failErr
	}
	cur, ok := s.status[ref.ID]
	if !ok {
		return model.ErrNotFound
	}
	if !slices.Contains(from, cur) {
		return model.ErrStatusMismatch
	}
	s.set(ref.ID, to)
	return nil
}

func (s *fakeStore) FinalizeExercise(_ context.Context, ex *model.Exercise, items []model.QuestionWithAnswer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalizeErr != nil {
		return s.finalizeErr
	}
	if s.status[ex.ID] != model.StatusGenerating {
		return model.ErrStatusMismatch
	}
	s.exercises[ex.ID] = *ex
	s.items[ex.ID] = slices.Clone(items)
	s.set(ex.ID, model.StatusDone)
	return nil
}

func (s *fakeStore) FinalizeDoc(_ context.Context, docID uuid.UUID, summary *model.DocSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalizeErr != nil {
		return s.finalizeErr
	}
	if s.status[docID] != model.StatusParsing {
		return model.ErrStatusMismatch
	}
	s.docs[docID] = *summary
	s.set(docID, model.StatusDone)
	return nil
}

func (s *fakeStore) statusOf(id uuid.UUID) model.ResourceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status[id]
}

func (s *fakeStore) itemsOf(id uuid.UUID) []model.QuestionWithAnswer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items[id]
}

// chunkText splits s into pieces of n bytes. s must be ASCII.
func chunkText(s string, n int) []string {
	var out []string
	for len(s) > n {
		out = append(out, s[:n])
		s = s[n:]
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}

func isSupplementPrompt(p string) bool {
	return strings.Contains(p, "Reply with exactly two lines")
}
