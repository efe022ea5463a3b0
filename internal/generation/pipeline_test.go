package generation

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-examgen/internal/examparser"
	"github.com/stemsi/exstem-examgen/internal/lease"
	"github.com/stemsi/exstem-examgen/internal/llm"
	"github.com/stemsi/exstem-examgen/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"
)

const photosynthesisOutput = `1. Which organelle carries out photosynthesis?
A. Mitochondrion
B. Chloroplast
C. Ribosome
D. Nucleus
Answer: B
Analysis: Chloroplasts hold chlorophyll.

2. Which gas do plants absorb during photosynthesis?
A. Oxygen
B. Nitrogen
C. Carbon dioxide
D. Helium
Answer: C

3. What is the main product of the Calvin cycle?
A. Glucose precursors
B. Water
C. Oxygen
D. ATP
Answer: A
Analysis: The Calvin cycle builds three-carbon sugars.
`

type pipelineFixture struct {
	model *fakeModel
	store *fakeStore
	guard *lease.MemoryGuard
	p     *Pipeline
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	m := newFakeModel()
	store := newFakeStore()
	guard := lease.NewMemoryGuard(time.Minute)
	log := zerolog.Nop()

	p := NewPipeline(PipelineDeps{
		Coordinator: NewCoordinator(store, guard, time.Second, log),
		Analyzer:    NewAnalyzer(m, log),
		Augmenter:   NewAugmenter(&fakeRetriever{}, m, false, log),
		Streamer:    NewStreamer(m, log),
		Completer:   NewCompleter(m, semaphore.NewWeighted(4), 2, log),
		Timeout:     5 * time.Second,
	}, log)

	return &pipelineFixture{model: m, store: store, guard: guard, p: p}
}

func photosynthesisInput() GenerateInput {
	return GenerateInput{
		OwnerID:      uuid.New(),
		Material:     "Photosynthesis converts light energy into chemical energy in chloroplasts.",
		QuestionType: model.QuestionTypeSingleChoice,
		Difficulty:   model.DifficultyMedium,
		Count:        3,
		Title:        "Photosynthesis",
	}
}

func TestGenerate_Photosynthesis(t *testing.T) {
	f := newPipelineFixture(t)
	f.model.chunks = chunkText(photosynthesisOutput, 17)
	f.model.usage = &model.Usage{InputTokens: 100, OutputTokens: 50, TotalTokens: 150}
	f.model.complete = func(prompt string) (string, error) {
		return "Answer: C\nAnalysis: Plants fix carbon dioxide from the air.", nil
	}

	var streamed strings.Builder
	rec, err := f.p.Generate(context.Background(), photosynthesisInput(), func(s string) error {
		streamed.WriteString(s)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, photosynthesisOutput, streamed.String())
	assert.Equal(t, model.StatusDone, rec.Status)
	assert.Equal(t, 3, rec.QuestionCount)
	assert.Zero(t, rec.FlaggedCount)
	assert.Equal(t, int64(150), rec.Usage.TotalTokens)
	assert.Nil(t, rec.Error)

	calls := f.model.completeCalls()
	require.Len(t, calls, 1, "only the entry without analysis gets a supplemental call")
	assert.True(t, isSupplementPrompt(calls[0]))
	assert.Contains(t, calls[0], "Which gas do plants absorb")

	items := f.store.itemsOf(rec.ResourceID)
	require.Len(t, items, 3)
	for i, it := range items {
		assert.Equal(t, i+1, it.Question.OrderNum)
		assert.Equal(t, rec.ResourceID, it.Question.ExerciseID)
		assert.Equal(t, it.Question.ID, it.Answer.QuestionID)
		assert.NotEmpty(t, it.Answer.CorrectAnswer)
		assert.NotEmpty(t, it.Answer.Analysis)
	}
	assert.Equal(t, "Which organelle carries out photosynthesis?", items[0].Question.Stem)
	assert.Len(t, items[0].Question.Options, 4)
	assert.Equal(t, "B", items[0].Answer.CorrectAnswer)
	assert.Equal(t, "Plants fix carbon dioxide from the air.", items[1].Answer.Analysis)

	assert.Equal(t, []model.ResourceStatus{model.StatusGenerating, model.StatusDone}, f.store.history[rec.ResourceID])
	assert.Equal(t, 3, f.store.exercises[rec.ResourceID].QuestionCount)
}

func TestGenerate_MidStreamNetworkFailure(t *testing.T) {
	f := newPipelineFixture(t)
	f.model.chunks = chunkText(photosynthesisOutput, 40)
	f.model.failAfter = 2
	f.model.streamErr = &llm.UpstreamError{Op: "stream", Err: io.ErrUnexpectedEOF}

	var emitted int
	rec, err := f.p.Generate(context.Background(), photosynthesisInput(), func(string) error {
		emitted++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, emitted)
	assert.Equal(t, model.StatusFailed, rec.Status)
	require.NotNil(t, rec.Error)
	assert.Equal(t, CodeUpstream, rec.Error.Code)
	assert.Equal(t, model.StatusFailed, f.store.statusOf(rec.ResourceID))
	assert.Empty(t, f.store.itemsOf(rec.ResourceID))
	assert.Empty(t, f.model.completeCalls())
}

func TestGenerate_ClientDisconnect(t *testing.T) {
	f := newPipelineFixture(t)
	f.model.chunks = chunkText(photosynthesisOutput, 10)

	calls := 0
	rec, err := f.p.Generate(context.Background(), photosynthesisInput(), func(string) error {
		calls++
		if calls == 3 {
			return io.ErrClosedPipe
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, CodeCancelled, rec.Error.Code)
	assert.Equal(t, model.StatusFailed, f.store.statusOf(rec.ResourceID))
	assert.Empty(t, f.store.itemsOf(rec.ResourceID))
}

func TestGenerate_NoQuestions(t *testing.T) {
	f := newPipelineFixture(t)
	f.model.chunks = []string{"I am sorry, ", "I cannot write questions for this."}

	rec, err := f.p.Generate(context.Background(), photosynthesisInput(), func(string) error { return nil })

	require.NoError(t, err)
	assert.Equal(t, CodeNoQuestions, rec.Error.Code)
	assert.Equal(t, model.StatusFailed, f.store.statusOf(rec.ResourceID))
}

func TestGenerate_FlagsUnrepairedEntries(t *testing.T) {
	f := newPipelineFixture(t)
	f.model.chunks = []string{"1. Define osmosis.\n", "Answer: Diffusion of water\n"}
	f.model.complete = func(string) (string, error) { return "nothing useful", nil }

	rec, err := f.p.Generate(context.Background(), photosynthesisInput(), func(string) error { return nil })

	require.NoError(t, err)
	assert.Equal(t, model.StatusDone, rec.Status)
	assert.Equal(t, 1, rec.FlaggedCount)
	items := f.store.itemsOf(rec.ResourceID)
	require.Len(t, items, 1)
	assert.True(t, items[0].Answer.NeedsReview)
}

func TestGenerate_AnalyzeSuppliesTitleAndKeyPoints(t *testing.T) {
	f := newPipelineFixture(t)
	f.model.chunks = []string{photosynthesisOutput}
	f.model.complete = func(prompt string) (string, error) {
		if isSupplementPrompt(prompt) {
			return "Answer: C\nAnalysis: ok", nil
		}
		return `["Light reactions", "Calvin cycle"]`, nil
	}
	in := photosynthesisInput()
	in.Title = ""
	in.Analyze = true

	rec, err := f.p.Generate(context.Background(), in, func(string) error { return nil })

	require.NoError(t, err)
	assert.Equal(t, "Light reactions", f.store.exercises[rec.ResourceID].Title)
}

func TestGenerate_RAGFailureStillGenerates(t *testing.T) {
	f := newPipelineFixture(t)
	f.p.augmenter = NewAugmenter(&fakeRetriever{err: io.EOF}, nil, false, zerolog.Nop())
	f.model.chunks = []string{photosynthesisOutput}
	f.model.complete = func(string) (string, error) { return "Answer: C\nAnalysis: ok", nil }
	in := photosynthesisInput()
	in.UseRAG = true

	rec, err := f.p.Generate(context.Background(), in, func(string) error { return nil })

	require.NoError(t, err)
	assert.Equal(t, model.StatusDone, rec.Status)
}

func TestBuildQuestions_KeepsOrder(t *testing.T) {
	for _, n := range []int{1, 2, 7} {
		entries := make([]examparser.Entry, n)
		for i := range entries {
			entries[i] = examparser.Entry{Stem: strings.Repeat("s", i+1), CorrectAnswer: " A ", Analysis: "x"}
		}
		items := BuildQuestions(uuid.New(), model.QuestionTypeSingleChoice, entries)
		require.Len(t, items, n)
		for i, it := range items {
			assert.Equal(t, i+1, it.Question.OrderNum)
			assert.Equal(t, entries[i].Stem, it.Question.Stem)
			assert.Equal(t, "A", it.Answer.CorrectAnswer)
		}
	}
}
