package generation

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-examgen/internal/examparser"
	"github.com/stemsi/exstem-examgen/internal/llm"
	"github.com/stemsi/exstem-examgen/internal/model"
)

// GenerateInput is one exercise generation request.
type GenerateInput struct {
	OwnerID      uuid.UUID
	Material     string
	QuestionType model.QuestionType
	Difficulty   model.Difficulty
	Count        int
	Title        string
	KeyPoints    []string
	// Analyze extracts key points first when none were supplied.
	Analyze bool
	UseRAG  bool
}

// Pipeline wires the generation components into one run.
type Pipeline struct {
	coordinator *Coordinator
	analyzer    *Analyzer
	augmenter   *Augmenter
	composer    PromptComposer
	streamer    *Streamer
	parser      *examparser.Parser
	completer   *Completer
	timeout     time.Duration
	log         zerolog.Logger
}

// PipelineDeps are the collaborators of a Pipeline. Augmenter may be nil.
type PipelineDeps struct {
	Coordinator *Coordinator
	Analyzer    *Analyzer
	Augmenter   *Augmenter
	Streamer    *Streamer
	Completer   *Completer
	// Timeout bounds one run from begin to commit. It must stay below the lease TTL.
	Timeout time.Duration
}

// NewPipeline creates a Pipeline.
func NewPipeline(deps PipelineDeps, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		coordinator: deps.Coordinator,
		analyzer:    deps.Analyzer,
		augmenter:   deps.Augmenter,
		composer:    NewPromptComposer(),
		streamer:    deps.Streamer,
		parser:      examparser.New(examparser.DefaultGrammar),
		completer:   deps.Completer,
		timeout:     deps.Timeout,
		log:         log.With().Str("component", "generation_pipeline").Logger(),
	}
}

// Generate runs the full pipeline for one exercise. Raw chunks go to emit in
// arrival order. When the run could not start (lease conflict, status write
// failure) an error is returned and nothing was emitted. Otherwise the
// returned record is the single terminal record for the run.
func (p *Pipeline) Generate(ctx context.Context, in GenerateInput, emit func(string) error) (*model.TerminalRecord, error) {
	ex := &model.Exercise{
		OwnerID:       in.OwnerID,
		Title:         strings.TrimSpace(in.Title),
		QuestionType:  in.QuestionType,
		Difficulty:    in.Difficulty,
		QuestionCount: in.Count,
	}
	if ex.Title == "" {
		ex.Title = SuggestTitle(in.KeyPoints, in.Material)
	}

	run, err := p.coordinator.BeginExercise(ctx, ex)
	if err != nil {
		return nil, err
	}
	defer run.Close(ctx)

	runCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	keyPoints := in.KeyPoints
	if in.Analyze && len(keyPoints) == 0 && p.analyzer != nil {
		analysis, err := p.analyzer.Analyze(runCtx, in.Material, AnalyzeOptions{
			QuestionType: in.QuestionType,
			Difficulty:   in.Difficulty,
			Count:        in.Count,
		})
		if err != nil {
			run.log.Warn().Err(err).Msg("Material analysis skipped")
		} else {
			keyPoints = analysis.KeyPoints
			if strings.TrimSpace(in.Title) == "" {
				ex.Title = analysis.SuggestedTitle
			}
		}
	}

	var ragContext string
	if in.UseRAG && p.augmenter != nil {
		ragContext = p.augmenter.Augment(runCtx, in.Material)
	}

	prompt := p.composer.Compose(Intent{
		Title:        ex.Title,
		QuestionType: in.QuestionType,
		Difficulty:   in.Difficulty,
		Count:        in.Count,
		KeyPoints:    keyPoints,
	}, ragContext, in.Material)

	res, err := p.streamer.Run(runCtx, prompt, run.Ref, emit)
	if err != nil {
		run.Fail(ctx, err)
		return FailureRecord(run.Ref, err), nil
	}

	// The stream is complete. From here on a client disconnect must not lose
	// the result, so work continues detached but inside the run deadline.
	deadline, _ := runCtx.Deadline()
	postCtx, postCancel := context.WithDeadline(context.WithoutCancel(ctx), deadline)
	defer postCancel()

	entries, err := p.parser.Parse(res.Text)
	if err != nil {
		run.Fail(ctx, err)
		return FailureRecord(run.Ref, err), nil
	}

	report := p.completer.Complete(postCtx, entries, in.QuestionType)
	if err := postCtx.Err(); err != nil {
		uerr := &llm.UpstreamError{Op: "complete answers", Err: err}
		run.Fail(ctx, uerr)
		return FailureRecord(run.Ref, uerr), nil
	}

	items := BuildQuestions(ex.ID, in.QuestionType, entries)
	ex.QuestionCount = len(items)
	if err := run.CommitExercise(ctx, ex, items); err != nil {
		return FailureRecord(run.Ref, err), nil
	}

	run.log.Info().
		Int("questions", len(items)).
		Int("repaired", report.Repaired).
		Int("flagged", report.Flagged).
		Msg("Exercise generated")

	return &model.TerminalRecord{
		ResourceID:    ex.ID,
		Kind:          model.ResourceKindExercise,
		Status:        model.StatusDone,
		QuestionCount: len(items),
		FlaggedCount:  report.Flagged,
		Usage:         res.Usage,
	}, nil
}

// BuildQuestions turns parsed entries into question/answer pairs, keeping
// entry order in OrderNum.
func BuildQuestions(exerciseID uuid.UUID, qt model.QuestionType, entries []examparser.Entry) []model.QuestionWithAnswer {
	items := make([]model.QuestionWithAnswer, len(entries))
	for i, e := range entries {
		qID := uuid.New()
		items[i] = model.QuestionWithAnswer{
			Question: model.Question{
				ID:           qID,
				ExerciseID:   exerciseID,
				QuestionType: qt,
				Stem:         e.Stem,
				Options:      e.Options,
				OrderNum:     i + 1,
			},
			Answer: model.Answer{
				ID:            uuid.New(),
				QuestionID:    qID,
				CorrectAnswer: strings.TrimSpace(e.CorrectAnswer),
				Analysis:      strings.TrimSpace(e.Analysis),
				NeedsReview:   e.Flagged,
			},
		}
	}
	return items
}

// IsConflict reports whether err means the resource is busy.
func IsConflict(err error) bool {
	return ErrorCode(err) == CodeConflict
}
