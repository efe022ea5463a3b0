package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-examgen/internal/generation"
	"github.com/stemsi/exstem-examgen/internal/model"
)

// GenerationService exposes exercise generation to the transport layer.
type GenerationService struct {
	pipeline   *generation.Pipeline
	analyzer   *generation.Analyzer
	ragEnabled bool
	log        zerolog.Logger
}

// NewGenerationService creates a new GenerationService. ragEnabled is the
// default for requests that do not say whether to use the knowledge base.
func NewGenerationService(pipeline *generation.Pipeline, analyzer *generation.Analyzer, ragEnabled bool, log zerolog.Logger) *GenerationService {
	return &GenerationService{
		pipeline:   pipeline,
		analyzer:   analyzer,
		ragEnabled: ragEnabled,
		log:        log.With().Str("component", "generation_service").Logger(),
	}
}

// InputFromRequest converts a validated request into pipeline input.
func (s *GenerationService) InputFromRequest(ownerID uuid.UUID, req *model.GenerateExerciseRequest) generation.GenerateInput {
	useRAG := s.ragEnabled
	if req.UseRAG != nil {
		useRAG = *req.UseRAG && s.ragEnabled
	}
	return generation.GenerateInput{
		OwnerID:      ownerID,
		Material:     req.Material,
		QuestionType: model.ParseQuestionType(req.QuestionType),
		Difficulty:   model.Difficulty(req.Difficulty),
		Count:        req.Count,
		Title:        req.Title,
		KeyPoints:    req.KeyPoints,
		Analyze:      req.Analyze,
		UseRAG:       useRAG,
	}
}

// Generate runs one generation. See generation.Pipeline.Generate.
func (s *GenerationService) Generate(ctx context.Context, in generation.GenerateInput, emit func(string) error) (*model.TerminalRecord, error) {
	rec, err := s.pipeline.Generate(ctx, in, emit)
	if err != nil {
		s.log.Warn().Err(err).Msg("Generation rejected")
		return nil, err
	}
	return rec, nil
}

// Analyze extracts key points without creating an exercise.
func (s *GenerationService) Analyze(ctx context.Context, req *model.AnalyzeMaterialRequest) (*generation.Analysis, error) {
	return s.analyzer.Analyze(ctx, req.Material, generation.AnalyzeOptions{
		QuestionType: model.ParseQuestionType(req.QuestionType),
		Difficulty:   model.Difficulty(req.Difficulty),
		Count:        req.Count,
	})
}

// AnalyzeText analyzes material read from a file. The returned content is
// cut to the size a generate request accepts.
func (s *GenerationService) AnalyzeText(ctx context.Context, text string, req *model.AnalyzeFileRequest) (*model.FileAnalysis, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: file has no text", generation.ErrUnsupportedDocType)
	}
	analysis, err := s.analyzer.Analyze(ctx, text, generation.AnalyzeOptions{
		QuestionType: model.ParseQuestionType(req.QuestionType),
		Difficulty:   model.Difficulty(req.Difficulty),
		Count:        req.Count,
	})
	if err != nil {
		return nil, err
	}
	return &model.FileAnalysis{
		Content:        generation.TruncateRunes(text, model.MaxMaterialRunes),
		Truncated:      utf8.RuneCountInString(text) > model.MaxMaterialRunes,
		KeyPoints:      analysis.KeyPoints,
		SuggestedTitle: analysis.SuggestedTitle,
	}, nil
}
