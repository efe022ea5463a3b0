package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-examgen/internal/config"
	"github.com/stemsi/exstem-examgen/internal/model"
	"github.com/stemsi/exstem-examgen/internal/repository"
	"github.com/stemsi/exstem-examgen/internal/response"
)

// Domain Errors
var (
	ErrExerciseNotReady = errors.New("exercise has not finished generating")
	ErrExerciseBusy     = errors.New("exercise is still generating")
)

// detailCacheTTL bounds how long a finished exercise stays in Redis.
const detailCacheTTL = 24 * time.Hour

// ExerciseService handles exercise reads, deletes and grading.
type ExerciseService struct {
	exerciseRepo *repository.ExerciseRepository
	resultRepo   *repository.ResultRepository
	rdb          *redis.Client
	log          zerolog.Logger
}

// NewExerciseService creates a new ExerciseService.
func NewExerciseService(
	exerciseRepo *repository.ExerciseRepository,
	resultRepo *repository.ResultRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *ExerciseService {
	return &ExerciseService{
		exerciseRepo: exerciseRepo,
		resultRepo:   resultRepo,
		rdb:          rdb,
		log:          log.With().Str("component", "exercise_service").Logger(),
	}
}

// List retrieves exercises with pagination.
func (s *ExerciseService) List(ctx context.Context, f model.ExerciseFilter, page, perPage int) ([]model.Exercise, *response.Pagination, error) {
	page, perPage = response.NormalizePage(page, perPage)

	exercises, total, err := s.exerciseRepo.ListPaginated(ctx, f, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, err
	}
	return exercises, response.NewPagination(page, perPage, total), nil
}

// GetDetail returns an exercise with its questions. Finished exercises are
// immutable, so their detail is served from Redis once warmed.
func (s *ExerciseService) GetDetail(ctx context.Context, id uuid.UUID) (*model.ExerciseDetail, error) {
	if cached, err := s.cachedDetail(ctx, id); err == nil {
		return cached, nil
	} else if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Str("exercise_id", id.String()).Msg("Detail cache read failed")
	}

	ex, err := s.exerciseRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &model.ExerciseDetail{Exercise: *ex, Questions: []model.QuestionDetail{}}
	if ex.Status != model.StatusDone {
		return detail, nil
	}

	items, err := s.exerciseRepo.ListQuestions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	for _, it := range items {
		detail.Questions = append(detail.Questions, toQuestionDetail(it))
	}

	if err := s.warmCache(ctx, detail); err != nil {
		s.log.Warn().Err(err).Str("exercise_id", id.String()).Msg("Detail cache warm failed")
	}
	return detail, nil
}

func toQuestionDetail(it model.QuestionWithAnswer) model.QuestionDetail {
	opts := it.Question.Options
	if opts == nil {
		opts = []model.Option{}
	}
	return model.QuestionDetail{
		ID:            it.Question.ID,
		QuestionType:  it.Question.QuestionType.PublicType(),
		Stem:          it.Question.Stem,
		Options:       model.OptionMap(opts),
		OptionList:    opts,
		OrderNum:      it.Question.OrderNum,
		CorrectAnswer: it.Answer.CorrectAnswer,
		Analysis:      it.Answer.Analysis,
		NeedsReview:   it.Answer.NeedsReview,
	}
}

func (s *ExerciseService) cachedDetail(ctx context.Context, id uuid.UUID) (*model.ExerciseDetail, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.ExerciseDetailKey(id.String())).Bytes()
	if err != nil {
		return nil, err
	}
	var detail model.ExerciseDetail
	if err := json.Unmarshal(data, &detail); err != nil {
		return nil, fmt.Errorf("unmarshal detail: %w", err)
	}
	return &detail, nil
}

// warmCache stores the detail payload of a finished exercise.
func (s *ExerciseService) warmCache(ctx context.Context, detail *model.ExerciseDetail) error {
	payload, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("marshal detail: %w", err)
	}
	return s.rdb.Set(ctx, config.CacheKey.ExerciseDetailKey(detail.ID.String()), payload, detailCacheTTL).Err()
}

func (s *ExerciseService) dropCache(ctx context.Context, id uuid.UUID) {
	err := s.rdb.Del(ctx, config.CacheKey.ExerciseDetailKey(id.String())).Err()
	if err != nil {
		s.log.Warn().Err(err).Str("exercise_id", id.String()).Msg("Cache eviction failed")
	}
}

// Delete removes a finished or failed exercise.
func (s *ExerciseService) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.exerciseRepo.Delete(ctx, id)
	if errors.Is(err, model.ErrStatusMismatch) {
		return ErrExerciseBusy
	}
	if err != nil {
		return err
	}
	s.dropCache(ctx, id)
	s.log.Info().Str("exercise_id", id.String()).Msg("Exercise deleted")
	return nil
}

// Submit grades answers against a finished exercise. The result is returned
// at once and persisted by the result worker.
func (s *ExerciseService) Submit(ctx context.Context, id, ownerID uuid.UUID, answers map[string]string) (*model.ExerciseResult, error) {
	detail, err := s.GetDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	if detail.Status != model.StatusDone {
		return nil, ErrExerciseNotReady
	}

	items := make([]model.QuestionWithAnswer, len(detail.Questions))
	for i, q := range detail.Questions {
		items[i] = model.QuestionWithAnswer{
			Question: model.Question{ID: q.ID, QuestionType: model.ParseQuestionType(q.QuestionType), OrderNum: q.OrderNum},
			Answer:   model.Answer{QuestionID: q.ID, CorrectAnswer: q.CorrectAnswer, Analysis: q.Analysis},
		}
	}

	res := BuildResult(id, ownerID, items, answers)
	res.CreatedAt = time.Now()

	raw, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, raw).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Result queue unavailable, writing directly")
		if err := s.resultRepo.Create(ctx, res); err != nil {
			return nil, fmt.Errorf("save result: %w", err)
		}
	}

	s.log.Info().
		Str("exercise_id", id.String()).
		Int("score", res.Score).
		Msg("Exercise graded")
	return res, nil
}

// ListResults returns persisted submissions of an exercise.
func (s *ExerciseService) ListResults(ctx context.Context, id uuid.UUID) ([]model.ExerciseResult, error) {
	if _, err := s.exerciseRepo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.resultRepo.ListByExercise(ctx, id)
}
