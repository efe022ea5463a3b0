package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-examgen/internal/generation"
	"github.com/stemsi/exstem-examgen/internal/model"
)

// GenerationStore persists pipeline status transitions and results.
type GenerationStore struct {
	pool *pgxpool.Pool
}

// NewGenerationStore creates a new GenerationStore.
func NewGenerationStore(pool *pgxpool.Pool) *GenerationStore {
	return &GenerationStore{pool: pool}
}

var _ generation.Store = (*GenerationStore)(nil)

func tableFor(kind model.ResourceKind) (string, error) {
	switch kind {
	case model.ResourceKindDoc:
		return "docs", nil
	case model.ResourceKindExercise:
		return "exercises", nil
	default:
		return "", fmt.Errorf("unknown resource kind %q", kind)
	}
}

// InsertExercise creates the exercise row in its in-progress status.
func (s *GenerationStore) InsertExercise(ctx context.Context, ex *model.Exercise) error {
	return s.pool.QueryRow(ctx,
		`INSERT INTO exercises (id, owner_id, title, question_type, difficulty, question_count, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at, updated_at`,
		ex.ID, ex.OwnerID, ex.Title, ex.QuestionType, ex.Difficulty, ex.QuestionCount, ex.Status,
	).Scan(&ex.CreatedAt, &ex.UpdatedAt)
}

// TransitionStatus is a conditional update; concurrent callers cannot both win.
func (s *GenerationStore) TransitionStatus(ctx context.Context, ref model.ResourceRef, from []model.ResourceStatus, to model.ResourceStatus) error {
	table, err := tableFor(ref.Kind)
	if err != nil {
		return err
	}
	fromStr := make([]string, len(from))
	for i, st := range from {
		fromStr[i] = string(st)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE `+table+` SET status = $1, updated_at = NOW()
		 WHERE id = $2 AND status = ANY($3)`,
		to, ref.ID, fromStr,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return missingOrMismatch(ctx, s.pool, table, ref.ID)
}

// FinalizeExercise inserts every question and answer and flips the exercise
// to done in one transaction.
func (s *GenerationStore) FinalizeExercise(ctx context.Context, ex *model.Exercise, items []model.QuestionWithAnswer) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, it := range items {
			opts, err := model.OptionsJSON(it.Question.Options)
			if err != nil {
				return err
			}
			batch.Queue(
				`INSERT INTO questions (id, exercise_id, question_type, stem, options, order_num)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				it.Question.ID, ex.ID, it.Question.QuestionType, it.Question.Stem, opts, it.Question.OrderNum,
			)
			batch.Queue(
				`INSERT INTO answers (id, question_id, correct_answer, analysis, needs_review)
				 VALUES ($1, $2, $3, $4, $5)`,
				it.Answer.ID, it.Question.ID, it.Answer.CorrectAnswer, it.Answer.Analysis, it.Answer.NeedsReview,
			)
		}
		if batch.Len() > 0 {
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return fmt.Errorf("insert questions: %w", err)
			}
		}

		tag, err := tx.Exec(ctx,
			`UPDATE exercises SET status = $1, title = $2, question_count = $3, updated_at = NOW()
			 WHERE id = $4 AND status = $5`,
			model.StatusDone, ex.Title, ex.QuestionCount, ex.ID, model.StatusGenerating,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() != 1 {
			return model.ErrStatusMismatch
		}
		return nil
	})
}

// FinalizeDoc stores the parse result and flips the doc to done.
func (s *GenerationStore) FinalizeDoc(ctx context.Context, docID uuid.UUID, sum *model.DocSummary) error {
	points := sum.KnowledgePoints
	if points == nil {
		points = []string{}
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE docs SET status = $1, school = $2, major = $3, course = $4, knowledge_points = $5,
		        summary = $6, chunk_count = $7, updated_at = NOW()
		 WHERE id = $8 AND status = $9`,
		model.StatusDone, sum.School, sum.Major, sum.Course, points, sum.Summary, sum.ChunkCount, docID, model.StatusParsing,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return missingOrMismatch(ctx, s.pool, "docs", docID)
	}
	return nil
}

// ListStale returns in-progress resources untouched for longer than olderThan.
func (s *GenerationStore) ListStale(ctx context.Context, olderThan time.Duration, limit int) ([]model.ResourceRef, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT 'exercise', id FROM exercises WHERE status = $1 AND updated_at < NOW() - $3::interval
		 UNION ALL
		 SELECT 'doc', id FROM docs WHERE status = $2 AND updated_at < NOW() - $3::interval
		 LIMIT $4`,
		model.StatusGenerating, model.StatusParsing, olderThan, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []model.ResourceRef
	for rows.Next() {
		var ref model.ResourceRef
		if err := rows.Scan(&ref.Kind, &ref.ID); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}
