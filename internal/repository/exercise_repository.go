package repository

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-examgen/internal/model"
)

// ExerciseRepository handles exercise reads and deletes. Writes made during
// generation go through GenerationStore.
type ExerciseRepository struct {
	pool *pgxpool.Pool
}

// NewExerciseRepository creates a new ExerciseRepository.
func NewExerciseRepository(pool *pgxpool.Pool) *ExerciseRepository {
	return &ExerciseRepository{pool: pool}
}

const exerciseColumns = `id, owner_id, title, question_type, difficulty, question_count, status, created_at, updated_at`

func scanExercise(row pgx.Row, e *model.Exercise) error {
	return row.Scan(&e.ID, &e.OwnerID, &e.Title, &e.QuestionType, &e.Difficulty, &e.QuestionCount, &e.Status, &e.CreatedAt, &e.UpdatedAt)
}

// GetByID retrieves one exercise.
func (r *ExerciseRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exercise, error) {
	e := &model.Exercise{}
	err := scanExercise(r.pool.QueryRow(ctx, `SELECT `+exerciseColumns+` FROM exercises WHERE id = $1`, id), e)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ListPaginated retrieves exercises, newest first, with optional filters.
func (r *ExerciseRepository) ListPaginated(ctx context.Context, f model.ExerciseFilter, limit, offset int) ([]model.Exercise, int, error) {
	where := ` WHERE owner_id = $1`
	args := []interface{}{f.OwnerID}
	argIdx := 2

	if f.Keyword != "" {
		where += ` AND title ILIKE $` + strconv.Itoa(argIdx)
		args = append(args, "%"+f.Keyword+"%")
		argIdx++
	}
	if f.Difficulty != "" {
		where += ` AND difficulty = $` + strconv.Itoa(argIdx)
		args = append(args, f.Difficulty)
		argIdx++
	}
	if f.QuestionType != "" {
		where += ` AND question_type = $` + strconv.Itoa(argIdx)
		args = append(args, f.QuestionType)
		argIdx++
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM exercises`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + exerciseColumns + ` FROM exercises` + where +
		` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(argIdx) + ` OFFSET $` + strconv.Itoa(argIdx+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	exercises := []model.Exercise{}
	for rows.Next() {
		var e model.Exercise
		if err := scanExercise(rows, &e); err != nil {
			return nil, 0, err
		}
		exercises = append(exercises, e)
	}
	return exercises, total, rows.Err()
}

// ListQuestions retrieves the questions of an exercise with their answers, in order.
func (r *ExerciseRepository) ListQuestions(ctx context.Context, exerciseID uuid.UUID) ([]model.QuestionWithAnswer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT q.id, q.exercise_id, q.question_type, q.stem, q.options, q.order_num, q.created_at,
		        a.id, a.correct_answer, a.analysis, a.needs_review
		 FROM questions q
		 JOIN answers a ON a.question_id = q.id
		 WHERE q.exercise_id = $1
		 ORDER BY q.order_num`, exerciseID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.QuestionWithAnswer
	for rows.Next() {
		var it model.QuestionWithAnswer
		q, a := &it.Question, &it.Answer
		if err := rows.Scan(&q.ID, &q.ExerciseID, &q.QuestionType, &q.Stem, &q.Options, &q.OrderNum, &q.CreatedAt,
			&a.ID, &a.CorrectAnswer, &a.Analysis, &a.NeedsReview); err != nil {
			return nil, err
		}
		a.QuestionID = q.ID
		items = append(items, it)
	}
	return items, rows.Err()
}

// Delete removes a finished exercise with its questions, answers and results.
// Exercises still generating are left alone and yield model.ErrStatusMismatch.
func (r *ExerciseRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM exercises WHERE id = $1 AND status <> $2`, id, model.StatusGenerating)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	return missingOrMismatch(ctx, r.pool, "exercises", id)
}

// missingOrMismatch explains why a conditional write matched no row.
func missingOrMismatch(ctx context.Context, q pgxQuerier, table string, id uuid.UUID) error {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return model.ErrNotFound
	}
	return model.ErrStatusMismatch
}

type pgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
