package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-examgen/internal/model"
)

// ResultRepository handles graded submissions.
type ResultRepository struct {
	pool *pgxpool.Pool
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(pool *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{pool: pool}
}

// Create inserts a graded submission.
func (r *ResultRepository) Create(ctx context.Context, res *model.ExerciseResult) error {
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	details := res.Details
	if details == nil {
		details = []model.GradedAnswer{}
	}
	return r.pool.QueryRow(ctx,
		`INSERT INTO exercise_results (id, exercise_id, owner_id, score, correct_count, total_count, details)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at`,
		res.ID, res.ExerciseID, res.OwnerID, res.Score, res.CorrectCount, res.TotalCount, details,
	).Scan(&res.CreatedAt)
}

// ListByExercise retrieves submissions for an exercise, newest first.
func (r *ResultRepository) ListByExercise(ctx context.Context, exerciseID uuid.UUID) ([]model.ExerciseResult, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exercise_id, owner_id, score, correct_count, total_count, details, created_at
		 FROM exercise_results WHERE exercise_id = $1
		 ORDER BY created_at DESC`, exerciseID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []model.ExerciseResult{}
	for rows.Next() {
		var res model.ExerciseResult
		if err := rows.Scan(&res.ID, &res.ExerciseID, &res.OwnerID, &res.Score, &res.CorrectCount, &res.TotalCount, &res.Details, &res.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}
