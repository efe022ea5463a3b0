package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-examgen/internal/model"
)

// OwnerRepository handles the placeholder owner row.
type OwnerRepository struct {
	pool *pgxpool.Pool
}

// NewOwnerRepository creates a new OwnerRepository.
func NewOwnerRepository(pool *pgxpool.Pool) *OwnerRepository {
	return &OwnerRepository{pool: pool}
}

// EnsureDefault creates the owner if missing and returns it. Safe to call on every start.
func (r *OwnerRepository) EnsureDefault(ctx context.Context, id uuid.UUID, name string) (*model.Owner, error) {
	o := &model.Owner{}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (id, name) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET name = users.name
		 RETURNING id, name, created_at`,
		id, name,
	).Scan(&o.ID, &o.Name, &o.CreatedAt)
	if err != nil {
		return nil, err
	}
	return o, nil
}
