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

// DocRepository handles doc data access.
type DocRepository struct {
	pool *pgxpool.Pool
}

// NewDocRepository creates a new DocRepository.
func NewDocRepository(pool *pgxpool.Pool) *DocRepository {
	return &DocRepository{pool: pool}
}

const docColumns = `id, owner_id, file_name, file_path, file_type, file_size, file_hash, status,
	school, major, course, knowledge_points, summary, chunk_count, created_at, updated_at`

func scanDoc(row pgx.Row, d *model.Doc) error {
	return row.Scan(&d.ID, &d.OwnerID, &d.FileName, &d.FilePath, &d.FileType, &d.FileSize, &d.FileHash, &d.Status,
		&d.School, &d.Major, &d.Course, &d.KnowledgePoints, &d.Summary, &d.ChunkCount, &d.CreatedAt, &d.UpdatedAt)
}

// Create inserts an uploaded doc.
func (r *DocRepository) Create(ctx context.Context, d *model.Doc) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.Status = model.StatusUploaded
	return r.pool.QueryRow(ctx,
		`INSERT INTO docs (id, owner_id, file_name, file_path, file_type, file_size, file_hash, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING created_at, updated_at`,
		d.ID, d.OwnerID, d.FileName, d.FilePath, d.FileType, d.FileSize, d.FileHash, d.Status,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
}

// GetByID retrieves one doc.
func (r *DocRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Doc, error) {
	d := &model.Doc{}
	err := scanDoc(r.pool.QueryRow(ctx, `SELECT `+docColumns+` FROM docs WHERE id = $1`, id), d)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// ListPaginated retrieves the docs of an owner, newest first. A non-empty
// keyword filters by file name.
func (r *DocRepository) ListPaginated(ctx context.Context, ownerID uuid.UUID, keyword string, limit, offset int) ([]model.Doc, int, error) {
	where := ` WHERE owner_id = $1`
	args := []interface{}{ownerID}
	argIdx := 2

	if keyword != "" {
		where += ` AND file_name ILIKE $` + strconv.Itoa(argIdx)
		args = append(args, "%"+keyword+"%")
		argIdx++
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM docs`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + docColumns + ` FROM docs` + where +
		` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(argIdx) + ` OFFSET $` + strconv.Itoa(argIdx+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	docs := []model.Doc{}
	for rows.Next() {
		var d model.Doc
		if err := scanDoc(rows, &d); err != nil {
			return nil, 0, err
		}
		docs = append(docs, d)
	}
	return docs, total, rows.Err()
}

// Delete removes a doc that is not being parsed.
func (r *DocRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM docs WHERE id = $1 AND status <> $2`, id, model.StatusParsing)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	return missingOrMismatch(ctx, r.pool, "docs", id)
}
