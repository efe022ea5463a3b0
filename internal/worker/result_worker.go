package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-examgen/internal/config"
	"github.com/stemsi/exstem-examgen/internal/model"
)

const (
	ResultBatchSize    = 50
	ResultBatchTimeout = 2 * time.Second
	ResultPollTimeout  = 1 * time.Second
)

// ResultWorker drains graded submissions from Redis into exercise_results.
type ResultWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewResultWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ResultWorker {
	return &ResultWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "result_worker").Logger(),
	}
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

func (w *ResultWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ResultWorker started")

	batch := make([]*model.ExerciseResult, 0, ResultBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= ResultBatchSize || time.Since(lastFlush) >= ResultBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, ResultPollTimeout, config.WorkerKey.PersistResultsQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var res model.ExerciseResult
			if err := json.Unmarshal([]byte(item[1]), &res); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}
			if res.ID == uuid.Nil {
				res.ID = uuid.New()
			}

			batch = append(batch, &res)
		}
	}
}

func (w *ResultWorker) flushSafe(ctx context.Context, batch []*model.ExerciseResult) {
	if len(batch) == 0 {
		return
	}

	if err := w.bulkInsertResults(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("batch", len(batch)).Msg("bulk result insert failed, using fallback")

		for _, res := range batch {
			if err := w.persistSingle(ctx, res); err != nil {
				w.log.Error().Err(err).Str("result_id", res.ID.String()).Msg("persistSingle failed, requeueing")
				raw, _ := json.Marshal(res)
				w.rdb.RPush(context.WithoutCancel(ctx), config.WorkerKey.PersistResultsQueue, raw)
			}
		}
		return
	}

	w.log.Debug().Int("batch", len(batch)).Msg("Results persisted")
}

// ----------------------------------------------------------------
// BULK INSERT using UNNEST
// ----------------------------------------------------------------

// Rows whose exercise was deleted in the meantime are dropped by the join.
func (w *ResultWorker) bulkInsertResults(ctx context.Context, batch []*model.ExerciseResult) error {
	n := len(batch)

	ids := make([]uuid.UUID, 0, n)
	exerciseIDs := make([]uuid.UUID, 0, n)
	ownerIDs := make([]uuid.UUID, 0, n)
	scores := make([]int32, 0, n)
	corrects := make([]int32, 0, n)
	totals := make([]int32, 0, n)
	details := make([]string, 0, n)
	createdAts := make([]time.Time, 0, n)

	for _, res := range batch {
		raw, err := detailsJSON(res)
		if err != nil {
			return err
		}
		ids = append(ids, res.ID)
		exerciseIDs = append(exerciseIDs, res.ExerciseID)
		ownerIDs = append(ownerIDs, res.OwnerID)
		scores = append(scores, int32(res.Score))
		corrects = append(corrects, int32(res.CorrectCount))
		totals = append(totals, int32(res.TotalCount))
		details = append(details, raw)
		createdAts = append(createdAts, createdAt(res))
	}

	query := `
		INSERT INTO exercise_results (id, exercise_id, owner_id, score, correct_count, total_count, details, created_at)
		SELECT u.id, u.exercise_id, u.owner_id, u.score, u.correct_count, u.total_count, u.details::jsonb, u.created_at
		FROM UNNEST(
			$1::uuid[],
			$2::uuid[],
			$3::uuid[],
			$4::int[],
			$5::int[],
			$6::int[],
			$7::text[],
			$8::timestamptz[]
		) AS u (id, exercise_id, owner_id, score, correct_count, total_count, details, created_at)
		JOIN exercises e ON e.id = u.exercise_id
		ON CONFLICT (id) DO NOTHING
	`

	_, err := w.pool.Exec(ctx, query, ids, exerciseIDs, ownerIDs, scores, corrects, totals, details, createdAts)
	return err
}

// ----------------------------------------------------------------
// FALLBACK single insert
// ----------------------------------------------------------------

func (w *ResultWorker) persistSingle(ctx context.Context, res *model.ExerciseResult) error {
	raw, err := detailsJSON(res)
	if err != nil {
		return err
	}

	_, err = w.pool.Exec(ctx,
		`INSERT INTO exercise_results (id, exercise_id, owner_id, score, correct_count, total_count, details, created_at)
		 SELECT $1, $2, $3, $4, $5, $6, $7::jsonb, $8
		 WHERE EXISTS (SELECT 1 FROM exercises WHERE id = $2)
		 ON CONFLICT (id) DO NOTHING`,
		res.ID, res.ExerciseID, res.OwnerID, res.Score, res.CorrectCount, res.TotalCount, raw, createdAt(res),
	)

	return err
}

func detailsJSON(res *model.ExerciseResult) (string, error) {
	details := res.Details
	if details == nil {
		details = []model.GradedAnswer{}
	}
	raw, err := json.Marshal(details)
	return string(raw), err
}

func createdAt(res *model.ExerciseResult) time.Time {
	if res.CreatedAt.IsZero() {
		return time.Now()
	}
	return res.CreatedAt
}
