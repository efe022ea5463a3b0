package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-examgen/internal/lease"
	"github.com/stemsi/exstem-examgen/internal/model"
)

const reconcileBatchSize = 100

// StaleStore lists and fails abandoned pipeline runs.
type StaleStore interface {
	ListStale(ctx context.Context, olderThan time.Duration, limit int) ([]model.ResourceRef, error)
	TransitionStatus(ctx context.Context, ref model.ResourceRef, from []model.ResourceStatus, to model.ResourceStatus) error
}

// ReconcileWorker fails resources left in progress by a crashed run.
type ReconcileWorker struct {
	store    StaleStore
	guard    lease.Guard
	interval time.Duration
	staleAge time.Duration
	log      zerolog.Logger
}

// NewReconcileWorker creates a new ReconcileWorker. staleAge should be the
// lease TTL so live runs are never touched.
func NewReconcileWorker(store StaleStore, guard lease.Guard, interval, staleAge time.Duration, log zerolog.Logger) *ReconcileWorker {
	return &ReconcileWorker{
		store:    store,
		guard:    guard,
		interval: interval,
		staleAge: staleAge,
		log:      log.With().Str("component", "reconcile_worker").Logger(),
	}
}

// Start runs until ctx is cancelled. Call in a goroutine.
func (w *ReconcileWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("Worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce reconciles one batch and returns how many resources it failed.
func (w *ReconcileWorker) RunOnce(ctx context.Context) int {
	refs, err := w.store.ListStale(ctx, w.staleAge, reconcileBatchSize)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Error().Err(err).Msg("List stale resources failed")
		}
		return 0
	}

	failed := 0
	for _, ref := range refs {
		if w.reconcile(ctx, ref) {
			failed++
		}
	}
	if failed > 0 {
		w.log.Info().Int("failed", failed).Int("stale", len(refs)).Msg("Stale runs reconciled")
	}
	return failed
}

func (w *ReconcileWorker) reconcile(ctx context.Context, ref model.ResourceRef) bool {
	l, err := w.guard.Acquire(ctx, ref)
	if errors.Is(err, lease.ErrConflict) {
		return false
	}
	if err != nil {
		w.log.Warn().Err(err).Str("resource", ref.String()).Msg("Lease check failed")
		return false
	}
	defer func() {
		if err := w.guard.Release(context.WithoutCancel(ctx), l); err != nil {
			w.log.Warn().Err(err).Str("resource", ref.String()).Msg("Lease release failed")
		}
	}()

	err = w.store.TransitionStatus(ctx, ref, []model.ResourceStatus{model.InProgressStatus(ref.Kind)}, model.StatusFailed)
	switch {
	case err == nil:
		w.log.Warn().Str("resource", ref.String()).Msg("Abandoned run marked failed")
		return true
	case errors.Is(err, model.ErrStatusMismatch), errors.Is(err, model.ErrNotFound):
		return false
	default:
		w.log.Error().Err(err).Str("resource", ref.String()).Msg("Mark abandoned run failed")
		return false
	}
}
