package generation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-examgen/internal/lease"
	"github.com/stemsi/exstem-examgen/internal/model"
)

// Store is the persistence contract the coordinator drives. Each method runs
// in its own transaction. Conditional updates that match no row return
// model.ErrStatusMismatch; missing rows return model.ErrNotFound.
type Store interface {
	// InsertExercise creates ex with status generating.
	InsertExercise(ctx context.Context, ex *model.Exercise) error
	// TransitionStatus moves ref to `to` only while its status is in `from`.
	TransitionStatus(ctx context.Context, ref model.ResourceRef, from []model.ResourceStatus, to model.ResourceStatus) error
	// FinalizeExercise writes every question and answer and sets done, all or nothing.
	FinalizeExercise(ctx context.Context, ex *model.Exercise, items []model.QuestionWithAnswer) error
	// FinalizeDoc stores the parse result and sets done, all or nothing.
	FinalizeDoc(ctx context.Context, docID uuid.UUID, summary *model.DocSummary) error
}

// Coordinator owns the status lifecycle of guarded resources.
type Coordinator struct {
	store           Store
	guard           lease.Guard
	finalizeTimeout time.Duration
	log             zerolog.Logger
}

// NewCoordinator creates a Coordinator. finalizeTimeout bounds every write
// made after streaming, which runs detached from the request context.
func NewCoordinator(store Store, guard lease.Guard, finalizeTimeout time.Duration, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		store:           store,
		guard:           guard,
		finalizeTimeout: finalizeTimeout,
		log:             log.With().Str("component", "persistence_coordinator").Logger(),
	}
}

type runState int

const (
	runActive runState = iota
	runDone
	runFailed
)

var errRunAbandoned = errors.New("run closed without commit")

// Run is one in-flight pipeline run holding a lease. A Run is used by a
// single goroutine.
type Run struct {
	Ref   model.ResourceRef
	c     *Coordinator
	lease *lease.Lease
	state runState
	log   zerolog.Logger
}

func (c *Coordinator) newRun(ref model.ResourceRef, l *lease.Lease) *Run {
	return &Run{
		Ref:   ref,
		c:     c,
		lease: l,
		log:   c.log.With().Str("resource_id", ref.ID.String()).Str("kind", string(ref.Kind)).Logger(),
	}
}

// BeginExercise acquires the lease for ex and commits it as generating
// before any generative call is made.
func (c *Coordinator) BeginExercise(ctx context.Context, ex *model.Exercise) (*Run, error) {
	if ex.ID == uuid.Nil {
		ex.ID = uuid.New()
	}
	ex.Status = model.StatusGenerating
	ref := model.ResourceRef{Kind: model.ResourceKindExercise, ID: ex.ID}

	l, err := c.guard.Acquire(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := c.store.InsertExercise(ctx, ex); err != nil {
		c.release(ctx, l)
		return nil, &PersistenceError{Op: "begin", Resource: ref, Err: err}
	}

	run := c.newRun(ref, l)
	run.log.Info().Msg("Run started")
	return run, nil
}

// BeginDoc acquires the lease for a doc and flips it to parsing. A doc that
// is already parsing yields *lease.ConflictError even when no lease is held.
func (c *Coordinator) BeginDoc(ctx context.Context, docID uuid.UUID) (*Run, error) {
	ref := model.ResourceRef{Kind: model.ResourceKindDoc, ID: docID}

	l, err := c.guard.Acquire(ctx, ref)
	if err != nil {
		return nil, err
	}

	err = c.store.TransitionStatus(ctx, ref, model.StartableStatuses(ref.Kind), model.StatusParsing)
	switch {
	case err == nil:
	case errors.Is(err, model.ErrStatusMismatch):
		c.release(ctx, l)
		return nil, &lease.ConflictError{Resource: ref}
	case errors.Is(err, model.ErrNotFound):
		c.release(ctx, l)
		return nil, err
	default:
		c.release(ctx, l)
		return nil, &PersistenceError{Op: "begin", Resource: ref, Err: err}
	}

	run := c.newRun(ref, l)
	run.log.Info().Msg("Run started")
	return run, nil
}

// finalizeContext detaches from request cancellation so results survive a
// client that disconnected after the stream finished.
func (c *Coordinator) finalizeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), c.finalizeTimeout)
}

func (c *Coordinator) release(ctx context.Context, l *lease.Lease) {
	rctx, cancel := c.finalizeContext(ctx)
	defer cancel()
	if err := c.guard.Release(rctx, l); err != nil {
		c.log.Warn().Err(err).Str("resource", l.Resource.String()).Msg("Lease release failed, relying on TTL")
	}
}

// CommitExercise writes the question batch and marks the exercise done. On
// failure the batch is rolled back and the exercise is marked failed.
func (r *Run) CommitExercise(ctx context.Context, ex *model.Exercise, items []model.QuestionWithAnswer) error {
	if r.state != runActive {
		return &PersistenceError{Op: "commit", Resource: r.Ref, Err: errors.New("run already finished")}
	}
	fctx, cancel := r.c.finalizeContext(ctx)
	defer cancel()

	if err := r.c.store.FinalizeExercise(fctx, ex, items); err != nil {
		pe := &PersistenceError{Op: "commit", Resource: r.Ref, Err: err}
		r.Fail(ctx, pe)
		return pe
	}
	r.state = runDone
	r.log.Info().Int("questions", len(items)).Msg("Run committed")
	return nil
}

// CommitDoc stores the parse result and marks the doc done.
func (r *Run) CommitDoc(ctx context.Context, summary *model.DocSummary) error {
	if r.state != runActive {
		return &PersistenceError{Op: "commit", Resource: r.Ref, Err: errors.New("run already finished")}
	}
	fctx, cancel := r.c.finalizeContext(ctx)
	defer cancel()

	if err := r.c.store.FinalizeDoc(fctx, r.Ref.ID, summary); err != nil {
		pe := &PersistenceError{Op: "commit", Resource: r.Ref, Err: err}
		r.Fail(ctx, pe)
		return pe
	}
	r.state = runDone
	r.log.Info().Int("chunks", summary.ChunkCount).Msg("Run committed")
	return nil
}

// Fail marks the resource failed in a separate best-effort write. When that
// write fails the resource stays in progress for the reconcile worker.
func (r *Run) Fail(ctx context.Context, cause error) {
	if r.state != runActive {
		return
	}
	r.state = runFailed

	fctx, cancel := r.c.finalizeContext(ctx)
	defer cancel()

	err := r.c.store.TransitionStatus(fctx, r.Ref, []model.ResourceStatus{model.InProgressStatus(r.Ref.Kind)}, model.StatusFailed)
	switch {
	case err == nil:
		r.log.Warn().Err(cause).Msg("Run failed")
	case errors.Is(err, model.ErrStatusMismatch):
		r.log.Warn().Err(cause).Msg("Run failed after status already left in-progress")
	default:
		r.log.Error().Err(err).AnErr("cause", cause).Msg("Could not mark run failed, leaving it for reconciliation")
	}
}

// Close releases the lease. A run closed while still active is failed first.
func (r *Run) Close(ctx context.Context) {
	if r.state == runActive {
		r.Fail(ctx, errRunAbandoned)
	}
	r.c.release(ctx, r.lease)
}
