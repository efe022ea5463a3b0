// Package lease provides exclusive, TTL-bounded claims on resource ids so a
// resource is never processed by two pipeline runs at once.
package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-examgen/internal/model"
)

// ErrConflict matches every *ConflictError via errors.Is.
var ErrConflict = errors.New("resource is already being processed")

// ConflictError reports that another holder owns the lease for a resource.
type ConflictError struct {
	Resource model.ResourceRef
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %v", e.Resource, ErrConflict)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// Lease is an exclusive claim held by one pipeline run.
type Lease struct {
	Resource    model.ResourceRef
	HolderToken string
	AcquiredAt  time.Time
	TTL         time.Duration
}

// ExpiresAt is the moment the claim lapses without an explicit release.
func (l *Lease) ExpiresAt() time.Time {
	return l.AcquiredAt.Add(l.TTL)
}

// Guard hands out leases. Acquire never blocks: a held resource yields a
// *ConflictError immediately.
type Guard interface {
	Acquire(ctx context.Context, ref model.ResourceRef) (*Lease, error)
	Release(ctx context.Context, l *Lease) error
}

func newLease(ref model.ResourceRef, ttl time.Duration, now time.Time) *Lease {
	return &Lease{
		Resource:    ref,
		HolderToken: uuid.NewString(),
		AcquiredAt:  now,
		TTL:         ttl,
	}
}
