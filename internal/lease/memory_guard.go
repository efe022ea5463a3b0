package lease

import (
	"context"
	"sync"
	"time"

	"github.com/stemsi/exstem-examgen/internal/model"
)

// MemoryGuard keeps leases in process memory. It only excludes runs inside
// one process; multi-replica deployments use RedisGuard.
type MemoryGuard struct {
	mu     sync.Mutex
	ttl    time.Duration
	leases map[string]*Lease
	now    func() time.Time
	// nextSweep is when Acquire next drops lapsed leases.
	nextSweep time.Time
}

// NewMemoryGuard creates a MemoryGuard whose leases lapse after ttl.
func NewMemoryGuard(ttl time.Duration) *MemoryGuard {
	return &MemoryGuard{
		ttl:    ttl,
		leases: make(map[string]*Lease),
		now:    time.Now,
	}
}

// Acquire claims ref or returns *ConflictError.
func (g *MemoryGuard) Acquire(_ context.Context, ref model.ResourceRef) (*Lease, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.sweep(now)

	key := ref.String()
	if held, ok := g.leases[key]; ok && now.Before(held.ExpiresAt()) {
		return nil, &ConflictError{Resource: ref}
	}

	l := newLease(ref, g.ttl, now)
	g.leases[key] = l
	return l, nil
}

// sweep removes lapsed leases at most once per ttl, so the map holds only
// leases taken within the last two ttls.
func (g *MemoryGuard) sweep(now time.Time) {
	if now.Before(g.nextSweep) {
		return
	}
	for key, held := range g.leases {
		if !now.Before(held.ExpiresAt()) {
			delete(g.leases, key)
		}
	}
	g.nextSweep = now.Add(g.ttl)
}

// Release drops the lease if l still owns it.
func (g *MemoryGuard) Release(_ context.Context, l *Lease) error {
	if l == nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	key := l.Resource.String()
	if held, ok := g.leases[key]; ok && held.HolderToken == l.HolderToken {
		delete(g.leases, key)
	}
	return nil
}

var _ Guard = (*MemoryGuard)(nil)
