package lease

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-examgen/internal/config"
	"github.com/stemsi/exstem-examgen/internal/model"
)

// releaseScript deletes the key only while it still carries the caller's token,
// so an expired holder cannot remove a lease that was re-acquired by someone else.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisGuard shares leases across replicas through SET NX PX.
type RedisGuard struct {
	rdb *redis.Client
	ttl time.Duration
	log zerolog.Logger
}

// NewRedisGuard creates a RedisGuard.
func NewRedisGuard(rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *RedisGuard {
	return &RedisGuard{
		rdb: rdb,
		ttl: ttl,
		log: log.With().Str("component", "lease_guard").Logger(),
	}
}

// Acquire claims ref or returns *ConflictError.
func (g *RedisGuard) Acquire(ctx context.Context, ref model.ResourceRef) (*Lease, error) {
	l := newLease(ref, g.ttl, time.Now())
	key := config.CacheKey.ResourceLeaseKey(string(ref.Kind), ref.ID.String())

	ok, err := g.rdb.SetNX(ctx, key, l.HolderToken, g.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lease %s: %w", ref, err)
	}
	if !ok {
		return nil, &ConflictError{Resource: ref}
	}

	g.log.Debug().Str("resource", ref.String()).Dur("ttl", g.ttl).Msg("Lease acquired")
	return l, nil
}

// Release drops the lease if l still owns it.
func (g *RedisGuard) Release(ctx context.Context, l *Lease) error {
	if l == nil {
		return nil
	}
	key := config.CacheKey.ResourceLeaseKey(string(l.Resource.Kind), l.Resource.ID.String())

	deleted, err := releaseScript.Run(ctx, g.rdb, []string{key}, l.HolderToken).Int()
	if err != nil {
		return fmt.Errorf("release lease %s: %w", l.Resource, err)
	}
	if deleted == 0 {
		g.log.Warn().Str("resource", l.Resource.String()).Msg("Lease already expired or taken over")
	}
	return nil
}

var _ Guard = (*RedisGuard)(nil)
