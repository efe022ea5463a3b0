package lease

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-examgen/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseRef() model.ResourceRef {
	return model.ResourceRef{Kind: model.ResourceKindExercise, ID: uuid.New()}
}

// assertSingleWinner races n acquires on one resource and checks that exactly
// one wins, then that the resource can be re-acquired after release.
func assertSingleWinner(t *testing.T, g Guard, n int) {
	t.Helper()
	ctx := context.Background()
	ref := exerciseRef()

	var (
		wins      atomic.Int32
		conflicts atomic.Int32
		winner    *Lease
		mu        sync.Mutex
		wg        sync.WaitGroup
		start     = make(chan struct{})
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			l, err := g.Acquire(ctx, ref)
			if err != nil {
				if errors.Is(err, ErrConflict) {
					conflicts.Add(1)
				}
				return
			}
			wins.Add(1)
			mu.Lock()
			winner = l
			mu.Unlock()
		}()
	}
	close(start)
	wg.Wait()

	require.Equal(t, int32(1), wins.Load())
	require.Equal(t, int32(n-1), conflicts.Load())

	require.NoError(t, g.Release(ctx, winner))
	again, err := g.Acquire(ctx, ref)
	require.NoError(t, err)
	require.NoError(t, g.Release(ctx, again))
}

func TestMemoryGuardSingleWinner(t *testing.T) {
	assertSingleWinner(t, NewMemoryGuard(time.Minute), 16)
}

func TestMemoryGuardConflictCarriesResource(t *testing.T) {
	g := NewMemoryGuard(time.Minute)
	ref := exerciseRef()

	_, err := g.Acquire(context.Background(), ref)
	require.NoError(t, err)

	_, err = g.Acquire(context.Background(), ref)
	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ref, ce.Resource)
}

func TestMemoryGuardExpiredLeaseCanBeTakenOver(t *testing.T) {
	g := NewMemoryGuard(time.Minute)
	now := time.Now()
	g.now = func() time.Time { return now }
	ref := exerciseRef()

	stale, err := g.Acquire(context.Background(), ref)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	fresh, err := g.Acquire(context.Background(), ref)
	require.NoError(t, err)

	// The stale holder must not remove the new holder's claim.
	require.NoError(t, g.Release(context.Background(), stale))
	_, err = g.Acquire(context.Background(), ref)
	require.ErrorIs(t, err, ErrConflict)

	require.NoError(t, g.Release(context.Background(), fresh))
	_, err = g.Acquire(context.Background(), ref)
	require.NoError(t, err)
}

func TestMemoryGuardDropsLapsedLeases(t *testing.T) {
	g := NewMemoryGuard(time.Minute)
	now := time.Now()
	g.now = func() time.Time { return now }

	for range 100 {
		_, err := g.Acquire(context.Background(), exerciseRef())
		require.NoError(t, err)
	}
	assert.Len(t, g.leases, 100)

	now = now.Add(2 * time.Minute)
	live, err := g.Acquire(context.Background(), exerciseRef())
	require.NoError(t, err)
	assert.Len(t, g.leases, 1)

	_, err = g.Acquire(context.Background(), live.Resource)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestMemoryGuardReleaseNil(t *testing.T) {
	assert.NoError(t, NewMemoryGuard(time.Minute).Release(context.Background(), nil))
}

func TestRedisGuardSingleWinner(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	opt, err := redis.ParseURL(url)
	require.NoError(t, err)
	rdb := redis.NewClient(opt)
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.Ping(context.Background()).Err())

	assertSingleWinner(t, NewRedisGuard(rdb, time.Minute, zerolog.Nop()), 16)
}
