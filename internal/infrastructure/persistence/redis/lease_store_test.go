package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuccps-hub/course-match-hub/internal/domain/candidate"
)

func testCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewCacheWithClient(client), mr
}

func testKey() candidate.Key {
	return candidate.Key{
		Email:       "jane@example.com",
		IndexNumber: "12345678901",
		Category:    candidate.CategoryDegree,
	}
}

func TestLeaseStore_AcquireIsExclusive(t *testing.T) {
	cache, _ := testCache(t)
	store := NewLeaseStore(cache)
	ctx := context.Background()

	acquired, err := store.Acquire(ctx, testKey(), "owner-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)

	again, err := store.Acquire(ctx, testKey(), "owner-2", time.Minute)
	require.NoError(t, err)
	assert.False(t, again, "a held lease must not be re-acquired")

	held, err := store.IsHeld(ctx, testKey())
	require.NoError(t, err)
	assert.True(t, held)
}

func TestLeaseStore_ReleaseRequiresMatchingOwner(t *testing.T) {
	cache, _ := testCache(t)
	store := NewLeaseStore(cache)
	ctx := context.Background()

	acquired, err := store.Acquire(ctx, testKey(), "owner-1", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	// A stranger's release must leave the lease intact.
	require.NoError(t, store.Release(ctx, testKey(), "owner-2"))
	held, err := store.IsHeld(ctx, testKey())
	require.NoError(t, err)
	assert.True(t, held)

	require.NoError(t, store.Release(ctx, testKey(), "owner-1"))
	held, err = store.IsHeld(ctx, testKey())
	require.NoError(t, err)
	assert.False(t, held)
}

func TestLeaseStore_ExpiryFreesTheKey(t *testing.T) {
	cache, mr := testCache(t)
	store := NewLeaseStore(cache)
	ctx := context.Background()

	acquired, err := store.Acquire(ctx, testKey(), "owner-1", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	mr.FastForward(2 * time.Minute)

	reacquired, err := store.Acquire(ctx, testKey(), "owner-2", time.Minute)
	require.NoError(t, err)
	assert.True(t, reacquired, "an expired lease must be acquirable")

	// The late release of the original owner must not free the new lease.
	require.NoError(t, store.Release(ctx, testKey(), "owner-1"))
	held, err := store.IsHeld(ctx, testKey())
	require.NoError(t, err)
	assert.True(t, held)
}

func TestStatusCache_RoundTripAndMiss(t *testing.T) {
	cache, mr := testCache(t)
	statuses := NewStatusCache(cache)
	ctx := context.Background()

	_, ok, err := statuses.GetReady(ctx, testKey())
	require.NoError(t, err)
	assert.False(t, ok, "a miss is not an error")

	require.NoError(t, statuses.SetReady(ctx, testKey(), 5, time.Minute))

	count, ok, err := statuses.GetReady(ctx, testKey())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 5, count)

	mr.FastForward(2 * time.Minute)

	_, ok, err = statuses.GetReady(ctx, testKey())
	require.NoError(t, err)
	assert.False(t, ok, "expired entries are misses")
}

func TestProfileStore_RoundTripAndExpiry(t *testing.T) {
	cache, mr := testCache(t)
	store := NewProfileStore(cache)
	ctx := context.Background()

	profile, err := candidate.NewProfile(candidate.NewProfileParams{
		Email:       "jane@example.com",
		IndexNumber: "12345678901",
		Category:    candidate.CategoryDegree,
		SubjectGrades: map[candidate.SubjectCode]candidate.Grade{
			"MAT": candidate.GradeA,
		},
		ClusterPoints: map[string]float64{"cluster_5": 34.2},
	})
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, profile, time.Minute))

	loaded, err := store.Get(ctx, profile.Key())
	require.NoError(t, err)
	assert.Equal(t, profile.SubjectGrades, loaded.SubjectGrades)
	assert.InDelta(t, 34.2, loaded.ClusterScore("cluster_5"), 0.001)

	require.NoError(t, store.Extend(ctx, profile.Key(), 10*time.Minute))

	mr.FastForward(11 * time.Minute)

	_, err = store.Get(ctx, profile.Key())
	require.Error(t, err)
}
