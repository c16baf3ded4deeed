package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hirewire/authcore/internal/domain"
)

func newTestSessionRepo(t *testing.T) (*RedisSessionRepo, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewRedisSessionRepo(rdb), mr
}

func testSession(id, userID string, ttl time.Duration) *domain.EnhancedSession {
	now := time.Now()
	return &domain.EnhancedSession{
		ID:                id,
		UserID:            userID,
		DeviceFingerprint: "fp-" + id,
		IPAddress:         "203.0.113.7",
		Location:          domain.Location{Country: "NL"},
		IsActive:          true,
		CreatedAt:         now,
		LastActivity:      now,
		ExpiresAt:         now.Add(ttl),
	}
}

func TestSessionRepoSaveAndGet(t *testing.T) {
	repo, _ := newTestSessionRepo(t)
	ctx := context.Background()

	session := testSession("sess-1", "user-1", time.Hour)
	session.Flags.DeviceChange = true
	require.NoError(t, repo.Save(ctx, session))

	loaded, err := repo.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, session.UserID, loaded.UserID)
	assert.Equal(t, session.DeviceFingerprint, loaded.DeviceFingerprint)
	assert.True(t, loaded.Flags.DeviceChange)
	assert.True(t, loaded.IsActive)
}

func TestSessionRepoGetMissing(t *testing.T) {
	repo, _ := newTestSessionRepo(t)

	_, err := repo.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSessionRepoRecordExpiresWithTTL(t *testing.T) {
	repo, mr := newTestSessionRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, testSession("sess-1", "user-1", time.Minute)))

	mr.FastForward(2 * time.Minute)

	_, err := repo.Get(ctx, "sess-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSessionRepoListByUser(t *testing.T) {
	repo, mr := newTestSessionRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, testSession("sess-1", "user-1", time.Minute)))
	require.NoError(t, repo.Save(ctx, testSession("sess-2", "user-1", time.Hour)))
	require.NoError(t, repo.Save(ctx, testSession("sess-3", "user-2", time.Hour)))

	sessions, err := repo.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, sessions, 2)

	// After sess-1 expires out of redis, listing drops it from the index.
	mr.FastForward(2 * time.Minute)
	sessions, err = repo.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "sess-2", sessions[0].ID)
}

func TestSessionRepoPruneExpired(t *testing.T) {
	repo, mr := newTestSessionRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, testSession("sess-1", "user-1", time.Minute)))
	require.NoError(t, repo.Save(ctx, testSession("sess-2", "user-2", time.Minute)))
	require.NoError(t, repo.Save(ctx, testSession("sess-3", "user-2", time.Hour)))

	mr.FastForward(2 * time.Minute)

	removed, err := repo.PruneExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	// Idempotent: a second sweep finds nothing.
	removed, err = repo.PruneExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)

	sessions, err := repo.ListByUser(ctx, "user-2")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "sess-3", sessions[0].ID)
}
