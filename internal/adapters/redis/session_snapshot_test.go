package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	domainauth "github.com/srbenoit/mathops-sub032/internal/domain/auth"
	"github.com/srbenoit/mathops-sub032/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a Redis client for testing.
// Tests will be skipped if Redis is not available.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	return testutil.SetupTestRedis(t)
}

func TestSessionSnapshotStore_SaveAndRestore(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store := NewSessionSnapshotStore(SessionSnapshotOptions{Client: client, Prefix: "test:session:"})
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	live := domainauth.Session{
		ID:           "live-1",
		Tag:          42,
		AuthType:     domainauth.MethodLocal,
		Established:  now,
		LastActivity: now,
		TimeoutAt:    now.Add(30 * time.Minute),
		UserID:       "823000001",
		Role:         domainauth.RoleStudent,
		ActAsRole:    domainauth.RoleGuest,
		TimeOffset:   1000,
	}
	expired := live
	expired.ID = "expired-1"
	expired.TimeoutAt = now.Add(-time.Minute)

	require.NoError(t, store.Save(ctx, []domainauth.Session{live, expired}))

	got, err := store.Restore(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, live.ID, got[0].ID)
	assert.Equal(t, live.Tag, got[0].Tag)
	assert.Equal(t, live.Role, got[0].Role)
	assert.Equal(t, live.ActAsRole, got[0].ActAsRole)
	assert.Equal(t, live.TimeOffset, got[0].TimeOffset)
	assert.True(t, live.TimeoutAt.Equal(got[0].TimeoutAt))

	again, err := store.Restore(ctx)
	require.NoError(t, err)
	assert.Empty(t, again, "restore consumes the snapshot")
}

func TestSessionSnapshotStore_SkipsCorruptEntries(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store := NewSessionSnapshotStore(SessionSnapshotOptions{Client: client, Prefix: "test:corrupt:"})
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "test:corrupt:bad", "{not json", time.Minute).Err())
	require.NoError(t, client.Set(ctx, "test:corrupt:role", `{"id":"role","role":"wizard"}`, time.Minute).Err())

	got, err := store.Restore(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	n, err := client.Exists(ctx, "test:corrupt:bad", "test:corrupt:role").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}
