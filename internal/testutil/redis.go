package testutil

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// SetupTestRedis connects to TEST_REDIS_ADDR (default localhost:56379),
// selects TEST_REDIS_DB (default 1) and flushes it. The client is closed
// when the test ends.
func SetupTestRedis(t testing.TB) *redis.Client {
	t.Helper()

	addr := envOr("TEST_REDIS_ADDR", "localhost:56379")
	dbIndex, err := strconv.Atoi(envOr("TEST_REDIS_DB", "1"))
	if err != nil || dbIndex < 0 {
		t.Fatalf("invalid TEST_REDIS_DB: %q", envOr("TEST_REDIS_DB", ""))
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: dbIndex})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		closeQuietly(t, "redis", client)
		skipOrFail(t, requireRedis(), "redis not available at %s: %v", addr, err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		closeQuietly(t, "redis", client)
		t.Fatalf("flush redis db %d: %v", dbIndex, err)
	}
	t.Cleanup(func() { closeQuietly(t, "redis", client) })
	return client
}
