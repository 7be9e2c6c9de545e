package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/srbenoit/mathops-sub032/internal/core"
)

const defaultLockPrefix = "mathops:reconcile:lock:"

var _ core.StudentLocker = (*StudentLock)(nil)

// releaseScript deletes the lock only if the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// StudentLock is a Redis lease lock that keeps two service instances from
// reconciling the same student at once.
type StudentLock struct {
	client redis.UniversalClient
	prefix string
}

// NewStudentLock creates a StudentLock with the default key prefix.
func NewStudentLock(client redis.UniversalClient) *StudentLock {
	return &StudentLock{client: client, prefix: defaultLockPrefix}
}

// NewStudentLockWithPrefix creates a StudentLock with a custom key prefix.
func NewStudentLockWithPrefix(client redis.UniversalClient, prefix string) *StudentLock {
	return &StudentLock{client: client, prefix: prefix}
}

// TryLock acquires the lease for studentID. ok is false when another holder
// owns it. The lease expires after ttl even if release is never called.
func (l *StudentLock) TryLock(
	ctx context.Context,
	studentID string,
	ttl time.Duration,
) (func(context.Context) error, bool, error) {
	if studentID == "" {
		return nil, false, errors.New("student id is required")
	}
	if ttl <= 0 {
		return nil, false, errors.New("lock ttl must be positive")
	}

	token, err := lockToken()
	if err != nil {
		return nil, false, err
	}

	key := l.prefix + studentID
	acquired, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis setnx: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}

	release := func(rctx context.Context) error {
		if err := releaseScript.Run(rctx, l.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("redis release lock: %w", err)
		}
		return nil
	}
	return release, true, nil
}

func lockToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate lock token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
