package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/memstream-backend/internal/platform/envutil"
)

// GroupLocker serializes ingestion per group. Two in-flight memorize calls
// for one group (possible during a partition-rebalance overlap) must not
// both run boundary detection against the same buffer.
type GroupLocker interface {
	Acquire(ctx context.Context, groupID string) (token string, ok bool, err error)
	Release(ctx context.Context, groupID, token string) error
}

// releaseScript deletes the lock only when the caller still holds it.
var releaseScript = goredis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

type redisGroupLock struct {
	rdb    *goredis.Client
	prefix string
	ttl    time.Duration
}

func NewGroupLock(rdb *goredis.Client) (GroupLocker, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	return &redisGroupLock{
		rdb:    rdb,
		prefix: envutil.Str("INGEST_LOCK_PREFIX", "lock:ingest"),
		ttl:    envutil.Seconds("INGEST_LOCK_TTL_SEC", 30),
	}, nil
}

func (l *redisGroupLock) key(groupID string) string {
	return fmt.Sprintf("%s:%s", l.prefix, groupID)
}

func (l *redisGroupLock) Acquire(ctx context.Context, groupID string) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, l.key(groupID), token, l.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire ingest lock: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (l *redisGroupLock) Release(ctx context.Context, groupID, token string) error {
	if token == "" {
		return nil
	}
	if err := releaseScript.Run(ctx, l.rdb, []string{l.key(groupID)}, token).Err(); err != nil && err != goredis.Nil {
		return fmt.Errorf("release ingest lock: %w", err)
	}
	return nil
}
