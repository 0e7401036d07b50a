package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	redisLockKeyPrefix = "pollengine:report_lock:"
	redisLockTTL       = 10 * time.Minute
)

var redisLockReleaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock uses SETNX with a TTL for lock acquisition and a compare-and-delete
// Lua script for release, so a process can never delete a lock another
// process re-acquired after this one's TTL expired.
type RedisLock struct {
	client     *redis.Client
	instanceID string
}

// NewRedisLock wraps a redis client; instanceID should be stable and unique
// per poller process (e.g. hostname+pid).
func NewRedisLock(client *redis.Client, instanceID string) *RedisLock {
	if instanceID == "" {
		instanceID = uuid.NewString()
	}
	return &RedisLock{client: client, instanceID: instanceID}
}

func (l *RedisLock) TryAcquire(ctx context.Context, reportID string) (bool, error) {
	key := redisLockKeyPrefix + reportID
	ok, err := l.client.SetNX(ctx, key, l.instanceID, redisLockTTL).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (l *RedisLock) Release(ctx context.Context, reportID string) error {
	key := redisLockKeyPrefix + reportID
	_, err := redisLockReleaseScript.Run(ctx, l.client, []string{key}, l.instanceID).Result()
	if err == redis.Nil {
		return nil
	}
	return err
}
