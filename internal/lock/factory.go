package lock

import (
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/usda-monitor/pollengine/internal/config"
)

// New builds the configured Locker backend. db is required for
// LockBackendPostgres; redisClient is required for LockBackendRedis.
func New(backend string, db *sql.DB, redisClient *redis.Client, instanceID string) (Locker, error) {
	switch backend {
	case config.LockBackendPostgres:
		if db == nil {
			return nil, fmt.Errorf("lock backend %q requires a database handle", backend)
		}
		return NewPostgresLock(db), nil
	case config.LockBackendRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("lock backend %q requires a redis client", backend)
		}
		return NewRedisLock(redisClient, instanceID), nil
	default:
		return nil, fmt.Errorf("unknown lock backend %q", backend)
	}
}
