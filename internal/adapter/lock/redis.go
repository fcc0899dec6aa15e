// Package lock provides the per-application evaluation lock backed by Redis.
package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ai-candidate-evaluator/internal/domain"
)

const keyPrefix = "eval:lock:"

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock implements domain.EvaluationLock with SET NX and a TTL. The TTL
// bounds how long a crashed worker can block its application.
type RedisLock struct {
	rdb scripterCmdable
	ttl time.Duration
}

// scripterCmdable is what the lock needs from a Redis client.
type scripterCmdable interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

// NewRedisLock returns a lock whose keys expire after ttl.
func NewRedisLock(rdb scripterCmdable, ttl time.Duration) *RedisLock {
	if ttl <= 0 {
		ttl = 45 * time.Minute
	}
	return &RedisLock{rdb: rdb, ttl: ttl}
}

// Acquire takes the lock for applicationID. It reports acquired=false when another
// run holds it.
func (l *RedisLock) Acquire(ctx domain.Context, applicationID string) (func(domain.Context), bool, error) {
	key := keyPrefix + applicationID
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("op=lock.acquire: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func(ctx domain.Context) {
		if err := releaseScript.Run(ctx, l.rdb, []string{key}, token).Err(); err != nil {
			slog.Warn("release evaluation lock failed", slog.String("key", key), slog.String("error", err.Error()))
		}
	}
	return release, true, nil
}
