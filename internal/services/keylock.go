package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// KeyLocker keeps two requests from regenerating the same cache key at once.
type KeyLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), acquired bool, err error)
}

// releaseScript deletes the lock only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisKeyLocker struct {
	redis *redis.Client
}

func NewRedisKeyLocker(client *redis.Client) *RedisKeyLocker {
	return &RedisKeyLocker{redis: client}
}

func (l *RedisKeyLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	lockKey := lockKeyFor(key)
	token := uuid.NewString()

	ok, err := l.redis.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		return func() {}, false, err
	}
	if !ok {
		return func() {}, false, nil
	}

	release := func() {
		// Release must run even when the request context is already done.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		releaseScript.Run(releaseCtx, l.redis, []string{lockKey}, token)
	}
	return release, true, nil
}

// Cache keys carry free-form tone text, so the Redis key uses a digest.
func lockKeyFor(cacheKey string) string {
	sum := sha256.Sum256([]byte(cacheKey))
	return "lock:generation:" + hex.EncodeToString(sum[:])
}
