package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const backendRedis = "redis"

// releaseScript deletes the key only while it still carries the caller's token.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

type redisScripter interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// RedisLocker coordinates instances through SET NX PX keys.
type RedisLocker struct {
	client redisScripter
	prefix string
	opts   options
}

// NewRedisLocker constructs a RedisLocker over client.
func NewRedisLocker(client redisScripter, opts ...Option) *RedisLocker {
	return &RedisLocker{client: client, prefix: "lock:", opts: buildOptions(opts)}
}

// WithLock implements Locker.
func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	redisKey := l.prefix + key
	token := uuid.NewString()

	start := time.Now()
	err := poll(ctx, key, l.opts.timeout, func(ctx context.Context) error {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.opts.ttl).Result()
		if err != nil {
			return err
		}
		if !ok {
			return errHeld
		}
		return nil
	})
	l.opts.observe(backendRedis, start, err == nil)
	if err != nil {
		return err
	}
	defer l.unlock(ctx, redisKey, token)

	return fn(ctx)
}

func (l *RedisLocker) unlock(ctx context.Context, redisKey, token string) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := l.client.Eval(releaseCtx, releaseScript, []string{redisKey}, token).Err(); err != nil {
		l.opts.logger.Warn("redis lock release failed", zap.String("key", redisKey), zap.Error(fmt.Errorf("release: %w", err)))
	}
}
