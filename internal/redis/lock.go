package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/telemedicine-scheduling/internal/lock"
)

const retryDelay = 25 * time.Millisecond

type redisLocker struct {
	client  *redis.Client
	ttl     time.Duration
	retries int
}

// NewRedisLocker creates a locker backed by one Redis key per lock key.
// A busy key is retried up to retries times before giving up with
// lock.ErrNotAcquired.
func NewRedisLocker(client *redis.Client, ttl time.Duration, retries int) lock.Locker {
	return &redisLocker{
		client:  client,
		ttl:     ttl,
		retries: retries,
	}
}

func (l *redisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	redisKey := "lock:" + key
	token := uuid.NewString()

	if err := l.acquire(ctx, redisKey, token); err != nil {
		return err
	}

	defer func() {
		// release with a fresh context so a cancelled caller still frees the key
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = l.release(releaseCtx, redisKey, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

func (l *redisLocker) acquire(ctx context.Context, key, token string) error {
	for attempt := 0; ; attempt++ {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return nil
		}
		if attempt >= l.retries {
			return lock.ErrNotAcquired
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelay):
		}
	}
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	return nil
}
