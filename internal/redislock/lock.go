package redislock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when another holder owns the lock.
var ErrNotAcquired = errors.New("redislock: lock not acquired")

// Locker serializes a named unit of work across processes. The waitlist
// reconciler uses it so overlapping timer firings or multiple workers
// never scan the same entries twice.
type Locker interface {
	WithLock(ctx context.Context, name string, fn func(ctx context.Context) error) error
}

type redisLocker struct {
	client redis.Cmdable
	ttl    time.Duration
}

// New creates a Redis-backed locker. The TTL bounds how long a crashed
// holder can block the next run.
func New(client redis.Cmdable, ttl time.Duration) Locker {
	if client == nil {
		panic("redislock: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &redisLocker{client: client, ttl: ttl}
}

// Only the token that acquired the key may delete it, so an expired
// holder cannot release its successor's lock.
var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisLocker) WithLock(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	key := "lock:" + name
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("redislock: acquire %s: %w", name, err)
	}
	if !ok {
		return ErrNotAcquired
	}

	// The release must still reach Redis when fn exits because the
	// caller's context was cancelled, so it runs on its own deadline.
	defer func() {
		_ = l.release(key, token)
	}()

	lockCtx, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(lockCtx)
}

func (l *redisLocker) release(key, token string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redislock: release %s: %w", key, err)
	}
	return nil
}
