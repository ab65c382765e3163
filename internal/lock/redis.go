package lock

import (
	"context" // Cancellation and deadlines
	"sync"    // Single release
	"time"    // TTL and retry pacing

	"github.com/google/uuid"       // Ownership tokens
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Structured logging
)

// releaseScript deletes the key only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker serializes keys across processes with SET NX PX.
// The TTL bounds how long a crashed holder can block others.
type RedisLocker struct {
	client  *redis.Client
	ttl     time.Duration
	timeout time.Duration
	retry   time.Duration
	prefix  string
}

// NewRedisLocker creates a distributed locker.
func NewRedisLocker(client *redis.Client, ttl, timeout time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl, timeout: timeout, retry: 20 * time.Millisecond, prefix: "lock:"}
}

// Acquire blocks until all keys are held, the timeout elapses or ctx is done.
func (l *RedisLocker) Acquire(ctx context.Context, keys ...string) (Release, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	keys = normalize(keys)
	token := uuid.NewString()
	held := make([]string, 0, len(keys))
	release := func() {
		// Release must work even when the caller's ctx is already done.
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		for i := len(held) - 1; i >= 0; i-- {
			if err := releaseScript.Run(rctx, l.client, []string{l.prefix + held[i]}, token).Err(); err != nil {
				logrus.WithFields(logrus.Fields{
					"key":   held[i],
					"error": err.Error(),
				}).Warn("Failed to release lock")
			}
		}
	}
	for _, key := range keys {
		if err := l.take(ctx, l.prefix+key, token); err != nil {
			release()
			return nil, err
		}
		held = append(held, key)
	}
	var once sync.Once
	return func() { once.Do(release) }, nil
}

func (l *RedisLocker) take(ctx context.Context, key, token string) error {
	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return timeoutErr(ctx)
			}
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return timeoutErr(ctx)
		case <-ticker.C:
		}
	}
}
