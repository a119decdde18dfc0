package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pulse/internal/observability"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultLease    = 10 * time.Second
	minRetryBackoff = 5 * time.Millisecond
	maxRetryBackoff = 100 * time.Millisecond
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a lease-based lock shared by every instance talking to the same
// Redis. The lease must outlive the longest critical section.
type Redis struct {
	client *redis.Client
	prefix string
	lease  time.Duration
}

// NewRedis returns a Redis locker. A zero lease uses the default.
func NewRedis(client *redis.Client, lease time.Duration) *Redis {
	if lease <= 0 {
		lease = defaultLease
	}
	return &Redis{client: client, prefix: "lock:", lease: lease}
}

// Acquire polls SET NX until it wins the key or ctx ends.
func (r *Redis) Acquire(ctx context.Context, key string) (Unlock, error) {
	start := time.Now()
	token := uuid.NewString()
	redisKey := r.prefix + key
	backoff := minRetryBackoff

	for {
		ok, err := r.client.SetNX(ctx, redisKey, token, r.lease).Result()
		if err != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			observability.LockWaitSeconds.WithLabelValues("redis", "acquired").Observe(time.Since(start).Seconds())
			return r.unlocker(redisKey, token), nil
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			observability.LockWaitSeconds.WithLabelValues("redis", "timeout").Observe(time.Since(start).Seconds())
			return nil, fmt.Errorf("%w: %s: %w", ErrTimeout, key, ctx.Err())
		case <-timer.C:
		}
		backoff = min(backoff*2, maxRetryBackoff)
	}
}

func (r *Redis) unlocker(redisKey, token string) Unlock {
	released := false
	return func() {
		if released {
			return
		}
		released = true
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, r.client, []string{redisKey}, token).Err(); err != nil {
			observability.Logger.WarnContext(ctx, "failed to release lock",
				slog.String("key", redisKey), slog.String("error", err.Error()))
		}
	}
}
