package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultTTL        = 10 * time.Second
	DefaultRetryDelay = 25 * time.Millisecond
	keyPrefix         = "facegate:lock:"
)

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a distributed keyed lock for multi-worker deployments. A lock expires after
// TTL if its holder dies without releasing it.
type Redis struct {
	client     redis.Cmdable
	ttl        time.Duration
	retryDelay time.Duration
}

// NewRedis creates a lock on client. Zero durations use the defaults.
func NewRedis(client redis.Cmdable, ttl, retryDelay time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	return &Redis{client: client, ttl: ttl, retryDelay: retryDelay}
}

// Connect parses a redis:// URL and verifies the server responds.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// Lock polls SET NX until the key is acquired or ctx is done.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := keyPrefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(r.retryDelay)
	defer ticker.Stop()
	for {
		ok, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("acquiring lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	return func() {
		// Release must not depend on the caller's context, which may already be cancelled.
		releaseCtx, cancel := context.WithTimeout(context.Background(), r.ttl)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, r.client, []string{redisKey}, token).Err()
	}, nil
}
