package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LoginThrottle limits repeated failed login attempts per key.
type LoginThrottle interface {
	Allow(ctx context.Context, key string) (bool, error)
	RecordFailure(ctx context.Context, key string) error
	Reset(ctx context.Context, key string) error
}

type redisLoginThrottle struct {
	client *redis.Client
	max    int
	window time.Duration
}

// NewRedisLoginThrottle builds a Redis-backed failed-login counter. A nil
// client disables throttling entirely.
func NewRedisLoginThrottle(client *redis.Client, maxAttempts int, window time.Duration) LoginThrottle {
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &redisLoginThrottle{client: client, max: maxAttempts, window: window}
}

func (t *redisLoginThrottle) Allow(ctx context.Context, key string) (bool, error) {
	if t.client == nil {
		return true, nil
	}
	count, err := t.client.Get(ctx, t.redisKey(key)).Int()
	if err == redis.Nil {
		return true, nil
	}
	if err != nil {
		// Redis being down must not lock everyone out.
		return true, err
	}
	return count < t.max, nil
}

func (t *redisLoginThrottle) RecordFailure(ctx context.Context, key string) error {
	if t.client == nil {
		return nil
	}
	rkey := t.redisKey(key)
	pipe := t.client.TxPipeline()
	pipe.Incr(ctx, rkey)
	pipe.ExpireNX(ctx, rkey, t.window)
	_, err := pipe.Exec(ctx)
	return err
}

func (t *redisLoginThrottle) Reset(ctx context.Context, key string) error {
	if t.client == nil {
		return nil
	}
	return t.client.Del(ctx, t.redisKey(key)).Err()
}

func (t *redisLoginThrottle) redisKey(key string) string {
	return fmt.Sprintf("login_attempts:%s", key)
}
