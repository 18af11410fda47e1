package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/Daskott/tandem/shared"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "tandem:ratelimit:"

type windowCounter interface {
	// incr bumps key & returns the new count, starting a ttl on the first hit
	incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	close() error
}

type redisCounter struct {
	rdb *redis.Client
}

func (c *redisCounter) incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var count *redis.IntCmd
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		count = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}

	return count.Val(), nil
}

func (c *redisCounter) close() error {
	return c.rdb.Close()
}

// RedisLimiter is a fixed window counter shared by every instance pointed at the same redis
type RedisLimiter struct {
	counter windowCounter
	window  Window
	now     func() time.Time
}

func NewRedisLimiter(config shared.RedisConfig, window Window) (*RedisLimiter, error) {
	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	logg.Infof("Connected to redis at %s", addr)
	return newRedisLimiter(&redisCounter{rdb: rdb}, window), nil
}

func newRedisLimiter(counter windowCounter, window Window) *RedisLimiter {
	return &RedisLimiter{counter: counter, window: window, now: time.Now}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	bucket := l.now().UnixNano() / int64(l.window.Period)
	count, err := l.counter.incr(ctx, fmt.Sprintf("%s%s:%d", keyPrefix, key, bucket), l.window.Period)
	if err != nil {
		return false, err
	}

	return count <= l.window.Limit, nil
}

func (l *RedisLimiter) Close() error {
	return l.counter.close()
}

// New returns a redis limiter when redis is configured & reachable, and a
// process local one otherwise
func New(config shared.RedisConfig) Limiter {
	window := PerMinute(config.LookupsPerMinute)
	if config.Host == "" {
		return NewLocalLimiter(window)
	}

	limiter, err := NewRedisLimiter(config, window)
	if err != nil {
		logg.Warnf("using in-process rate limiting: %v", err)
		return NewLocalLimiter(window)
	}
	return limiter
}
