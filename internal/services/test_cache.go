package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"examprep/internal/config"
	"examprep/internal/models"
	"examprep/internal/observability"
	contextutils "examprep/internal/utils"

	goredis "github.com/redis/go-redis/v9"
)

// RedisTestCache is a read-through cache of generated tests. Tests never
// change after generation, so entries only expire. A nil cache is a no-op.
type RedisTestCache struct {
	rdb    *goredis.Client
	ttl    time.Duration
	logger *observability.Logger
}

// NewRedisTestCache connects to redis. It returns nil when no address is
// configured so callers can run without a cache.
func NewRedisTestCache(ctx context.Context, cfg config.RedisConfig, logger *observability.Logger) (result0 *RedisTestCache, err error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, contextutils.WrapErrorf(contextutils.ErrServiceUnavailable, "redis ping: %w", err)
	}
	return newRedisTestCache(rdb, cfg.TTL, logger), nil
}

func newRedisTestCache(rdb *goredis.Client, ttl time.Duration, logger *observability.Logger) *RedisTestCache {
	if ttl <= 0 {
		ttl = config.DefaultTestCacheTTL
	}
	return &RedisTestCache{rdb: rdb, ttl: ttl, logger: logger}
}

func testCacheKey(exam models.ExamKind, id int) string {
	return fmt.Sprintf("examprep:test:%s:%d", exam, id)
}

// Get returns the cached test, or false on a miss or any cache error
func (c *RedisTestCache) Get(ctx context.Context, exam models.ExamKind, id int) (*models.Test, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, testCacheKey(exam, id)).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			c.logger.Warn(ctx, "Test cache read failed", map[string]interface{}{"test_id": id, "error": err.Error()})
		}
		return nil, false
	}
	var test models.Test
	if err := json.Unmarshal(raw, &test); err != nil {
		c.logger.Warn(ctx, "Discarding undecodable cached test", map[string]interface{}{"test_id": id, "error": err.Error()})
		return nil, false
	}
	return &test, true
}

// Put stores test; failures are logged and otherwise ignored
func (c *RedisTestCache) Put(ctx context.Context, test *models.Test) {
	if c == nil || test == nil {
		return
	}
	raw, err := json.Marshal(test)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, testCacheKey(test.ExamKind, test.ID), raw, c.ttl).Err(); err != nil {
		c.logger.Warn(ctx, "Test cache write failed", map[string]interface{}{"test_id": test.ID, "error": err.Error()})
	}
}

// Close releases the redis client
func (c *RedisTestCache) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}
