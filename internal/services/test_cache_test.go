package services

import (
	"context"
	"testing"
	"time"

	"examprep/internal/config"
	"examprep/internal/models"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisTestCache_NilIsNoop(t *testing.T) {
	var c *RedisTestCache
	_, ok := c.Get(context.Background(), models.ExamIELTS, 1)
	assert.False(t, ok)
	c.Put(context.Background(), &models.Test{ID: 1})
	assert.NoError(t, c.Close())
}

func TestNewRedisTestCache_DisabledWithoutAddr(t *testing.T) {
	c, err := NewRedisTestCache(context.Background(), config.RedisConfig{}, testLogger())
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestRedisTestCache_UnreachableServerIsAMiss(t *testing.T) {
	rdb := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	c := newRedisTestCache(rdb, 0, testLogger())
	t.Cleanup(func() { _ = c.Close() })

	assert.Equal(t, config.DefaultTestCacheTTL, c.ttl)
	c.Put(context.Background(), &models.Test{ID: 3, ExamKind: models.ExamTOEIC})
	_, ok := c.Get(context.Background(), models.ExamTOEIC, 3)
	assert.False(t, ok)
}

func TestTestCacheKey(t *testing.T) {
	assert.Equal(t, "examprep:test:toeic:42", testCacheKey(models.ExamTOEIC, 42))
}
