// Package cache memoizes pipeline stage outputs keyed by normalized inputs.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"answer-engine/internal/common/database"
	commonerrors "answer-engine/internal/common/errors"
	"answer-engine/internal/common/logger"
	"answer-engine/internal/common/metrics"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned when the key is absent.
var ErrMiss = errors.New("cache miss")

// Cache is the stage-output memoization contract.
type Cache interface {
	Get(ctx context.Context, key string, out interface{}) error
	Put(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// RedisCache stores JSON-encoded stage outputs in redis.
type RedisCache struct {
	redis  *database.RedisClient
	prefix string
	logger logger.Logger
}

func NewRedisCache(rdb *database.RedisClient, prefix string, log logger.Logger) *RedisCache {
	return &RedisCache{
		redis:  rdb,
		prefix: prefix,
		logger: log.WithFields(map[string]interface{}{"component": "cache"}),
	}
}

// Key hashes a normalized stage input into a fixed-length cache key.
func Key(stage, normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return stage + ":" + hex.EncodeToString(sum[:16])
}

func (c *RedisCache) Get(ctx context.Context, key string, out interface{}) error {
	val, err := c.redis.Get(ctx, c.prefix+key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.CacheHits.WithLabelValues(stageOf(key), "miss").Inc()
			return ErrMiss
		}
		// A broken cache never fails the request; the stage recomputes.
		c.logger.WithError(commonerrors.NewCacheFailedError(err)).Warn("cache read failed", map[string]interface{}{
			"key": key,
		})
		return ErrMiss
	}

	if err := json.Unmarshal([]byte(val), out); err != nil {
		metrics.CacheHits.WithLabelValues(stageOf(key), "miss").Inc()
		return ErrMiss
	}

	metrics.CacheHits.WithLabelValues(stageOf(key), "hit").Inc()
	return nil
}

func (c *RedisCache) Put(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := c.redis.Set(ctx, c.prefix+key, data, ttl); err != nil {
		c.logger.WithError(commonerrors.NewCacheFailedError(err)).Warn("cache write failed", map[string]interface{}{
			"key": key,
		})
	}
	return nil
}

func stageOf(key string) string {
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			return key[:i]
		}
	}
	return "unknown"
}
