package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/distrischool/grade-service/internal/domain/model"
	"github.com/distrischool/grade-service/pkg/logger"
	"github.com/distrischool/grade-service/pkg/metrics"
	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix = "grades:"
	defaultTTL    = 10 * time.Minute
	scanBatchSize = 100
)

// Option applies a configuration option to the RedisCache.
type Option func(*RedisCache)

// WithTTL sets the lifetime of each entry.
func WithTTL(ttl time.Duration) Option {
	return func(c *RedisCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithPrefix sets the key prefix shared by all entries.
func WithPrefix(prefix string) Option {
	return func(c *RedisCache) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *RedisCache) {
		if l != nil {
			c.log = l
		}
	}
}

// RedisCache is a Cache over a Redis client. Entries are JSON documents
// under <prefix><id>.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	log    logger.Logger
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client redis.UniversalClient, opts ...Option) *RedisCache {
	c := &RedisCache{
		client: client,
		prefix: defaultPrefix,
		ttl:    defaultTTL,
		log:    logger.Get().Named("cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial connects to addr and verifies the connection.
func Dial(ctx context.Context, addr, password string, db int, opts ...Option) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return NewRedisCache(client, opts...), nil
}

func (c *RedisCache) key(id int64) string {
	return c.prefix + strconv.FormatInt(id, 10)
}

func (c *RedisCache) Get(ctx context.Context, id int64) (model.Grade, bool) {
	raw, err := c.client.Get(ctx, c.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.RecordCacheResult("miss")
		return model.Grade{}, false
	}
	if err != nil {
		c.fail(ctx, "get", err)
		return model.Grade{}, false
	}

	var g model.Grade
	if err := json.Unmarshal(raw, &g); err != nil {
		c.fail(ctx, "decode", err)
		return model.Grade{}, false
	}
	metrics.RecordCacheResult("hit")
	return g, true
}

func (c *RedisCache) Set(ctx context.Context, g model.Grade) {
	raw, err := json.Marshal(g)
	if err != nil {
		c.fail(ctx, "encode", err)
		return
	}
	if err := c.client.Set(ctx, c.key(g.ID), raw, c.ttl).Err(); err != nil {
		c.fail(ctx, "set", err)
	}
}

// Flush deletes every key under the prefix, one SCAN batch at a time.
func (c *RedisCache) Flush(ctx context.Context) {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", scanBatchSize).Iterator()
	batch := make([]string, 0, scanBatchSize)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatchSize {
			if err := c.client.Del(ctx, batch...).Err(); err != nil {
				c.fail(ctx, "flush", err)
				return
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		c.fail(ctx, "flush", err)
		return
	}
	if len(batch) > 0 {
		if err := c.client.Del(ctx, batch...).Err(); err != nil {
			c.fail(ctx, "flush", err)
		}
	}
}

// Close releases the client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) fail(ctx context.Context, op string, err error) {
	metrics.RecordCacheResult("error")
	metrics.RecordErrorByComponent("cache", op)
	c.log.Warn(ctx, "grade cache degraded", logger.String("operation", op), logger.Error(err))
}
