package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/km-arc/cubex/framework/container"
	"github.com/km-arc/cubex/framework/validation"
)

// Redis is a cache backed by a Redis server. Configure connects and pings
// the server, so a misconfigured cache fails at resolution time.
//
//	[cache]
//	service_provider = "cache.redis"
//	url = "redis://localhost:6379/0"   # or addr / password / db
//	prefix = "app:"
//	ttl = "10m"
type Redis struct {
	client     *redis.Client
	prefix     string
	defaultTTL time.Duration
	logger     *zap.Logger
}

// NewRedis creates an unconfigured Redis cache.
func NewRedis() *Redis {
	return &Redis{logger: zap.NewNop()}
}

// SetServiceManager implements container.ManagerAware.
func (c *Redis) SetServiceManager(m *container.Manager) {
	c.logger = m.Logger().Named("cache.redis")
}

// ConfigRules implements container.ConfigRules.
func (c *Redis) ConfigRules() validation.Rules {
	return validation.Rules{
		"url":          "url",
		"db":           "integer|gte:0",
		"pool_size":    "integer|min:1",
		"ttl":          "duration",
		"dial_timeout": "duration",
		"ping_timeout": "duration",
		"prefix":       "max:64",
	}
}

// Configure implements container.Service.
func (c *Redis) Configure(cfg *container.ServiceConfig) error {
	opts, err := redisOptions(cfg)
	if err != nil {
		return err
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration("ping_timeout", 5*time.Second))
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("%w: %s: %w", ErrConnectionFailed, opts.Addr, err)
	}

	c.client = client
	c.prefix = cfg.String("prefix", "")
	c.defaultTTL = cfg.Duration("ttl", 0)
	c.logger.Info("redis cache connected",
		zap.String("addr", opts.Addr),
		zap.Int("db", opts.DB),
		zap.String("prefix", c.prefix),
		zap.Duration("defaultTTL", c.defaultTTL),
	)
	return nil
}

func redisOptions(cfg *container.ServiceConfig) (*redis.Options, error) {
	var opts *redis.Options
	if u := cfg.String("url", ""); u != "" {
		parsed, err := redis.ParseURL(u)
		if err != nil {
			return nil, fmt.Errorf("cache: invalid redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     cfg.String("addr", "localhost:6379"),
			Username: cfg.String("username", ""),
			Password: cfg.String("password", ""),
			DB:       cfg.Int("db", 0),
		}
	}
	if n := cfg.Int("pool_size", 0); n > 0 {
		opts.PoolSize = n
	}
	if d := cfg.Duration("dial_timeout", 0); d > 0 {
		opts.DialTimeout = d
	}
	return opts, nil
}

// Client returns the underlying client, or nil before Configure.
func (c *Redis) Client() *redis.Client { return c.client }

// Get retrieves a value from the cache.
func (c *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	if c.client == nil {
		return nil, ErrNotConfigured
	}
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		c.logger.Error("redis get failed", zap.String("key", key), zap.Error(err))
		return nil, err
	}
	return val, nil
}

// Set stores a value in the cache.
func (c *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if c.client == nil {
		return ErrNotConfigured
	}
	if err := c.client.Set(ctx, c.prefix+key, value, effectiveTTL(ttl, c.defaultTTL)).Err(); err != nil {
		c.logger.Error("redis set failed", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

// Delete removes a value from the cache.
func (c *Redis) Delete(ctx context.Context, key string) error {
	if c.client == nil {
		return ErrNotConfigured
	}
	return c.client.Del(ctx, c.prefix+key).Err()
}

// Exists checks if a key exists in the cache.
func (c *Redis) Exists(ctx context.Context, key string) (bool, error) {
	if c.client == nil {
		return false, ErrNotConfigured
	}
	n, err := c.client.Exists(ctx, c.prefix+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Close closes the connection pool.
func (c *Redis) Close() error {
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}
