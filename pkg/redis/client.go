// Package redis wraps go-redis with the handful of primitives the cart
// services use: replay records, operation claims, fixed-window counters and
// worker leases. Every key lives under the "cc" namespace.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/cartcore-backend/pkg/config"
	"github.com/angelmondragon/cartcore-backend/pkg/logger"
)

// Nil is returned by Get when the key does not exist.
var Nil = redis.Nil

var errNotInitialized = errors.New("redis client not initialized")

// deleteIfEquals removes KEYS[1] only while it still holds ARGV[1].
var deleteIfEquals = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type cmdable interface {
	redis.Scripter
	Ping(context.Context) *redis.StatusCmd
	Set(context.Context, string, any, time.Duration) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	SetNX(context.Context, string, any, time.Duration) *redis.BoolCmd
	Del(context.Context, ...string) *redis.IntCmd
	Incr(context.Context, string) *redis.IntCmd
	Expire(context.Context, string, time.Duration) *redis.BoolCmd
}

type Client struct {
	store cmdable
	raw   *redis.Client
	keys  keyspace
}

// New dials redis from config and fails unless the server answers PING.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"redis_addr": opts.Addr,
			"redis_db":   opts.DB,
			"pool_size":  opts.PoolSize,
		}), "redis connected")
	}
	return &Client{store: raw, raw: raw}, nil
}

// optionsFromConfig prefers REDIS_URL; explicit pool and timeout settings
// fill whatever the URL leaves unset.
func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	var opts *redis.Options
	switch {
	case cfg.URL != "":
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	case cfg.Address != "":
		opts = &redis.Options{Addr: cfg.Address, Password: cfg.Password}
	default:
		return nil, errors.New("redis url or address is required")
	}

	fillInt(&opts.DB, cfg.DB)
	fillInt(&opts.PoolSize, cfg.PoolSize)
	fillInt(&opts.MinIdleConns, cfg.MinIdleConns)
	fillDuration(&opts.DialTimeout, cfg.DialTimeout)
	fillDuration(&opts.ReadTimeout, cfg.ReadTimeout)
	fillDuration(&opts.WriteTimeout, cfg.WriteTimeout)
	return opts, nil
}

func fillInt(dst *int, v int) {
	if *dst == 0 {
		*dst = v
	}
}

func fillDuration(dst *time.Duration, v time.Duration) {
	if *dst == 0 {
		*dst = v
	}
}

func (c *Client) conn() (cmdable, error) {
	if c == nil || c.store == nil {
		return nil, errNotInitialized
	}
	return c.store, nil
}

func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	conn, err := c.conn()
	if err != nil {
		return err
	}
	return conn.Set(ctx, key, value, ttl).Err()
}

// Get returns the string stored at key, or Nil when it is absent.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	conn, err := c.conn()
	if err != nil {
		return "", err
	}
	return conn.Get(ctx, key).Result()
}

func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	conn, err := c.conn()
	if err != nil {
		return false, err
	}
	return conn.SetNX(ctx, key, value, ttl).Result()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	conn, err := c.conn()
	if err != nil {
		return err
	}
	return conn.Del(ctx, keys...).Err()
}

// DeleteIfEquals removes key only while it still holds value and reports
// whether it did. The check and delete run as one script.
func (c *Client) DeleteIfEquals(ctx context.Context, key, value string) (bool, error) {
	conn, err := c.conn()
	if err != nil {
		return false, err
	}
	n, err := deleteIfEquals.Run(ctx, conn, []string{key}, value).Int64()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// IncrWithTTL bumps a fixed-window counter. The first increment opens the
// window.
func (c *Client) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	conn, err := c.conn()
	if err != nil {
		return 0, err
	}
	n, err := conn.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n != 1 || ttl <= 0 {
		return n, nil
	}
	if err := conn.Expire(ctx, key, ttl).Err(); err != nil {
		return n, fmt.Errorf("open window on %s: %w", key, err)
	}
	return n, nil
}

func (c *Client) Ping(ctx context.Context) error {
	conn, err := c.conn()
	if err != nil {
		return err
	}
	return conn.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if c == nil || c.raw == nil {
		return nil
	}
	return c.raw.Close()
}

// IdempotencyKey names a stored HTTP response.
func (c *Client) IdempotencyKey(scope, id string) string {
	return c.keys.join("idempotency", scope, id)
}

// ClaimKey names a cart operation claim.
func (c *Client) ClaimKey(scope, op, id string) string {
	return c.keys.join("claim", scope, op, id)
}

func (c *Client) RateLimitKey(policy, scope, id string) string {
	return c.keys.join("rl", policy, scope, id)
}

func (c *Client) LockKey(name string) string {
	return c.keys.join("lock", name)
}
