// Package redis holds the short-lived coordination state of the API: rate
// limit windows and idempotency records.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/atelier-backend/pkg/config"
	"github.com/angelmondragon/atelier-backend/pkg/logger"
)

const keyNamespace = "atl"

// ClaimPending is stored under an idempotency key while its first request runs.
const ClaimPending = "pending"

// fixedWindow increments the counter and starts its window on the first hit
// in one round trip, so a crash between the two cannot leave a counter without a ttl.
var fixedWindow = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// IdempotencyStore is the slice of Client the idempotency middleware needs.
type IdempotencyStore interface {
	IdempotencyKey(scope string, parts ...string) string
	Claim(ctx context.Context, key string, ttl time.Duration) (claimed bool, existing string, err error)
	Complete(ctx context.Context, key, record string, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

type Client struct {
	rdb *redis.Client
}

// New dials Redis using cfg and fails fast when it is unreachable.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "redis_db", opts.DB), "redis connected")
	}
	return Wrap(rdb), nil
}

// Wrap adopts an existing go-redis client, e.g. one pointed at miniredis.
func Wrap(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// optionsFromConfig parses the URL; pool and timeout settings in the URL win
// over the discrete config fields.
func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis url is required")
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	setIfZero(&opts.PoolSize, cfg.PoolSize)
	setIfZero(&opts.MinIdleConns, cfg.MinIdleConns)
	setIfZero(&opts.DialTimeout, cfg.DialTimeout)
	setIfZero(&opts.ReadTimeout, cfg.ReadTimeout)
	setIfZero(&opts.WriteTimeout, cfg.WriteTimeout)
	return opts, nil
}

func setIfZero[T comparable](dst *T, v T) {
	var zero T
	if *dst == zero {
		*dst = v
	}
}

// FixedWindowAllow counts one hit against scope and reports whether the
// caller is still within limit for the current window.
func (c *Client) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	count, err := fixedWindow.Run(ctx, c.rdb, []string{c.key("rate_limit", scope)}, window.Milliseconds()).Int64()
	if err != nil {
		return false, 0, fmt.Errorf("rate window %s: %w", scope, err)
	}
	return count <= limit, count, nil
}

func (c *Client) IdempotencyKey(scope string, parts ...string) string {
	return c.key(append([]string{"idempotency", scope}, parts...)...)
}

// Claim marks key as in flight for ttl. When another request already holds or
// completed the key, claimed is false and existing carries its stored value
// (ClaimPending while that request is still running).
func (c *Client) Claim(ctx context.Context, key string, ttl time.Duration) (bool, string, error) {
	ok, err := c.rdb.SetNX(ctx, key, ClaimPending, ttl).Result()
	if err != nil {
		return false, "", err
	}
	if ok {
		return true, "", nil
	}
	existing, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// expired between the two calls; treat as still pending
		return false, ClaimPending, nil
	}
	return false, existing, err
}

// Complete replaces the claim with the final record.
func (c *Client) Complete(ctx context.Context, key, record string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, record, ttl).Err()
}

// Release drops a claim so the client may retry with the same key.
func (c *Client) Release(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) key(parts ...string) string {
	clean := make([]string, 0, len(parts)+1)
	clean = append(clean, keyNamespace)
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			clean = append(clean, part)
		}
	}
	return strings.Join(clean, ":")
}
