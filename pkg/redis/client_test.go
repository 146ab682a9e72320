package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/atelier-backend/pkg/config"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := Wrap(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestFixedWindowAllow(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)

	allowed, count, err := client.FixedWindowAllow(ctx, "social:uid-1", 2, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed || count != 1 {
		t.Fatalf("expected first request allowed, got allowed=%v count=%d", allowed, count)
	}
	if ttl := mr.TTL("atl:rate_limit:social:uid-1"); ttl != time.Minute {
		t.Fatalf("expected window ttl on first increment, got %v", ttl)
	}

	allowed, count, err = client.FixedWindowAllow(ctx, "social:uid-1", 2, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed || count != 2 {
		t.Fatalf("unexpected second call state allowed=%v count=%d", allowed, count)
	}

	allowed, _, err = client.FixedWindowAllow(ctx, "social:uid-1", 2, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Fatalf("expected limit reached")
	}

	mr.FastForward(time.Minute + time.Second)
	allowed, count, err = client.FixedWindowAllow(ctx, "social:uid-1", 2, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed || count != 1 {
		t.Fatalf("expected a fresh window, got allowed=%v count=%d", allowed, count)
	}
}

func TestClaimCompleteRelease(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)

	key := client.IdempotencyKey("alice|POST|/api/v1/posts", "abc")
	if key != "atl:idempotency:alice|POST|/api/v1/posts:abc" {
		t.Fatalf("unexpected key %q", key)
	}

	claimed, _, err := client.Claim(ctx, key, time.Minute)
	if err != nil || !claimed {
		t.Fatalf("expected first claim to win, claimed=%v err=%v", claimed, err)
	}
	claimed, existing, err := client.Claim(ctx, key, time.Minute)
	if err != nil || claimed || existing != ClaimPending {
		t.Fatalf("expected pending claim, claimed=%v existing=%q err=%v", claimed, existing, err)
	}

	if err := client.Complete(ctx, key, `{"status":201}`, time.Hour); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if ttl := mr.TTL(key); ttl != time.Hour {
		t.Fatalf("expected record ttl to replace claim ttl, got %v", ttl)
	}
	_, existing, _ = client.Claim(ctx, key, time.Minute)
	if existing != `{"status":201}` {
		t.Fatalf("expected stored record, got %q", existing)
	}

	if err := client.Release(ctx, key); err != nil {
		t.Fatalf("release: %v", err)
	}
	if mr.Exists(key) {
		t.Fatalf("expected key removed after release")
	}
}

func TestOptionsFromConfig(t *testing.T) {
	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatalf("expected missing url error")
	}
	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6379/3?pool_size=9", PoolSize: 7, MinIdleConns: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.DB != 3 || opts.PoolSize != 9 || opts.MinIdleConns != 2 {
		t.Fatalf("unexpected options db=%d pool=%d idle=%d", opts.DB, opts.PoolSize, opts.MinIdleConns)
	}
}
