package gcs

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/atelier-backend/pkg/config"
)

func TestNewClientRequiresBucket(t *testing.T) {
	if _, err := NewClient(context.Background(), config.GCSConfig{}, config.GCPConfig{}, nil); err == nil {
		t.Fatalf("expected bucket validation error")
	}
}

func TestUninitializedClientFailsClosed(t *testing.T) {
	var c *Client
	if _, err := c.SignedDownloadURL(context.Background(), "media/a", time.Minute); err == nil {
		t.Fatalf("expected error from nil client")
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Fatalf("expected ping error from nil client")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close on nil client should be a no-op: %v", err)
	}
}
