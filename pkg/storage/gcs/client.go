package gcs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/angelmondragon/atelier-backend/pkg/config"
	"github.com/angelmondragon/atelier-backend/pkg/logger"
)

// Client issues V4 signed URLs against a single bucket.
type Client struct {
	client *storage.Client
	bucket string
}

// NewClient builds a storage client using explicit JSON credentials when
// provided and application default credentials otherwise.
func NewClient(ctx context.Context, cfg config.GCSConfig, gcp config.GCPConfig, logg *logger.Logger) (*Client, error) {
	bucket := strings.TrimSpace(cfg.BucketName)
	if bucket == "" {
		return nil, errors.New("gcs bucket name is required")
	}

	var opts []option.ClientOption
	if gcp.CredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(gcp.CredentialsJSON)))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gcs client: %w", err)
	}

	if logg != nil {
		logCtx := logg.WithField(ctx, "bucket", bucket)
		logg.Info(logCtx, "gcs client initialized")
	}
	return &Client{client: client, bucket: bucket}, nil
}

// Bucket returns the configured bucket name.
func (c *Client) Bucket() string {
	return c.bucket
}

// Close releases the underlying client.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Ping verifies the bucket is reachable with the configured credentials.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("gcs client not initialized")
	}
	if _, err := c.client.Bucket(c.bucket).Attrs(ctx); err != nil {
		return fmt.Errorf("gcs bucket check failed: %w", err)
	}
	return nil
}

// SignedUploadURL returns a PUT URL restricted to the given content type.
func (c *Client) SignedUploadURL(_ context.Context, key, contentType string, ttl time.Duration) (string, error) {
	return c.sign(key, &storage.SignedURLOptions{
		Scheme:      storage.SigningSchemeV4,
		Method:      http.MethodPut,
		ContentType: contentType,
		Expires:     time.Now().Add(ttl),
	})
}

// SignedDownloadURL returns a GET URL for the object.
func (c *Client) SignedDownloadURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	return c.sign(key, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(ttl),
	})
}

func (c *Client) sign(key string, opts *storage.SignedURLOptions) (string, error) {
	if c == nil || c.client == nil {
		return "", errors.New("gcs client not initialized")
	}
	if strings.TrimSpace(key) == "" {
		return "", errors.New("object key is required")
	}
	url, err := c.client.Bucket(c.bucket).SignedURL(key, opts)
	if err != nil {
		return "", fmt.Errorf("signing %s url: %w", opts.Method, err)
	}
	return url, nil
}
