// Package s3blob stores run archives and backtest series in S3-compatible
// object storage. Completed runs are uploaded as JSONL tick series; the
// backtest series source reads per-day market data objects back out of the
// same bucket.
package s3blob

import (
	"context"
	"fmt"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ClientConfig holds connection parameters for the object store. A custom
// Endpoint selects a self-hosted provider such as MinIO; empty means AWS S3.
type ClientConfig struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	// UseSSL picks the scheme when Endpoint carries none.
	UseSSL bool
	// ForcePathStyle puts the bucket in the path instead of the subdomain.
	// MinIO and most self-hosted providers require it.
	ForcePathStyle bool
}

// Client wraps the SDK client with the bucket all archive and series
// objects live in.
type Client struct {
	s3     *s3.Client
	bucket string
}

// New builds the S3 client and verifies the archive bucket is reachable.
// All blob traffic of a run goes through one bucket, so an unreachable
// bucket is a startup failure, not a per-tick one.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3blob: bucket name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3blob: region is required")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("s3blob: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(endpointURL(cfg.Endpoint, cfg.UseSSL))
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	c := &Client{s3: client, bucket: cfg.Bucket}
	if err := c.Health(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Health verifies the bucket is accessible with the configured credentials.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.s3.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err != nil {
		return fmt.Errorf("s3blob: bucket %s unreachable: %w", c.bucket, err)
	}
	return nil
}

// Close exists for the cleanup stack; the SDK holds no connection state
// that needs teardown.
func (c *Client) Close() error { return nil }

// S3 returns the underlying SDK client for the reader and writer.
func (c *Client) S3() *s3.Client { return c.s3 }

// Bucket returns the configured bucket name.
func (c *Client) Bucket() string { return c.bucket }

// endpointURL ensures the endpoint carries a scheme.
func endpointURL(endpoint string, useSSL bool) string {
	if parsed, err := url.Parse(endpoint); err == nil && parsed.Scheme != "" {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}
