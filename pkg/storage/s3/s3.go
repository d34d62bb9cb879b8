// Package s3 provides the AWS S3 client for the delivery destination.
//
// The transform path never touches the bucket; the client exists for the
// deployment surface around it: verifying the destination at startup and
// uploading reshaped payloads from the CLI and watch modes.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/tabflow/tabflow/pkg/errors"
)

// Config holds S3 client configuration.
type Config struct {
	// Region is the AWS region (e.g., "us-east-1")
	Region string

	// Bucket is the destination bucket name
	Bucket string

	// Endpoint overrides the default S3 endpoint (for S3-compatible services)
	Endpoint string

	// UsePathStyle forces path-style addressing (for MinIO, LocalStack)
	UsePathStyle bool

	// Credentials (optional - uses default chain if not provided)
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// Timeouts
	OperationTimeout time.Duration
	UploadTimeout    time.Duration
}

// DefaultConfig returns sensible defaults for S3 configuration.
func DefaultConfig(bucket, region string) Config {
	return Config{
		Bucket:           bucket,
		Region:           region,
		OperationTimeout: 30 * time.Second,
		UploadTimeout:    2 * time.Minute,
	}
}

// Client provides destination bucket operations.
type Client struct {
	cfg    Config
	client *s3.Client
}

// NewClient creates a new S3 client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	// Build AWS config options
	var opts []func(*config.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	// Use explicit credentials if provided
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				cfg.SessionToken,
			),
		))
	}

	// Load AWS config
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Create S3 client options
	s3Opts := []func(*s3.Options){}

	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)

	return &Client{
		cfg:    cfg,
		client: client,
	}, nil
}

// Bucket returns the destination bucket name.
func (c *Client) Bucket() string {
	return c.cfg.Bucket
}

// Verify checks that the destination bucket exists and is reachable.
// Called at startup so a misconfigured destination fails fast.
func (c *Client) Verify(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.OperationTimeout)
	defer cancel()

	_, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.cfg.Bucket),
	})
	if err != nil {
		return fmt.Errorf("destination bucket %s is not reachable: %w", c.cfg.Bucket, err)
	}
	return nil
}

// Put uploads an object to the destination bucket.
func (c *Client) Put(ctx context.Context, key string, data []byte, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.UploadTimeout)
	defer cancel()

	input := &s3.PutObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := c.client.PutObject(ctx, input); err != nil {
		return errors.Wrapf(err, errors.CodeUploadFailed,
			"failed to put object %s/%s", c.cfg.Bucket, key)
	}
	return nil
}
