package object_storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"insight-gateway/internal/database/drivers"
)

// MinIOClient wraps MinIO Go client
type MinIOClient struct {
	client   *minio.Client
	endpoint string
	bucket   string
}

// MinIOConfig holds MinIO configuration
type MinIOConfig struct {
	Endpoint  string // MinIO server endpoint (e.g., localhost:9000)
	AccessKey string
	SecretKey string
	Token     string // Session token for temporary credentials
	Bucket    string
	Region    string
	Secure    bool // Use HTTPS
}

// NewMinIOClient creates a new MinIO client
func NewMinIOClient(config *MinIOConfig) (*MinIOClient, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if config.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	opts := &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, config.Token),
		Secure: config.Secure,
		Region: config.Region,
	}

	client, err := minio.New(config.Endpoint, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &MinIOClient{
		client:   client,
		endpoint: config.Endpoint,
		bucket:   config.Bucket,
	}, nil
}

// List lists objects recursively under a prefix
func (c *MinIOClient) List(ctx context.Context, prefix string) ([]drivers.ObjectInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	objectCh := c.client.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	objects := make([]drivers.ObjectInfo, 0)
	for object := range objectCh {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", object.Err)
		}
		objects = append(objects, drivers.ObjectInfo{Key: object.Key, Size: object.Size})
	}

	return objects, nil
}

// Get retrieves a whole object
func (c *MinIOClient) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	obj, err := c.client.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read object data: %w", err)
	}

	return data, nil
}

// BucketExists checks that the configured bucket is reachable
func (c *MinIOClient) BucketExists(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	exists, err := c.client.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", c.bucket, err)
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", c.bucket)
	}
	return nil
}

// Endpoint returns the configured endpoint
func (c *MinIOClient) Endpoint() string {
	return c.endpoint
}
