package object_storage

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"insight-gateway/internal/database/drivers"
)

// S3Client wraps AWS S3 client with convenience methods
type S3Client struct {
	client *s3.Client
	config *S3Config
}

// S3Config holds S3 configuration
type S3Config struct {
	Region         string
	Bucket         string
	AccessKey      string
	SecretKey      string
	SessionToken   string // For temporary credentials
	EndpointURL    string // For S3-compatible services (MinIO, LocalStack)
	ForcePathStyle bool
	MaxRetries     int
}

// NewS3Client creates a new S3 client. Without static keys the default
// credential chain (environment, shared config, instance role) applies.
func NewS3Client(ctx context.Context, s3Config *S3Config) (*S3Client, error) {
	if s3Config.Region == "" {
		return nil, fmt.Errorf("region is required")
	}
	if s3Config.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	cfgOpts := []func(*config.LoadOptions) error{
		config.WithRegion(s3Config.Region),
	}

	if s3Config.AccessKey != "" && s3Config.SecretKey != "" {
		cfgOpts = append(cfgOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s3Config.AccessKey, s3Config.SecretKey, s3Config.SessionToken),
		))
	}

	if s3Config.MaxRetries > 0 {
		cfgOpts = append(cfgOpts, config.WithRetryMaxAttempts(s3Config.MaxRetries))
	}

	cfg, err := config.LoadDefaultConfig(ctx, cfgOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if s3Config.EndpointURL != "" {
			o.BaseEndpoint = aws.String(s3Config.EndpointURL)
		}
		o.UsePathStyle = s3Config.ForcePathStyle
	})

	return &S3Client{
		client: client,
		config: s3Config,
	}, nil
}

// List lists every object under a prefix, following continuation tokens
func (c *S3Client) List(ctx context.Context, prefix string) ([]drivers.ObjectInfo, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(c.config.Bucket),
	}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	objects := make([]drivers.ObjectInfo, 0)
	paginator := s3.NewListObjectsV2Paginator(c.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			objects = append(objects, drivers.ObjectInfo{
				Key:  aws.ToString(obj.Key),
				Size: aws.ToInt64(obj.Size),
			})
		}
	}

	return objects, nil
}

// Get retrieves an object from S3
func (c *S3Client) Get(ctx context.Context, key string) ([]byte, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(c.config.Bucket),
		Key:    aws.String(key),
	}

	result, err := c.client.GetObject(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object data: %w", err)
	}

	return data, nil
}

// HeadBucket checks that the bucket is reachable with the configured credentials
func (c *S3Client) HeadBucket(ctx context.Context) error {
	_, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.config.Bucket),
	})
	if err != nil {
		return fmt.Errorf("failed to reach bucket %s: %w", c.config.Bucket, err)
	}
	return nil
}
