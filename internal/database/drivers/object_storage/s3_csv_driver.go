package object_storage

import (
	"context"
	"fmt"

	"insight-gateway/internal/database/drivers"
	"insight-gateway/internal/model"
)

// S3CSVSource reads the CSV exports from an S3 bucket
type S3CSVSource struct {
	*drivers.SourceBase
	client *S3Client
	prefix string
	opts   drivers.CSVOptions
}

// S3CSVSourceConfig holds S3 CSV source configuration
type S3CSVSourceConfig struct {
	S3Config *S3Config
	Prefix   string
	CSV      drivers.CSVOptions
}

// NewS3CSVSource creates a new S3 CSV source
func NewS3CSVSource(ctx context.Context, config *S3CSVSourceConfig) (*S3CSVSource, error) {
	client, err := NewS3Client(ctx, config.S3Config)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	return &S3CSVSource{
		SourceBase: drivers.NewSourceBase("s3", drivers.CategoryObjectStorage),
		client:     client,
		prefix:     config.Prefix,
		opts:       config.CSV,
	}, nil
}

// FetchTables downloads and parses every recognised CSV under the prefix
func (s *S3CSVSource) FetchTables(ctx context.Context) (map[model.TableKind]*model.RawTable, error) {
	tables, err := drivers.FetchCSVTables(ctx, s.client, s.prefix, s.opts)
	if err != nil {
		return nil, fmt.Errorf("s3 %s: %w", s.client.config.Bucket, err)
	}
	return tables, nil
}

// TestConnection checks the bucket is reachable
func (s *S3CSVSource) TestConnection(ctx context.Context) error {
	return s.client.HeadBucket(ctx)
}
