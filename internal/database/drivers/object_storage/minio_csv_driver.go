package object_storage

import (
	"context"
	"fmt"

	"insight-gateway/internal/database/drivers"
	"insight-gateway/internal/model"
)

// MinIOCSVSource reads the CSV exports from a MinIO bucket
type MinIOCSVSource struct {
	*drivers.SourceBase
	client *MinIOClient
	prefix string
	opts   drivers.CSVOptions
}

// MinIOCSVSourceConfig holds MinIO CSV source configuration
type MinIOCSVSourceConfig struct {
	MinIOConfig *MinIOConfig
	Prefix      string
	CSV         drivers.CSVOptions
}

// NewMinIOCSVSource creates a new MinIO CSV source
func NewMinIOCSVSource(config *MinIOCSVSourceConfig) (*MinIOCSVSource, error) {
	client, err := NewMinIOClient(config.MinIOConfig)
	if err != nil {
		return nil, err
	}

	return &MinIOCSVSource{
		SourceBase: drivers.NewSourceBase("minio", drivers.CategoryObjectStorage),
		client:     client,
		prefix:     config.Prefix,
		opts:       config.CSV,
	}, nil
}

// FetchTables downloads and parses every recognised CSV under the prefix
func (s *MinIOCSVSource) FetchTables(ctx context.Context) (map[model.TableKind]*model.RawTable, error) {
	tables, err := drivers.FetchCSVTables(ctx, s.client, s.prefix, s.opts)
	if err != nil {
		return nil, fmt.Errorf("minio %s: %w", s.client.Endpoint(), err)
	}
	return tables, nil
}

// TestConnection checks the bucket exists
func (s *MinIOCSVSource) TestConnection(ctx context.Context) error {
	return s.client.BucketExists(ctx)
}
