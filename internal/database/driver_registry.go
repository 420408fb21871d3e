package database

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"insight-gateway/internal/config"
	"insight-gateway/internal/database/drivers"
	"insight-gateway/internal/database/drivers/file_system"
	"insight-gateway/internal/database/drivers/object_storage"
)

// SourceFactory builds a source from its configuration
type SourceFactory func(ctx context.Context, cfg config.SourceConfig) (drivers.Source, error)

// SourceRegistry manages source factories by source type
type SourceRegistry struct {
	sources map[string]SourceFactory
	mutex   sync.RWMutex
}

// NewSourceRegistry creates a registry with the local, minio and s3 sources
func NewSourceRegistry() *SourceRegistry {
	registry := &SourceRegistry{
		sources: make(map[string]SourceFactory),
	}

	registry.registerSources()

	return registry
}

func (sr *SourceRegistry) registerSources() {
	sr.Register(config.SourceTypeLocal, func(ctx context.Context, cfg config.SourceConfig) (drivers.Source, error) {
		return file_system.NewLocalCSVSource(cfg.Path, csvOptions(cfg))
	})
	sr.Register(config.SourceTypeMinIO, func(ctx context.Context, cfg config.SourceConfig) (drivers.Source, error) {
		return object_storage.NewMinIOCSVSource(&object_storage.MinIOCSVSourceConfig{
			MinIOConfig: &object_storage.MinIOConfig{
				Endpoint:  cfg.Endpoint,
				AccessKey: cfg.AccessKeyID,
				SecretKey: cfg.SecretAccessKey,
				Token:     cfg.SessionToken,
				Bucket:    cfg.Bucket,
				Region:    cfg.Region,
				Secure:    cfg.UseSSL,
			},
			Prefix: cfg.Prefix,
			CSV:    csvOptions(cfg),
		})
	})
	sr.Register(config.SourceTypeS3, func(ctx context.Context, cfg config.SourceConfig) (drivers.Source, error) {
		return object_storage.NewS3CSVSource(ctx, &object_storage.S3CSVSourceConfig{
			S3Config: &object_storage.S3Config{
				Region:         cfg.Region,
				Bucket:         cfg.Bucket,
				AccessKey:      cfg.AccessKeyID,
				SecretKey:      cfg.SecretAccessKey,
				SessionToken:   cfg.SessionToken,
				EndpointURL:    cfg.Endpoint,
				ForcePathStyle: cfg.UsePathStyle,
			},
			Prefix: cfg.Prefix,
			CSV:    csvOptions(cfg),
		})
	})
}

func csvOptions(cfg config.SourceConfig) drivers.CSVOptions {
	return drivers.CSVOptions{NullTokens: cfg.NullTokens}
}

// Register adds or replaces the factory for a source type
func (sr *SourceRegistry) Register(sourceType string, factory SourceFactory) {
	sr.mutex.Lock()
	defer sr.mutex.Unlock()
	sr.sources[sourceType] = factory
}

// Create builds the source described by cfg
func (sr *SourceRegistry) Create(ctx context.Context, cfg config.SourceConfig) (drivers.Source, error) {
	sr.mutex.RLock()
	factory, exists := sr.sources[strings.ToLower(cfg.Type)]
	sr.mutex.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unsupported source type: %s", cfg.Type)
	}

	return factory(ctx, cfg)
}

// IsSupported reports whether a factory is registered for the source type
func (sr *SourceRegistry) IsSupported(sourceType string) bool {
	sr.mutex.RLock()
	_, exists := sr.sources[sourceType]
	sr.mutex.RUnlock()

	return exists
}

// ListSources returns the registered source types in sorted order
func (sr *SourceRegistry) ListSources() []string {
	sr.mutex.RLock()
	defer sr.mutex.RUnlock()

	types := make([]string, 0, len(sr.sources))
	for sourceType := range sr.sources {
		types = append(types, sourceType)
	}
	sort.Strings(types)

	return types
}
