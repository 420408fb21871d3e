package config

import (
	"fmt"
	"strings"
)

// Source types understood by the driver registry
const (
	SourceTypeLocal = "local"
	SourceTypeMinIO = "minio"
	SourceTypeS3    = "s3"
)

// SourceConfig locates the CSV files of the customers, orders and products tables
type SourceConfig struct {
	Type            string   `mapstructure:"type"`
	Path            string   `mapstructure:"path"`
	Endpoint        string   `mapstructure:"endpoint"`
	Bucket          string   `mapstructure:"bucket"`
	Prefix          string   `mapstructure:"prefix"`
	Region          string   `mapstructure:"region"`
	AccessKeyID     string   `mapstructure:"access_key_id"`
	SecretAccessKey string   `mapstructure:"secret_access_key"`
	SessionToken    string   `mapstructure:"session_token"`
	UseSSL          bool     `mapstructure:"use_ssl"`
	UsePathStyle    bool     `mapstructure:"use_path_style"`
	NullTokens      []string `mapstructure:"null_tokens"`
}

// Validate checks the fields the configured source type needs
func (s SourceConfig) Validate() error {
	switch strings.ToLower(s.Type) {
	case SourceTypeLocal:
		if s.Path == "" {
			return fmt.Errorf("source.path is required for a local source")
		}
	case SourceTypeMinIO:
		if s.Endpoint == "" || s.Bucket == "" {
			return fmt.Errorf("source.endpoint and source.bucket are required for a minio source")
		}
	case SourceTypeS3:
		if s.Bucket == "" {
			return fmt.Errorf("source.bucket is required for an s3 source")
		}
	default:
		return fmt.Errorf("unsupported source.type %q", s.Type)
	}
	return nil
}

// Describe renders the source location without credentials
func (s SourceConfig) Describe() string {
	switch strings.ToLower(s.Type) {
	case SourceTypeLocal:
		return "local:" + s.Path
	case SourceTypeMinIO:
		return fmt.Sprintf("minio:%s/%s/%s", s.Endpoint, s.Bucket, s.Prefix)
	default:
		return fmt.Sprintf("%s:%s/%s", s.Type, s.Bucket, s.Prefix)
	}
}
