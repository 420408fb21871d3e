package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. INSIGHT_CACHE_CAPACITY
const EnvPrefix = "INSIGHT"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Security SecurityConfig `mapstructure:"security"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Query    QueryConfig    `mapstructure:"query"`
	Refresh  RefreshConfig  `mapstructure:"refresh"`
	Verify   VerifyConfig   `mapstructure:"verify"`
	Source   SourceConfig   `mapstructure:"source"`
	MCP      MCPConfig      `mapstructure:"mcp"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
	Host string `mapstructure:"host"`
}

type SecurityConfig struct {
	JWTSecret          string        `mapstructure:"jwt_secret"`
	JWTExpiration      time.Duration `mapstructure:"jwt_expiration"`
	EnableAuth         bool          `mapstructure:"enable_auth"`
	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute"`
	RateLimitBurst     int           `mapstructure:"rate_limit_burst"`
	EnableRateLimit    bool          `mapstructure:"enable_rate_limit"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	SeqURL string `mapstructure:"seq_url"`
}

type CacheConfig struct {
	Capacity              int     `mapstructure:"capacity"`
	SweepSchedule         string  `mapstructure:"sweep_schedule"`
	MemoryPressurePercent float64 `mapstructure:"memory_pressure_percent"`
}

type QueryConfig struct {
	MaxScanRows        int           `mapstructure:"max_scan_rows"`
	MaxFuzzyCandidates int           `mapstructure:"max_fuzzy_candidates"`
	FuzzyMaxDistance   float64       `mapstructure:"fuzzy_max_distance"`
	DefaultPageSize    int           `mapstructure:"default_page_size"`
	MaxPageSize        int           `mapstructure:"max_page_size"`
	Timeout            time.Duration `mapstructure:"timeout"`
}

type RefreshConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Schedule  string `mapstructure:"schedule"`
	OnStartup bool   `mapstructure:"on_startup"`
}

type VerifyConfig struct {
	Tolerance float64 `mapstructure:"tolerance"`
}

type MCPConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

// Load reads configuration from a YAML file, .env and INSIGHT_* variables.
// An empty path searches ./configs and . for config.yaml.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Set default values
	setDefaults(v)

	// Enable environment variable support
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects values the services cannot run with
func (c *Config) Validate() error {
	if c.Cache.Capacity < 1 {
		return fmt.Errorf("cache.capacity must be >= 1, got %d", c.Cache.Capacity)
	}
	if c.Query.DefaultPageSize < 1 || c.Query.DefaultPageSize > c.Query.MaxPageSize {
		return fmt.Errorf("query.default_page_size must be between 1 and query.max_page_size (%d)", c.Query.MaxPageSize)
	}
	if c.Query.FuzzyMaxDistance < 0 || c.Query.FuzzyMaxDistance > 1 {
		return fmt.Errorf("query.fuzzy_max_distance must be within [0, 1], got %v", c.Query.FuzzyMaxDistance)
	}
	if c.Security.EnableAuth && len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("security.jwt_secret must be at least 32 characters when auth is enabled")
	}
	if c.Verify.Tolerance < 0 {
		return fmt.Errorf("verify.tolerance must be >= 0, got %v", c.Verify.Tolerance)
	}
	return c.Source.Validate()
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.host", "0.0.0.0")

	// Security defaults
	v.SetDefault("security.jwt_secret", "")
	v.SetDefault("security.jwt_expiration", "24h")
	v.SetDefault("security.enable_auth", false)
	v.SetDefault("security.rate_limit_per_minute", 600)
	v.SetDefault("security.rate_limit_burst", 50)
	v.SetDefault("security.enable_rate_limit", true)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.seq_url", "")

	// Cache defaults
	v.SetDefault("cache.capacity", 1000)
	v.SetDefault("cache.sweep_schedule", "@every 5m")
	v.SetDefault("cache.memory_pressure_percent", 85.0)

	// Query defaults
	v.SetDefault("query.max_scan_rows", 1000000)
	v.SetDefault("query.max_fuzzy_candidates", 50000)
	v.SetDefault("query.fuzzy_max_distance", 0.25)
	v.SetDefault("query.default_page_size", 100)
	v.SetDefault("query.max_page_size", 10000)
	v.SetDefault("query.timeout", "30s")

	// Refresh defaults
	v.SetDefault("refresh.enabled", true)
	v.SetDefault("refresh.schedule", "@every 30m")
	v.SetDefault("refresh.on_startup", true)

	// Verification defaults
	v.SetDefault("verify.tolerance", 0.005)

	// Source defaults
	v.SetDefault("source.type", "local")
	v.SetDefault("source.path", "./data")
	v.SetDefault("source.endpoint", "")
	v.SetDefault("source.bucket", "")
	v.SetDefault("source.prefix", "")
	v.SetDefault("source.region", "us-east-1")
	v.SetDefault("source.access_key_id", "")
	v.SetDefault("source.secret_access_key", "")
	v.SetDefault("source.session_token", "")
	v.SetDefault("source.use_ssl", true)
	v.SetDefault("source.use_path_style", false)
	v.SetDefault("source.null_tokens", []string{})

	// MCP defaults
	v.SetDefault("mcp.name", "insight-gateway")
	v.SetDefault("mcp.version", "1.0.0")
}
