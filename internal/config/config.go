// Package config provides the configuration for the beaverlog server.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/drg101/beaverlog/internal/storage"
)

// EnvPrefix prefixes every environment variable read by LoadFromEnv.
const EnvPrefix = "BEAVERLOG_"

// Config holds the configuration for the beaverlog server.
type Config struct {
	// DataDir is the base directory for on-disk backends
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Logging configuration
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// HTTP configuration
	HTTP HTTPConfig `json:"http" yaml:"http"`

	// gRPC configuration
	GRPC GRPCConfig `json:"grpc" yaml:"grpc"`

	// Query configuration
	Query QueryConfig `json:"query" yaml:"query"`

	// Storage configuration
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Stats configuration
	Stats StatsConfig `json:"stats" yaml:"stats"`
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	// Environment selects the zap preset: production, development or test
	Environment string `json:"environment" yaml:"environment"`

	// Level is the minimum level: debug, info, warn, error
	Level string `json:"level" yaml:"level"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	// Addr is the HTTP listen address
	Addr string `json:"addr" yaml:"addr"`

	// ReadTimeout is the HTTP read timeout
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the HTTP write timeout
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the HTTP idle timeout
	IdleTimeout time.Duration `json:"idle_timeout" yaml:"idle_timeout"`

	// MaxBodyBytes caps ingest request bodies
	MaxBodyBytes int64 `json:"max_body_bytes" yaml:"max_body_bytes"`

	// RateLimit is the sustained requests per second allowed per client (0 disables)
	RateLimit float64 `json:"rate_limit" yaml:"rate_limit"`

	// RateBurst is the burst size of the per-client limiter
	RateBurst int `json:"rate_burst" yaml:"rate_burst"`
}

// GRPCConfig holds gRPC server configuration.
type GRPCConfig struct {
	// Addr is the gRPC server address
	Addr string `json:"addr" yaml:"addr"`

	// Enabled controls whether gRPC is enabled
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// QueryConfig holds query configuration.
type QueryConfig struct {
	// Concurrency is the number of parallel prefix scans per query
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	// Timeout bounds a single query; 0 means no deadline
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// ScanRetries is the number of retries for a failed prefix scan
	ScanRetries int `json:"scan_retries" yaml:"scan_retries"`
}

// StorageConfig holds storage configuration.
type StorageConfig struct {
	// Backend is one of memory, badger, sqlite, redis, local, s3
	Backend string `json:"backend" yaml:"backend"`

	// MemoryShards is the shard count of the memory backend
	MemoryShards int `json:"memory_shards" yaml:"memory_shards"`

	// Path is the data path of the badger, sqlite and local backends
	Path string `json:"path" yaml:"path"`

	// FetchConcurrency bounds parallel object reads for local and s3
	FetchConcurrency int `json:"fetch_concurrency" yaml:"fetch_concurrency"`

	// Redis configuration (for redis backend)
	Redis RedisConfig `json:"redis" yaml:"redis"`

	// S3 configuration (for s3 backend)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	Prefix   string `json:"prefix" yaml:"prefix"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// UsePathStyle forces path-style addressing
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// StatsConfig holds query statistics configuration.
type StatsConfig struct {
	// Window is how long a name stays tracked after its last query
	Window time.Duration `json:"window" yaml:"window"`

	// PruneInterval is the interval between stats pruning passes
	PruneInterval time.Duration `json:"prune_interval" yaml:"prune_interval"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/beaverlog",
		Logging: LoggingConfig{
			Environment: "production",
			Level:       "info",
		},
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
			MaxBodyBytes: 10 << 20,
			RateLimit:    0,
			RateBurst:    50,
		},
		GRPC: GRPCConfig{
			Addr:    ":9090",
			Enabled: true,
		},
		Query: QueryConfig{
			Concurrency: 16,
			Timeout:     30 * time.Second,
			ScanRetries: 2,
		},
		Storage: StorageConfig{
			Backend:          storage.BackendBadger,
			MemoryShards:     storage.DefaultMemoryShards,
			FetchConcurrency: 16,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "beaverlog",
			},
			S3: S3Config{
				Region: "us-east-1",
			},
		},
		Stats: StatsConfig{
			Window:        time.Hour,
			PruneInterval: 5 * time.Minute,
		},
	}
}

// Resolve fills backend paths that were left empty from DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/beaverlog"
	}

	if c.Storage.Path == "" {
		switch c.Storage.Backend {
		case storage.BackendBadger:
			c.Storage.Path = filepath.Join(c.DataDir, "badger")
		case storage.BackendSQLite:
			c.Storage.Path = filepath.Join(c.DataDir, "beaverlog.db")
		case storage.BackendLocal:
			c.Storage.Path = filepath.Join(c.DataDir, "objects")
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	switch c.Storage.Backend {
	case storage.BackendMemory, storage.BackendBadger, storage.BackendSQLite,
		storage.BackendRedis, storage.BackendLocal, storage.BackendS3:
		// Valid backends
	default:
		return fmt.Errorf("invalid storage backend: %s (must be memory, badger, sqlite, redis, local, or s3)", c.Storage.Backend)
	}

	if c.Storage.Backend == storage.BackendS3 && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("storage.s3.bucket is required when storage backend is s3")
	}
	if c.Storage.Backend == storage.BackendRedis && c.Storage.Redis.Addr == "" {
		return fmt.Errorf("storage.redis.addr is required when storage backend is redis")
	}

	if c.Query.Concurrency < 1 || c.Query.Concurrency > 1024 {
		return fmt.Errorf("query.concurrency must be between 1 and 1024, got %d", c.Query.Concurrency)
	}
	if c.Query.ScanRetries < 0 {
		return fmt.Errorf("query.scan_retries must not be negative, got %d", c.Query.ScanRetries)
	}
	if c.Query.Timeout < 0 {
		return fmt.Errorf("query.timeout must not be negative, got %s", c.Query.Timeout)
	}

	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	if c.HTTP.RateLimit < 0 {
		return fmt.Errorf("http.rate_limit must not be negative, got %v", c.HTTP.RateLimit)
	}
	if c.HTTP.RateLimit > 0 && c.HTTP.RateBurst < 1 {
		return fmt.Errorf("http.rate_burst must be at least 1 when rate limiting is enabled")
	}
	if c.GRPC.Enabled && c.GRPC.Addr == "" {
		return fmt.Errorf("grpc.addr is required when grpc is enabled")
	}

	switch c.Logging.Environment {
	case "production", "development", "test":
	default:
		return fmt.Errorf("invalid logging environment: %s (must be production, development, or test)", c.Logging.Environment)
	}

	return nil
}

// StorageOptions converts the storage section into storage.Options.
func (c *Config) StorageOptions() storage.Options {
	s3cfg := storage.DefaultS3Config()
	s3cfg.Region = c.Storage.S3.Region
	s3cfg.Endpoint = c.Storage.S3.Endpoint
	s3cfg.UsePathStyle = c.Storage.S3.UsePathStyle

	opts := storage.Options{
		Backend:          c.Storage.Backend,
		MemoryShards:     c.Storage.MemoryShards,
		RedisAddr:        c.Storage.Redis.Addr,
		RedisPassword:    c.Storage.Redis.Password,
		RedisDB:          c.Storage.Redis.DB,
		RedisPrefix:      c.Storage.Redis.Prefix,
		S3Bucket:         c.Storage.S3.Bucket,
		S3:               s3cfg,
		FetchConcurrency: c.Storage.FetchConcurrency,
	}
	switch c.Storage.Backend {
	case storage.BackendBadger:
		opts.BadgerPath = c.Storage.Path
	case storage.BackendSQLite:
		opts.SQLitePath = c.Storage.Path
	case storage.BackendLocal:
		opts.LocalPath = c.Storage.Path
	}
	return opts
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadDotEnv loads variables from a .env file into the process environment.
// Variables already set are not overridden. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// LoadFromEnv overrides cfg from BEAVERLOG_* environment variables.
// Malformed numeric or duration values are reported, not ignored.
func LoadFromEnv(cfg *Config) error {
	var errs []error
	str := func(name string, dst *string) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(name string, dst *bool) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = v == "true" || v == "1"
		}
	}

	str("DATA_DIR", &cfg.DataDir)

	// Logging configuration
	str("LOG_ENV", &cfg.Logging.Environment)
	str("LOG_LEVEL", &cfg.Logging.Level)

	// HTTP configuration
	str("HTTP_ADDR", &cfg.HTTP.Addr)
	dur("HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout)
	dur("HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout)
	if v := os.Getenv(EnvPrefix + "HTTP_RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sHTTP_RATE_LIMIT: %w", EnvPrefix, err))
		} else {
			cfg.HTTP.RateLimit = f
		}
	}
	num("HTTP_RATE_BURST", &cfg.HTTP.RateBurst)

	// gRPC configuration
	str("GRPC_ADDR", &cfg.GRPC.Addr)
	boolean("GRPC_ENABLED", &cfg.GRPC.Enabled)

	// Query configuration
	num("QUERY_CONCURRENCY", &cfg.Query.Concurrency)
	dur("QUERY_TIMEOUT", &cfg.Query.Timeout)
	num("QUERY_SCAN_RETRIES", &cfg.Query.ScanRetries)

	// Storage configuration
	str("STORAGE_BACKEND", &cfg.Storage.Backend)
	str("STORAGE_PATH", &cfg.Storage.Path)
	num("STORAGE_MEMORY_SHARDS", &cfg.Storage.MemoryShards)
	num("STORAGE_FETCH_CONCURRENCY", &cfg.Storage.FetchConcurrency)
	str("REDIS_ADDR", &cfg.Storage.Redis.Addr)
	str("REDIS_PASSWORD", &cfg.Storage.Redis.Password)
	num("REDIS_DB", &cfg.Storage.Redis.DB)
	str("REDIS_PREFIX", &cfg.Storage.Redis.Prefix)
	str("S3_BUCKET", &cfg.Storage.S3.Bucket)
	str("S3_REGION", &cfg.Storage.S3.Region)
	str("S3_ENDPOINT", &cfg.Storage.S3.Endpoint)
	boolean("S3_USE_PATH_STYLE", &cfg.Storage.S3.UsePathStyle)

	// Stats configuration
	dur("STATS_WINDOW", &cfg.Stats.Window)

	return errors.Join(errs...)
}

// EnsureDirectories creates the directories the configured backend writes to.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir}
	switch c.Storage.Backend {
	case storage.BackendBadger, storage.BackendLocal:
		dirs = append(dirs, c.Storage.Path)
	case storage.BackendSQLite:
		dirs = append(dirs, filepath.Dir(c.Storage.Path))
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
