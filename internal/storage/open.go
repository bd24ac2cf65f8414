package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendLocal  = "local"
	BackendS3     = "s3"
)

// Options selects and configures a Store backend.
type Options struct {
	Backend string

	// memory
	MemoryShards int

	// badger; empty path runs in memory
	BadgerPath string

	// sqlite
	SQLitePath string

	// redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	// local object storage
	LocalPath string

	// s3 object storage
	S3Bucket string
	S3       S3Config

	// FetchConcurrency bounds parallel object reads for local and s3.
	FetchConcurrency int
}

// Open creates the configured backend.
func Open(ctx context.Context, opts Options, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("backend", opts.Backend))

	switch opts.Backend {
	case BackendMemory, "":
		logger.Info("opening memory store", zap.Int("shards", opts.MemoryShards))
		return NewMemoryStore(opts.MemoryShards), nil

	case BackendBadger:
		logger.Info("opening badger store", zap.String("path", opts.BadgerPath))
		return NewBadgerStore(opts.BadgerPath, logger)

	case BackendSQLite:
		logger.Info("opening sqlite store", zap.String("path", opts.SQLitePath))
		if err := os.MkdirAll(filepath.Dir(opts.SQLitePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
		}
		return NewSQLiteStore(opts.SQLitePath)

	case BackendRedis:
		logger.Info("opening redis store", zap.String("addr", opts.RedisAddr), zap.Int("db", opts.RedisDB))
		rdb := redis.NewClient(&redis.Options{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		cancel()
		if err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis ping %s: %w", opts.RedisAddr, err)
		}
		redisOpts := []RedisOption{withOwnedClient()}
		if opts.RedisPrefix != "" {
			redisOpts = append(redisOpts, WithRedisPrefix(opts.RedisPrefix))
		}
		return NewRedisStore(rdb, redisOpts...), nil

	case BackendLocal:
		logger.Info("opening local object store", zap.String("path", opts.LocalPath))
		local, err := NewLocalStorage(opts.LocalPath)
		if err != nil {
			return nil, err
		}
		return NewObjectStore(local, opts.FetchConcurrency), nil

	case BackendS3:
		logger.Info("opening s3 object store",
			zap.String("bucket", opts.S3Bucket),
			zap.String("region", opts.S3.Region),
			zap.String("endpoint", opts.S3.Endpoint))
		s3s, err := NewS3Storage(ctx, opts.S3Bucket, opts.S3)
		if err != nil {
			return nil, err
		}
		return NewObjectStore(s3s, opts.FetchConcurrency), nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}
