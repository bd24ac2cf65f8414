// Package main implements the beaverlog server binary.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/drg101/beaverlog/internal/app"
	"github.com/drg101/beaverlog/internal/config"
	"github.com/drg101/beaverlog/internal/logging"
)

var (
	version = "dev"
	commit  = "unknown"
)

// flags holds command line overrides; empty values leave the config untouched.
type flags struct {
	configFile string
	envFile    string
	dataDir    string
	backend    string
	httpAddr   string
	grpcAddr   string
	logLevel   string
}

func main() {
	var (
		f           flags
		showVersion bool
		showHelp    bool
	)

	flag.StringVar(&f.configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&f.envFile, "env-file", ".env", "Path to a .env file loaded before reading BEAVERLOG_* variables")
	flag.StringVar(&f.dataDir, "data-dir", "", "Base directory for on-disk backends")
	flag.StringVar(&f.backend, "storage", "", "Storage backend: memory, badger, sqlite, redis, local, s3")
	flag.StringVar(&f.httpAddr, "http-addr", "", "HTTP listen address")
	flag.StringVar(&f.grpcAddr, "grpc-addr", "", "gRPC listen address")
	flag.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showHelp, "help", false, "Show help message")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "beaverlog - time-bucketed event and log store\n\n")
		fmt.Fprintf(os.Stderr, "Usage: beaverlog [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  beaverlog --data-dir /var/lib/beaverlog\n")
		fmt.Fprintf(os.Stderr, "  beaverlog --storage redis\n")
		fmt.Fprintf(os.Stderr, "  beaverlog --config /etc/beaverlog/config.yaml\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  BEAVERLOG_DATA_DIR          Base directory for data files\n")
		fmt.Fprintf(os.Stderr, "  BEAVERLOG_STORAGE_BACKEND   Storage backend\n")
		fmt.Fprintf(os.Stderr, "  BEAVERLOG_HTTP_ADDR         HTTP listen address\n")
		fmt.Fprintf(os.Stderr, "  BEAVERLOG_GRPC_ADDR         gRPC listen address\n")
		fmt.Fprintf(os.Stderr, "  BEAVERLOG_QUERY_TIMEOUT     Per-query deadline (e.g. 30s)\n")
		fmt.Fprintf(os.Stderr, "  BEAVERLOG_LOG_LEVEL         Log level\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("beaverlog version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	cfg, err := loadConfig(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging.Environment, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	printBanner(logger, cfg)

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to create application", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		logger.Fatal("failed to start application", zap.Error(err))
	}

	if err := application.WaitForShutdown(ctx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

// loadConfig layers defaults or the config file, then BEAVERLOG_* variables
// (with .env loaded first), then command line flags.
func loadConfig(f flags) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if f.configFile != "" {
		cfg, err = config.LoadFromFile(f.configFile)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.DefaultConfig()
	}

	if err := config.LoadDotEnv(f.envFile); err != nil {
		return nil, err
	}
	if err := config.LoadFromEnv(cfg); err != nil {
		return nil, err
	}

	if f.dataDir != "" {
		cfg.DataDir = f.dataDir
	}
	if f.backend != "" {
		cfg.Storage.Backend = f.backend
	}
	if f.httpAddr != "" {
		cfg.HTTP.Addr = f.httpAddr
	}
	if f.grpcAddr != "" {
		cfg.GRPC.Addr = f.grpcAddr
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}

	return cfg, nil
}

// printBanner logs a configuration summary.
func printBanner(logger *zap.Logger, cfg *config.Config) {
	logger.Info("beaverlog",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("data_dir", cfg.DataDir),
		zap.String("storage", cfg.Storage.Backend),
		zap.String("http_addr", cfg.HTTP.Addr),
		zap.Bool("grpc_enabled", cfg.GRPC.Enabled),
		zap.String("grpc_addr", cfg.GRPC.Addr),
		zap.Int("query_concurrency", cfg.Query.Concurrency),
		zap.Duration("query_timeout", cfg.Query.Timeout))
}
