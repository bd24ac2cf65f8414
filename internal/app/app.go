// Package app wires storage, the index and the API servers into one
// process and manages their lifecycle.
package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	grpcapi "github.com/drg101/beaverlog/internal/api/grpc"
	httpapi "github.com/drg101/beaverlog/internal/api/http"
	"github.com/drg101/beaverlog/internal/config"
	"github.com/drg101/beaverlog/internal/index"
	"github.com/drg101/beaverlog/internal/observability"
	"github.com/drg101/beaverlog/internal/server"
	"github.com/drg101/beaverlog/internal/storage"
)

// App manages the beaverlog service lifecycle.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	// Shared resources
	store    storage.Store
	index    *index.Index
	metrics  *observability.Metrics
	stats    *observability.QueryStats
	shutdown *server.ShutdownManager

	httpServer   *http.Server
	httpListener net.Listener
	grpcServer   *grpc.Server
	grpcListener net.Listener
	limiter      *httpapi.RateLimiter

	// Lifecycle
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new App with the given configuration.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &App{
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Start opens the store and starts the HTTP and (if enabled) gRPC servers.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app is already running")
	}
	a.running = true
	a.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.initSharedResources(ctx); err != nil {
		a.cleanup()
		return fmt.Errorf("failed to initialize shared resources: %w", err)
	}

	if err := a.startHTTP(); err != nil {
		a.cleanup()
		return fmt.Errorf("failed to start http server: %w", err)
	}

	if a.cfg.GRPC.Enabled {
		if err := a.startGRPC(); err != nil {
			a.cleanup()
			return fmt.Errorf("failed to start grpc server: %w", err)
		}
	}

	a.startBackground(ctx)

	a.logger.Info("beaverlog started",
		zap.String("backend", a.cfg.Storage.Backend),
		zap.String("http_addr", a.httpListener.Addr().String()),
		zap.Bool("grpc", a.cfg.GRPC.Enabled))
	return nil
}

// initSharedResources opens the store and builds the index, metrics and
// shutdown manager.
func (a *App) initSharedResources(ctx context.Context) error {
	a.shutdown = server.NewShutdownManager(server.DefaultShutdownConfig(), a.logger)

	store, err := storage.Open(ctx, a.cfg.StorageOptions(), a.logger)
	if err != nil {
		return err
	}
	a.store = store
	// Registered first so it is closed after the servers.
	a.shutdown.RegisterCloser("store", store)

	a.metrics = observability.NewMetrics()
	a.stats = observability.NewQueryStats(a.cfg.Stats.Window)

	ixCfg := index.DefaultConfig()
	ixCfg.Concurrency = a.cfg.Query.Concurrency
	ixCfg.ScanRetries = a.cfg.Query.ScanRetries
	a.index = index.New(store, ixCfg, a.logger,
		index.WithMetrics(a.metrics),
		index.WithQueryStats(a.stats))

	return nil
}

func (a *App) startHTTP() error {
	opts := []httpapi.Option{
		httpapi.WithLogger(a.logger),
		httpapi.WithMetrics(a.metrics),
		httpapi.WithQueryStats(a.stats),
		httpapi.WithQueryTimeout(a.cfg.Query.Timeout),
		httpapi.WithMaxBodyBytes(a.cfg.HTTP.MaxBodyBytes),
	}
	if a.cfg.HTTP.RateLimit > 0 {
		a.limiter = httpapi.NewRateLimiter(a.cfg.HTTP.RateLimit, a.cfg.HTTP.RateBurst)
		opts = append(opts, httpapi.WithRateLimiter(a.limiter))
	}
	handler := httpapi.NewHandler(a.index, opts...)

	lis, err := net.Listen("tcp", a.cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on http address: %w", err)
	}
	a.httpListener = lis

	a.httpServer = &http.Server{
		Handler:      server.ShutdownMiddleware(a.shutdown)(handler.Routes()),
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.shutdown.ServeHTTP(a.httpServer, lis); err != nil {
			a.logger.Error("http server error", zap.Error(err))
		}
	}()
	return nil
}

func (a *App) startGRPC() error {
	svc := grpcapi.NewEventsServer(a.index, a.cfg.Query.Timeout)
	a.grpcServer = grpcapi.NewServer(svc, a.logger)

	lis, err := net.Listen("tcp", a.cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on grpc address: %w", err)
	}
	a.grpcListener = lis

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.shutdown.ServeGRPC(a.grpcServer, lis); err != nil {
			a.logger.Error("grpc server error", zap.Error(err))
		}
	}()
	return nil
}

// startBackground runs periodic maintenance until ctx is cancelled.
func (a *App) startBackground(ctx context.Context) {
	interval := a.cfg.Stats.PruneInterval
	if interval <= 0 {
		return
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.stats.Prune()
				if a.limiter != nil {
					a.limiter.Cleanup()
				}
			}
		}
	}()
}

// HTTPAddr returns the address the HTTP server listens on.
func (a *App) HTTPAddr() string {
	if a.httpListener == nil {
		return ""
	}
	return a.httpListener.Addr().String()
}

// GRPCAddr returns the address the gRPC server listens on.
func (a *App) GRPCAddr() string {
	if a.grpcListener == nil {
		return ""
	}
	return a.grpcListener.Addr().String()
}

// Stop gracefully stops all services and releases resources.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	a.mu.Unlock()

	err := a.shutdown.Shutdown(ctx, "stop requested")
	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		a.logger.Warn("shutdown timeout, some goroutines may not have finished")
	}

	a.logger.Info("beaverlog stopped")
	return err
}

// cleanup releases resources after a failed Start.
func (a *App) cleanup() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.shutdown != nil {
		_ = a.shutdown.Shutdown(context.Background(), "start failed")
	}
	a.mu.Lock()
	a.running = false
	a.mu.Unlock()
}

// WaitForShutdown blocks until a shutdown signal is received or ctx ends,
// then stops the app.
func (a *App) WaitForShutdown(ctx context.Context) error {
	err := a.shutdown.ListenForSignals(ctx)
	if stopErr := a.Stop(context.Background()); err == nil {
		err = stopErr
	}
	return err
}
