// Package server provides server lifecycle management including graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// ShutdownManager coordinates signal handling, in-flight request tracking
// and ordered resource cleanup.
type ShutdownManager struct {
	shutdownTimeout time.Duration
	drainTimeout    time.Duration
	logger          *zap.Logger

	shutdownCh     chan struct{}
	shutdownOnce   sync.Once
	shutdownErr    error
	inFlight       int64
	isShuttingDown int32

	// closers run in reverse registration order
	closers   []namedCloser
	closersMu sync.Mutex
}

type namedCloser struct {
	name   string
	closer io.Closer
}

// ShutdownConfig holds configuration for the shutdown manager.
type ShutdownConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	// Default: 30 seconds
	ShutdownTimeout time.Duration

	// DrainTimeout is the time to wait for in-flight requests to complete.
	// Default: 15 seconds
	DrainTimeout time.Duration
}

// DefaultShutdownConfig returns the default shutdown configuration.
func DefaultShutdownConfig() ShutdownConfig {
	return ShutdownConfig{
		ShutdownTimeout: 30 * time.Second,
		DrainTimeout:    15 * time.Second,
	}
}

// NewShutdownManager creates a new shutdown manager with the given configuration.
func NewShutdownManager(config ShutdownConfig, logger *zap.Logger) *ShutdownManager {
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 30 * time.Second
	}
	if config.DrainTimeout == 0 {
		config.DrainTimeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ShutdownManager{
		shutdownTimeout: config.ShutdownTimeout,
		drainTimeout:    config.DrainTimeout,
		logger:          logger.With(zap.String("component", "shutdown")),
		shutdownCh:      make(chan struct{}),
	}
}

// RegisterCloser adds a named closer to be called during shutdown.
// Closers are called in reverse order of registration (LIFO), so the store
// registered first is closed after the servers that use it.
func (sm *ShutdownManager) RegisterCloser(name string, closer io.Closer) {
	sm.closersMu.Lock()
	defer sm.closersMu.Unlock()
	sm.closers = append(sm.closers, namedCloser{name: name, closer: closer})
}

// ListenForSignals blocks until SIGTERM/SIGINT, ctx cancellation or an
// explicit Shutdown, then shuts down.
func (sm *ShutdownManager) ListenForSignals(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		return sm.Shutdown(context.Background(), fmt.Sprintf("received signal: %v", sig))
	case <-ctx.Done():
		return sm.Shutdown(context.Background(), "context cancelled")
	case <-sm.shutdownCh:
		return sm.shutdownErr
	}
}

// Shutdown stops accepting requests, waits for in-flight requests and closes
// every registered resource. Only the first call does any work; later calls
// return its result.
func (sm *ShutdownManager) Shutdown(ctx context.Context, reason string) error {
	sm.shutdownOnce.Do(func() {
		sm.logger.Info("shutting down", zap.String("reason", reason))
		atomic.StoreInt32(&sm.isShuttingDown, 1)
		close(sm.shutdownCh)

		shutdownCtx, cancel := context.WithTimeout(ctx, sm.shutdownTimeout)
		defer cancel()

		var errs []error
		if err := sm.drainInFlight(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("drain failed: %w", err))
		}

		sm.closersMu.Lock()
		closers := sm.closers
		sm.closersMu.Unlock()

		for i := len(closers) - 1; i >= 0; i-- {
			c := closers[i]
			if err := c.closer.Close(); err != nil {
				sm.logger.Warn("close failed", zap.String("resource", c.name), zap.Error(err))
				errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
				continue
			}
			sm.logger.Debug("closed", zap.String("resource", c.name))
		}

		sm.shutdownErr = errors.Join(errs...)
		sm.logger.Info("shutdown complete")
	})

	return sm.shutdownErr
}

// drainInFlight waits for all in-flight requests to complete.
func (sm *ShutdownManager) drainInFlight(ctx context.Context) error {
	drainCtx, cancel := context.WithTimeout(ctx, sm.drainTimeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if atomic.LoadInt64(&sm.inFlight) == 0 {
			return nil
		}

		select {
		case <-drainCtx.Done():
			if remaining := atomic.LoadInt64(&sm.inFlight); remaining > 0 {
				return fmt.Errorf("timeout waiting for %d in-flight requests", remaining)
			}
			return nil
		case <-ticker.C:
		}
	}
}

// TrackRequest increments the in-flight request counter.
// Returns false if shutdown is in progress and the request should be rejected.
func (sm *ShutdownManager) TrackRequest() bool {
	if atomic.LoadInt32(&sm.isShuttingDown) == 1 {
		return false
	}
	atomic.AddInt64(&sm.inFlight, 1)
	return true
}

// UntrackRequest decrements the in-flight request counter.
func (sm *ShutdownManager) UntrackRequest() {
	atomic.AddInt64(&sm.inFlight, -1)
}

// IsShuttingDown returns true if shutdown has been initiated.
func (sm *ShutdownManager) IsShuttingDown() bool {
	return atomic.LoadInt32(&sm.isShuttingDown) == 1
}

// InFlightCount returns the current number of in-flight requests.
func (sm *ShutdownManager) InFlightCount() int64 {
	return atomic.LoadInt64(&sm.inFlight)
}

// ShutdownCh returns a channel that is closed when shutdown begins.
func (sm *ShutdownManager) ShutdownCh() <-chan struct{} {
	return sm.shutdownCh
}

// ServeHTTP serves srv on lis until shutdown. The server is registered as a
// closer and drained with http.Server.Shutdown.
func (sm *ShutdownManager) ServeHTTP(srv *http.Server, lis net.Listener) error {
	sm.RegisterCloser("http "+lis.Addr().String(), CloserFunc(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}))

	// Closers registered after Shutdown took its snapshot would never run.
	if sm.IsShuttingDown() {
		return lis.Close()
	}

	sm.logger.Info("http listening", zap.String("addr", lis.Addr().String()))
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ServeGRPC serves srv on lis until shutdown. GracefulStop waits for pending
// RPCs; if they outlast the shutdown timeout the server is stopped hard.
func (sm *ShutdownManager) ServeGRPC(srv *grpc.Server, lis net.Listener) error {
	sm.RegisterCloser("grpc "+lis.Addr().String(), CloserFunc(func() error {
		done := make(chan struct{})
		go func() {
			srv.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(sm.shutdownTimeout):
			srv.Stop()
		}
		return nil
	}))

	if sm.IsShuttingDown() {
		return lis.Close()
	}

	sm.logger.Info("grpc listening", zap.String("addr", lis.Addr().String()))
	if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// ShutdownMiddleware creates HTTP middleware that tracks in-flight requests
// and rejects new requests during shutdown.
func ShutdownMiddleware(sm *ShutdownManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !sm.TrackRequest() {
				w.Header().Set("Connection", "close")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"error":"service unavailable: shutting down"}` + "\n"))
				return
			}
			defer sm.UntrackRequest()

			next.ServeHTTP(w, r)
		})
	}
}

// CloserFunc is an adapter to allow ordinary functions to be used as io.Closer.
type CloserFunc func() error

// Close calls the underlying function.
func (f CloserFunc) Close() error {
	return f()
}
