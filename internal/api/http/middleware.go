// Package http provides the HTTP API for beaverlog.
package http

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/drg101/beaverlog/internal/observability"
)

// Context keys for request metadata.
type contextKey string

const (
	// requestIDKey is the context key for the request ID.
	requestIDKey contextKey = "request_id"
	// correlationIDKey is the context key for the correlation ID.
	correlationIDKey contextKey = "correlation_id"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// RequestIDMiddleware adds a unique request_id to each request.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		w.Header().Set("X-Request-ID", requestID)

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CorrelationIDMiddleware adds a correlation ID for distributed tracing.
func CorrelationIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get("X-Correlation-ID")
		if correlationID == "" {
			// Fall back to request_id if available
			if reqID, ok := r.Context().Value(requestIDKey).(string); ok {
				correlationID = reqID
			} else {
				correlationID = uuid.New().String()
			}
		}

		w.Header().Set("X-Correlation-ID", correlationID)

		ctx := context.WithValue(r.Context(), correlationIDKey, correlationID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RecoveryMiddleware recovers from panics, logs them and returns a 500 error.
func RecoveryMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					requestID, _ := r.Context().Value(requestIDKey).(string)
					logger.Error("panic in handler",
						zap.Any("panic", err),
						zap.String("request_id", requestID),
						zap.String("path", r.URL.Path),
						zap.Stack("stack"))
					writeError(w, http.StatusInternalServerError, "internal server error", requestID)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// ContentTypeMiddleware ensures JSON content type for API requests.
func ContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// AccessLogMiddleware logs one line per request.
func AccessLogMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", GetRequestID(r.Context())),
				zap.String("correlation_id", GetCorrelationID(r.Context())))
		})
	}
}

// RateLimiter keeps one token bucket per client address. Buckets idle for
// longer than idleTTL are dropped by Cleanup.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientLimiter
	rps     rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time
}

type clientLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a per-client limiter allowing rps sustained
// requests per second with the given burst.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*clientLimiter),
		rps:     rate.Limit(rps),
		burst:   burst,
		idleTTL: 15 * time.Minute,
		now:     time.Now,
	}
}

// Allow reports whether the client may make a request now.
func (l *RateLimiter) Allow(client string) bool {
	now := l.now()

	l.mu.Lock()
	c, ok := l.clients[client]
	if !ok {
		c = &clientLimiter{lim: rate.NewLimiter(l.rps, l.burst)}
		l.clients[client] = c
	}
	c.lastSeen = now
	l.mu.Unlock()

	return c.lim.AllowN(now, 1)
}

// Cleanup drops limiters for clients not seen within the idle TTL.
func (l *RateLimiter) Cleanup() {
	cutoff := l.now().Add(-l.idleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()
	for k, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, k)
		}
	}
}

// Len returns the number of tracked clients.
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Middleware rejects requests over the client's limit with 429.
func (l *RateLimiter) Middleware(metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(clientAddr(r)) {
				if metrics != nil {
					metrics.RateLimitedTotal.Inc()
				}
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded", GetRequestID(r.Context()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientAddr identifies the caller: the first X-Forwarded-For hop when
// present, otherwise the remote host.
func clientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ChainMiddleware chains multiple middleware functions together.
func ChainMiddleware(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// DefaultMiddleware returns the default middleware chain for API handlers.
func DefaultMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return ChainMiddleware(
		RecoveryMiddleware(logger),
		RequestIDMiddleware,
		CorrelationIDMiddleware,
		AccessLogMiddleware(logger),
		ContentTypeMiddleware,
	)
}

// writeError writes an error response with the given status code.
func writeError(w http.ResponseWriter, statusCode int, message string, requestID ...string) {
	writeErrorCode(w, statusCode, message, "", requestID...)
}

func writeErrorCode(w http.ResponseWriter, statusCode int, message, code string, requestID ...string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := ErrorResponse{
		Error: message,
		Code:  code,
	}
	if len(requestID) > 0 && requestID[0] != "" {
		resp.RequestID = requestID[0]
	}

	json.NewEncoder(w).Encode(resp)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// GetCorrelationID retrieves the correlation ID from the context.
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}
