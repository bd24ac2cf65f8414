package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	berrors "github.com/drg101/beaverlog/internal/errors"
	"github.com/drg101/beaverlog/internal/observability"
	"github.com/drg101/beaverlog/pkg/types"
)

// Indexer is the subset of index.Index the handlers use.
type Indexer interface {
	PutBatch(ctx context.Context, kind types.Kind, records []types.Record) error
	Query(ctx context.Context, kind types.Kind, name string, startMs, endMs int64) ([]types.Record, error)
	Names(ctx context.Context, kind types.Kind) ([]string, error)
}

// Handler serves the ingest and query endpoints.
type Handler struct {
	index        Indexer
	ids          *types.IDGenerator
	logger       *zap.Logger
	metrics      *observability.Metrics
	stats        *observability.QueryStats
	limiter      *RateLimiter
	queryTimeout time.Duration
	maxBodyBytes int64
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// WithMetrics exposes /metrics and counts rate-limited requests.
func WithMetrics(m *observability.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithQueryStats exposes /v1/stats.
func WithQueryStats(qs *observability.QueryStats) Option {
	return func(h *Handler) { h.stats = qs }
}

// WithRateLimiter enables per-client rate limiting of /v1 routes.
func WithRateLimiter(l *RateLimiter) Option {
	return func(h *Handler) { h.limiter = l }
}

// WithQueryTimeout bounds every query; zero disables the deadline.
func WithQueryTimeout(d time.Duration) Option {
	return func(h *Handler) { h.queryTimeout = d }
}

// WithMaxBodyBytes caps ingest request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) { h.maxBodyBytes = n }
}

// WithIDGenerator replaces the record ID generator.
func WithIDGenerator(g *types.IDGenerator) Option {
	return func(h *Handler) { h.ids = g }
}

// NewHandler creates the API handler.
func NewHandler(ix Indexer, opts ...Option) *Handler {
	h := &Handler{
		index:        ix,
		ids:          types.NewIDGenerator(),
		logger:       zap.NewNop(),
		maxBodyBytes: 10 << 20,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With(zap.String("component", "http"))
	return h
}

// Routes returns the router with the default middleware applied.
func (h *Handler) Routes() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/events", h.handleIngestEvents)
	api.HandleFunc("GET /v1/events", h.handleQueryEvents)
	api.HandleFunc("POST /v1/logs", h.handleIngestLogs)
	api.HandleFunc("GET /v1/logs", h.handleQueryLogs)
	api.HandleFunc("GET /v1/event-names", h.handleEventNames)
	api.HandleFunc("GET /v1/log-streams", h.handleLogStreams)
	if h.stats != nil {
		api.HandleFunc("GET /v1/stats", h.handleStats)
	}

	var v1 http.Handler = api
	if h.limiter != nil {
		v1 = h.limiter.Middleware(h.metrics)(v1)
	}

	mux := http.NewServeMux()
	mux.Handle("/v1/", v1)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics.Handler())
	}

	return ChainMiddleware(
		RecoveryMiddleware(h.logger),
		RequestIDMiddleware,
		CorrelationIDMiddleware,
		AccessLogMiddleware(h.logger),
	)(mux)
}

// writeIndexError maps index errors onto HTTP status codes.
func (h *Handler) writeIndexError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	requestID := GetRequestID(r.Context())
	code := berrors.GetCode(err)

	switch {
	case berrors.GetCategory(err) == berrors.ErrCategoryValidation:
		writeErrorCode(w, http.StatusBadRequest, err.Error(), code, requestID)
	case errors.Is(err, context.DeadlineExceeded):
		writeErrorCode(w, http.StatusGatewayTimeout, "query timed out", code, requestID)
	case errors.Is(err, context.Canceled):
		// Client went away; the status is for the access log only.
		writeErrorCode(w, http.StatusServiceUnavailable, "request cancelled", code, requestID)
	default:
		h.logger.Error(fallback,
			zap.String("request_id", requestID),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeErrorCode(w, http.StatusInternalServerError, fallback, code, requestID)
	}
}
