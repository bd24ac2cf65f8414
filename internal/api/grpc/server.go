package grpc

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	berrors "github.com/drg101/beaverlog/internal/errors"
	"github.com/drg101/beaverlog/pkg/types"
)

// Indexer is the subset of index.Index the service uses.
type Indexer interface {
	PutBatch(ctx context.Context, kind types.Kind, records []types.Record) error
	Query(ctx context.Context, kind types.Kind, name string, startMs, endMs int64) ([]types.Record, error)
	Names(ctx context.Context, kind types.Kind) ([]string, error)
}

// EventsServer implements EventsService on an Indexer.
type EventsServer struct {
	index        Indexer
	ids          *types.IDGenerator
	queryTimeout time.Duration
}

// NewEventsServer creates the service. queryTimeout of zero leaves queries
// bounded only by the caller's deadline.
func NewEventsServer(ix Indexer, queryTimeout time.Duration) *EventsServer {
	return &EventsServer{
		index:        ix,
		ids:          types.NewIDGenerator(),
		queryTimeout: queryTimeout,
	}
}

// NewServer creates a grpc.Server with request-id and logging interceptors
// and the Events service registered.
func NewServer(svc EventsService, logger *zap.Logger, opts ...grpc.ServerOption) *grpc.Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = append(opts, grpc.ChainUnaryInterceptor(loggingInterceptor(logger.With(zap.String("component", "grpc")))))
	s := grpc.NewServer(opts...)
	RegisterEventsService(s, svc)
	return s
}

// Ingest handles batch ingestion via gRPC.
func (s *EventsServer) Ingest(ctx context.Context, req *IngestRequest) (*IngestResponse, error) {
	requestID := extractRequestID(ctx)

	kind := kindOrDefault(req.Kind)
	if len(req.Records) == 0 {
		return nil, status.Error(codes.InvalidArgument, "records must not be empty")
	}

	records := make([]types.Record, len(req.Records))
	copy(records, req.Records)
	ids := make([]string, len(records))
	for i := range records {
		if kind == types.KindLogs && records[i].Name == "" {
			records[i].Name = types.DefaultLogStream
		}
		if records[i].ID == "" {
			id, err := s.ids.NewID(records[i].Timestamp)
			if err != nil {
				return nil, status.Errorf(codes.Internal, "failed to generate id: %v", err)
			}
			records[i].ID = id
		}
		ids[i] = records[i].ID
	}

	if err := s.index.PutBatch(ctx, kind, records); err != nil {
		return nil, toStatus(err)
	}

	return &IngestResponse{Count: len(records), IDs: ids, RequestID: requestID}, nil
}

// Query runs a range query and returns records newest first.
func (s *EventsServer) Query(ctx context.Context, req *QueryRequest) (*QueryResponse, error) {
	kind := kindOrDefault(req.Kind)
	name := req.Name
	if kind == types.KindLogs && name == "" {
		name = types.DefaultLogStream
	}

	if s.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.queryTimeout)
		defer cancel()
	}

	records, err := s.index.Query(ctx, kind, name, req.From, req.To)
	if err != nil {
		return nil, toStatus(err)
	}
	types.SortByTimestampDesc(records)
	return &QueryResponse{Records: records, Count: len(records)}, nil
}

// Names lists the names of a kind.
func (s *EventsServer) Names(ctx context.Context, req *NamesRequest) (*NamesResponse, error) {
	names, err := s.index.Names(ctx, kindOrDefault(req.Kind))
	if err != nil {
		return nil, toStatus(err)
	}
	return &NamesResponse{Names: names}, nil
}

func kindOrDefault(k types.Kind) types.Kind {
	if k == "" {
		return types.KindEvents
	}
	return k
}

// toStatus maps index errors onto gRPC status codes.
func toStatus(err error) error {
	switch {
	case berrors.GetCategory(err) == berrors.ErrCategoryValidation:
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case berrors.IsRetryable(err):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// extractRequestID extracts or generates a request ID from the gRPC context.
func extractRequestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get("x-request-id"); len(ids) > 0 {
			return ids[0]
		}
	}
	return uuid.New().String()
}

func loggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("elapsed", time.Since(start)),
		}
		if err != nil {
			logger.Warn("rpc failed", append(fields, zap.Error(err))...)
		} else {
			logger.Info("rpc", fields...)
		}
		return resp, err
	}
}
