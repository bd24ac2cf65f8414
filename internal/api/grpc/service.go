package grpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/drg101/beaverlog/pkg/types"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "beaverlog.v1.Events"

// IngestRequest writes a batch of records of one kind.
type IngestRequest struct {
	Kind    types.Kind     `json:"kind"`
	Records []types.Record `json:"records"`
}

// IngestResponse reports the IDs assigned to an ingested batch.
type IngestResponse struct {
	Count     int      `json:"count"`
	IDs       []string `json:"ids"`
	RequestID string   `json:"request_id"`
}

// QueryRequest selects records of one name within [From, To] (ms, inclusive).
type QueryRequest struct {
	Kind types.Kind `json:"kind"`
	Name string     `json:"name"`
	From int64      `json:"from"`
	To   int64      `json:"to"`
}

// QueryResponse carries query results, newest first.
type QueryResponse struct {
	Records []types.Record `json:"records"`
	Count   int            `json:"count"`
}

// NamesRequest lists the names of one kind.
type NamesRequest struct {
	Kind types.Kind `json:"kind"`
}

// NamesResponse carries the sorted names.
type NamesResponse struct {
	Names []string `json:"names"`
}

// EventsService is the server API of beaverlog.v1.Events.
type EventsService interface {
	Ingest(context.Context, *IngestRequest) (*IngestResponse, error)
	Query(context.Context, *QueryRequest) (*QueryResponse, error)
	Names(context.Context, *NamesRequest) (*NamesResponse, error)
}

// ServiceDesc describes beaverlog.v1.Events for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EventsService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Ingest", Handler: ingestHandler},
		{MethodName: "Query", Handler: queryHandler},
		{MethodName: "Names", Handler: namesHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "beaverlog/v1/events",
}

// RegisterEventsService registers svc on s.
func RegisterEventsService(s grpc.ServiceRegistrar, svc EventsService) {
	s.RegisterService(&ServiceDesc, svc)
}

func ingestHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(IngestRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EventsService).Ingest(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Ingest"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(EventsService).Ingest(ctx, req.(*IngestRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func queryHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(QueryRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EventsService).Query(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Query"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(EventsService).Query(ctx, req.(*QueryRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func namesHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(NamesRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EventsService).Names(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Names"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(EventsService).Names(ctx, req.(*NamesRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// Client calls beaverlog.v1.Events.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps a connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in, out interface{}, opts ...grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...)
}

// Ingest writes a batch.
func (c *Client) Ingest(ctx context.Context, in *IngestRequest, opts ...grpc.CallOption) (*IngestResponse, error) {
	out := new(IngestResponse)
	if err := c.invoke(ctx, "Ingest", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Query runs a range query.
func (c *Client) Query(ctx context.Context, in *QueryRequest, opts ...grpc.CallOption) (*QueryResponse, error) {
	out := new(QueryResponse)
	if err := c.invoke(ctx, "Query", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Names lists names of a kind.
func (c *Client) Names(ctx context.Context, in *NamesRequest, opts ...grpc.CallOption) (*NamesResponse, error) {
	out := new(NamesResponse)
	if err := c.invoke(ctx, "Names", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
