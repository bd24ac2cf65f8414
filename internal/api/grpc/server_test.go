package grpc

import (
	"context"
	"encoding/json"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/drg101/beaverlog/internal/index"
	"github.com/drg101/beaverlog/internal/storage"
	"github.com/drg101/beaverlog/pkg/types"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	ix := index.New(storage.NewMemoryStore(4), index.DefaultConfig(), zap.NewNop())
	srv := NewServer(NewEventsServer(ix, 0), zap.NewNop())

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return NewClient(conn)
}

func TestEventsService_IngestQueryNames(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	ingest, err := client.Ingest(ctx, &IngestRequest{
		Kind: types.KindEvents,
		Records: []types.Record{
			{Name: "pageview", Timestamp: 1719930625000, UID: "u1", Payload: json.RawMessage(`{"path":"/"}`)},
			{Name: "pageview", Timestamp: 1719930685000, UID: "u1"},
			{ID: "fixed-id", Name: "signup", Timestamp: 1719930625000},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, ingest.Count)
	require.Len(t, ingest.IDs, 3)
	assert.Equal(t, "fixed-id", ingest.IDs[2])
	assert.NotEmpty(t, ingest.RequestID)

	resp, err := client.Query(ctx, &QueryRequest{Name: "pageview", From: 1719930600000, To: 1719930720000})
	require.NoError(t, err)
	require.Equal(t, 2, resp.Count)
	assert.Equal(t, int64(1719930685000), resp.Records[0].Timestamp)
	assert.JSONEq(t, `{"path":"/"}`, string(resp.Records[1].Payload))

	names, err := client.Names(ctx, &NamesRequest{Kind: types.KindEvents})
	require.NoError(t, err)
	assert.Equal(t, []string{"pageview", "signup"}, names.Names)
}

func TestEventsService_LogsDefaultStream(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	_, err := client.Ingest(ctx, &IngestRequest{
		Kind:    types.KindLogs,
		Records: []types.Record{{Timestamp: 1000, Message: "boot", Level: "info"}},
	})
	require.NoError(t, err)

	resp, err := client.Query(ctx, &QueryRequest{Kind: types.KindLogs, From: 0, To: 2000})
	require.NoError(t, err)
	require.Len(t, resp.Records, 1)
	assert.Equal(t, types.DefaultLogStream, resp.Records[0].Name)
	assert.Equal(t, "boot", resp.Records[0].Message)
}

func TestEventsService_Errors(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	_, err := client.Ingest(ctx, &IngestRequest{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.Ingest(ctx, &IngestRequest{Records: []types.Record{{Timestamp: 1}}})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.Query(ctx, &QueryRequest{From: 0, To: 1})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	resp, err := client.Query(ctx, &QueryRequest{Name: "x", From: 10, To: 1})
	require.NoError(t, err)
	assert.Zero(t, resp.Count)
}

func TestToStatus(t *testing.T) {
	assert.Equal(t, codes.DeadlineExceeded, status.Code(toStatus(context.DeadlineExceeded)))
	assert.Equal(t, codes.Canceled, status.Code(toStatus(context.Canceled)))
}
