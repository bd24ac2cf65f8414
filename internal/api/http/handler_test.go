package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	berrors "github.com/drg101/beaverlog/internal/errors"
	"github.com/drg101/beaverlog/internal/index"
	"github.com/drg101/beaverlog/internal/observability"
	"github.com/drg101/beaverlog/internal/storage"
	"github.com/drg101/beaverlog/pkg/types"
)

func newTestServer(t *testing.T, opts ...Option) *httptest.Server {
	t.Helper()
	ix := index.New(storage.NewMemoryStore(4), index.DefaultConfig(), zap.NewNop())
	srv := httptest.NewServer(NewHandler(ix, opts...).Routes())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func TestEvents_IngestAndQuery(t *testing.T) {
	srv := newTestServer(t)

	body := `[
		{"name":"pageview","timestamp":1719930625000,"uid":"u1","session_id":"s1","meta":{"path":"/"}},
		{"name":"pageview","timestamp":1719930685000,"uid":"u1","session_id":"s1"},
		{"name":"signup","timestamp":1719930625000,"uid":"u2","session_id":"s2"}
	]`
	resp, raw := do(t, http.MethodPost, srv.URL+"/v1/events", body)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	var ingest IngestResponse
	require.NoError(t, json.Unmarshal(raw, &ingest))
	assert.True(t, ingest.Success)
	assert.Equal(t, 3, ingest.Count)
	assert.Len(t, ingest.IDs, 3)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, raw = do(t, http.MethodGet, srv.URL+"/v1/events?name=pageview&from=1719930600000&to=1719930720000", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	var events EventsResponse
	require.NoError(t, json.Unmarshal(raw, &events))
	require.Equal(t, 2, events.Count)
	// newest first
	assert.Equal(t, int64(1719930685000), events.Events[0].Timestamp)
	assert.Equal(t, int64(1719930625000), events.Events[1].Timestamp)
	assert.Equal(t, ingest.IDs[0], events.Events[1].ID)
	assert.JSONEq(t, `{"path":"/"}`, string(events.Events[1].Meta))

	resp, raw = do(t, http.MethodGet, srv.URL+"/v1/event-names", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var names NamesResponse
	require.NoError(t, json.Unmarshal(raw, &names))
	assert.Equal(t, []string{"pageview", "signup"}, names.Names)
}

func TestEvents_QueryValidation(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name   string
		query  string
		status int
		errMsg string
	}{
		{"missing name", "?from=1&to=2", http.StatusBadRequest, "'name'"},
		{"missing from", "?name=x&to=2", http.StatusBadRequest, "'from' and 'to'"},
		{"missing to", "?name=x&from=1", http.StatusBadRequest, "'from' and 'to'"},
		{"non-integer", "?name=x&from=yesterday&to=2", http.StatusBadRequest, "Invalid timestamp format"},
		{"float", "?name=x&from=1.5&to=2", http.StatusBadRequest, "Invalid timestamp format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, raw := do(t, http.MethodGet, srv.URL+"/v1/events"+tt.query, "")
			assert.Equal(t, tt.status, resp.StatusCode)
			var e ErrorResponse
			require.NoError(t, json.Unmarshal(raw, &e))
			assert.Contains(t, e.Error, tt.errMsg)
		})
	}
}

func TestEvents_InvertedRangeIsEmpty(t *testing.T) {
	srv := newTestServer(t)

	resp, raw := do(t, http.MethodGet, srv.URL+"/v1/events?name=x&from=2000&to=1000", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"events":[],"count":0}`, string(raw))
}

func TestEvents_IngestValidation(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"not json", `{`, http.StatusBadRequest},
		{"not an array", `{"name":"x"}`, http.StatusBadRequest},
		{"empty array", `[]`, http.StatusBadRequest},
		{"missing name", `[{"timestamp":1}]`, http.StatusBadRequest},
		{"missing timestamp", `[{"name":"x"}]`, http.StatusBadRequest},
		{"meta not object", `[{"name":"x","timestamp":1,"meta":[1,2]}]`, http.StatusBadRequest},
		{"nul in name", `[{"name":"a\u0000b","timestamp":1}]`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, raw := do(t, http.MethodPost, srv.URL+"/v1/events", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode, string(raw))
		})
	}
}

func TestEvents_BodyTooLarge(t *testing.T) {
	srv := newTestServer(t, WithMaxBodyBytes(64))

	body := `[{"name":"` + strings.Repeat("x", 200) + `","timestamp":1}]`
	resp, _ := do(t, http.MethodPost, srv.URL+"/v1/events", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestLogs_IngestAndQuery(t *testing.T) {
	srv := newTestServer(t)

	body := `[
		{"message":"boot","timestamp":1719930625000,"uid":"u1","session_id":"s1","level":"info"},
		{"message":"disk full","timestamp":1719930626000,"uid":"u1","session_id":"s1","level":"error","data":{"disk":"/dev/sda"}},
		{"message":"payment","stream":"billing","timestamp":1719930627000,"uid":"u1","session_id":"s1"}
	]`
	resp, raw := do(t, http.MethodPost, srv.URL+"/v1/logs", body)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	resp, raw = do(t, http.MethodGet, srv.URL+"/v1/logs?from=1719930600000&to=1719930700000", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	var logs LogsResponse
	require.NoError(t, json.Unmarshal(raw, &logs))
	require.Equal(t, 2, logs.Count)
	assert.Equal(t, "disk full", logs.Logs[0].Message)
	assert.Equal(t, "error", logs.Logs[0].Level)
	assert.Equal(t, types.DefaultLogStream, logs.Logs[0].Stream)
	assert.JSONEq(t, `{"disk":"/dev/sda"}`, string(logs.Logs[0].Data))

	resp, raw = do(t, http.MethodGet, srv.URL+"/v1/logs?stream=billing&from=1719930600000&to=1719930700000", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(raw, &logs))
	require.Equal(t, 1, logs.Count)
	assert.Equal(t, "payment", logs.Logs[0].Message)

	// Log streams never show up as event names.
	_, raw = do(t, http.MethodGet, srv.URL+"/v1/event-names", "")
	assert.JSONEq(t, `{"names":[]}`, string(raw))

	_, raw = do(t, http.MethodGet, srv.URL+"/v1/log-streams", "")
	assert.JSONEq(t, `{"names":["billing","default"]}`, string(raw))
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t)
	resp, _ := do(t, http.MethodDelete, srv.URL+"/v1/events", "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	metrics := observability.NewMetrics()
	srv := newTestServer(t, WithMetrics(metrics))

	resp, raw := do(t, http.MethodGet, srv.URL+"/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(raw))

	resp, raw = do(t, http.MethodGet, srv.URL+"/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "beaverlog_http_rate_limited_total")
}

func TestStatsEndpoint(t *testing.T) {
	stats := observability.NewQueryStats(time.Hour)
	ix := index.New(storage.NewMemoryStore(1), index.DefaultConfig(), zap.NewNop(), index.WithQueryStats(stats))
	srv := httptest.NewServer(NewHandler(ix, WithQueryStats(stats)).Routes())
	defer srv.Close()

	do(t, http.MethodGet, srv.URL+"/v1/events?name=click&from=0&to=59999", "")
	resp, raw := do(t, http.MethodGet, srv.URL+"/v1/stats?top=5", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out StatsResponse
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Len(t, out.Names, 1)
	assert.Equal(t, "click", out.Names[0].Name)
	assert.Equal(t, int64(1), out.Names[0].Frequency)

	resp, _ = do(t, http.MethodGet, srv.URL+"/v1/stats?top=-1", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	metrics := observability.NewMetrics()
	srv := newTestServer(t, WithMetrics(metrics), WithRateLimiter(NewRateLimiter(0.001, 2)))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, _ := do(t, http.MethodGet, srv.URL+"/v1/event-names", "")
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RateLimitedTotal))

	// Health checks are not limited.
	resp, _ := do(t, http.MethodGet, srv.URL+"/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRateLimiter_Cleanup(t *testing.T) {
	l := NewRateLimiter(1, 1)
	base := time.Date(2024, 7, 2, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return base }
	l.Allow("10.0.0.1")
	l.now = func() time.Time { return base.Add(time.Hour) }
	l.Allow("10.0.0.2")

	l.Cleanup()
	assert.Equal(t, 1, l.Len())
}

func TestClientAddr(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.1:4321"
	assert.Equal(t, "192.0.2.1", clientAddr(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", clientAddr(r))
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCorrelationIDFallsBackToRequestID(t *testing.T) {
	var seen string
	h := ChainMiddleware(RequestIDMiddleware, CorrelationIDMiddleware)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetCorrelationID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "req-42", seen)
	assert.Equal(t, "req-42", rec.Header().Get("X-Correlation-ID"))
}

// stubIndex returns canned errors.
type stubIndex struct {
	err error
}

func (s stubIndex) PutBatch(context.Context, types.Kind, []types.Record) error { return s.err }

func (s stubIndex) Query(ctx context.Context, _ types.Kind, _ string, _, _ int64) ([]types.Record, error) {
	return nil, s.err
}

func (s stubIndex) Names(context.Context, types.Kind) ([]string, error) { return nil, s.err }

func TestQueryErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"scan failure", berrors.NewStorageError(berrors.CodeScanFailed, "scan failed", errors.New("io")), http.StatusInternalServerError, berrors.CodeScanFailed},
		{"deadline", berrors.NewQueryError(berrors.CodeQueryCancelled, "query cancelled", context.DeadlineExceeded), http.StatusGatewayTimeout, berrors.CodeQueryCancelled},
		{"validation", berrors.NewValidationError(berrors.CodeEmptyEventName, "name is required"), http.StatusBadRequest, berrors.CodeEmptyEventName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(NewHandler(stubIndex{err: tt.err}).Routes())
			defer srv.Close()

			resp, raw := do(t, http.MethodGet, srv.URL+"/v1/events?name=x&from=0&to="+strconv.Itoa(60000), "")
			assert.Equal(t, tt.status, resp.StatusCode)
			var e ErrorResponse
			require.NoError(t, json.Unmarshal(raw, &e))
			assert.Equal(t, tt.code, e.Code)
		})
	}
}

func TestQueryTimeoutApplied(t *testing.T) {
	var deadline time.Time
	var hasDeadline bool
	ix := queryFunc(func(ctx context.Context) {
		deadline, hasDeadline = ctx.Deadline()
	})
	srv := httptest.NewServer(NewHandler(ix, WithQueryTimeout(time.Minute)).Routes())
	defer srv.Close()

	resp, _ := do(t, http.MethodGet, srv.URL+"/v1/events?name=x&from=0&to=1", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, hasDeadline)
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
}

// queryFunc observes the query context and returns no records.
type queryFunc func(ctx context.Context)

func (f queryFunc) PutBatch(context.Context, types.Kind, []types.Record) error { return nil }

func (f queryFunc) Query(ctx context.Context, _ types.Kind, _ string, _, _ int64) ([]types.Record, error) {
	f(ctx)
	return []types.Record{}, nil
}

func (f queryFunc) Names(context.Context, types.Kind) ([]string, error) { return []string{}, nil }
