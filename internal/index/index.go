// Package index stores records under time-bucketed keys and answers name +
// time range queries with one prefix scan per coalesced bucket.
//
// Store layout (segments):
//
//	[records keyspace, name, year, month, day, hour, minute, id] -> record
//	[names keyspace, name]                                       -> marker
//
// Events use keyspaces "e" and "n"; logs use "l" and "ln".
package index

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	berrors "github.com/drg101/beaverlog/internal/errors"
	"github.com/drg101/beaverlog/internal/observability"
	"github.com/drg101/beaverlog/internal/storage"
	"github.com/drg101/beaverlog/internal/timekey"
	"github.com/drg101/beaverlog/pkg/types"
)

// Config holds configuration for the index.
type Config struct {
	// Concurrency is the number of parallel prefix scans per query (default: 16)
	Concurrency int

	// ScanRetries is how many times a prefix scan is re-issued after a
	// retryable storage error (default: 2). Zero disables retries.
	ScanRetries int

	// RetryInterval is the initial backoff between scan retries (default: 50ms)
	RetryInterval time.Duration
}

// DefaultConfig returns the default index configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency:   16,
		ScanRetries:   2,
		RetryInterval: 50 * time.Millisecond,
	}
}

type keyspace struct {
	records string
	names   string
}

var keyspaces = map[types.Kind]keyspace{
	types.KindEvents: {records: "e", names: "n"},
	types.KindLogs:   {records: "l", names: "ln"},
}

func keyspaceFor(kind types.Kind) (keyspace, error) {
	ks, ok := keyspaces[kind]
	if !ok {
		return keyspace{}, berrors.NewValidationError(berrors.CodeInvalidKeySegment,
			fmt.Sprintf("unknown record kind %q", kind))
	}
	return ks, nil
}

// Index writes and queries records on a storage.Store.
type Index struct {
	store   storage.Store
	config  Config
	logger  *zap.Logger
	metrics *observability.Metrics
	stats   *observability.QueryStats
}

// Option configures optional collaborators.
type Option func(*Index)

// WithMetrics records Prometheus metrics for writes and queries.
func WithMetrics(m *observability.Metrics) Option {
	return func(ix *Index) { ix.metrics = m }
}

// WithQueryStats records per-name query statistics.
func WithQueryStats(qs *observability.QueryStats) Option {
	return func(ix *Index) { ix.stats = qs }
}

// New creates an index over store.
func New(store storage.Store, config Config, logger *zap.Logger, opts ...Option) *Index {
	if config.Concurrency <= 0 {
		config.Concurrency = 16
	}
	if config.ScanRetries < 0 {
		config.ScanRetries = 0
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = 50 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ix := &Index{
		store:  store,
		config: config,
		logger: logger.With(zap.String("component", "index")),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Put writes one record and its name marker.
func (ix *Index) Put(ctx context.Context, kind types.Kind, rec types.Record) error {
	return ix.PutBatch(ctx, kind, []types.Record{rec})
}

// PutBatch writes records together with one catalog marker per distinct
// name, in a single store batch. Record IDs must already be assigned.
// Record entries precede the markers, so on backends without transactions a
// visible name always has at least one record written.
func (ix *Index) PutBatch(ctx context.Context, kind types.Kind, records []types.Record) error {
	ks, err := keyspaceFor(kind)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return berrors.NewValidationError(berrors.CodeEmptyBatch, "batch contains no records")
	}

	start := time.Now()
	entries := make([]storage.Entry, 0, len(records)+1)
	names := make(map[string]struct{})
	for i, rec := range records {
		key, err := timekey.BuildKey(rec.Name, rec.Timestamp, rec.ID)
		if err != nil {
			var be *berrors.BeaverError
			if errors.As(err, &be) {
				return be.WithDetails(map[string]interface{}{"index": i})
			}
			return err
		}
		value, err := EncodeRecord(rec)
		if err != nil {
			return err
		}
		entries = append(entries, storage.Entry{Key: recordKey(ks, key), Value: value})
		names[rec.Name] = struct{}{}
	}

	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)
	for _, name := range sorted {
		entries = append(entries, storage.Entry{Key: storage.Key{ks.names, name}, Value: []byte{}})
	}

	if err := ix.store.Put(ctx, entries...); err != nil {
		ix.logger.Warn("batch write failed",
			zap.String("kind", string(kind)),
			zap.Int("records", len(records)),
			zap.Error(err))
		return wrapStorage(err, berrors.CodePutFailed, "failed to write records")
	}

	if ix.metrics != nil {
		ix.metrics.RecordsIngested.WithLabelValues(string(kind)).Add(float64(len(records)))
		ix.metrics.IngestDuration.Observe(time.Since(start).Seconds())
	}
	ix.logger.Debug("batch written",
		zap.String("kind", string(kind)),
		zap.Int("records", len(records)),
		zap.Int("names", len(sorted)))
	return nil
}

// Query returns every record of kind/name whose timestamp lies in
// [startMs, endMs]. The range is coalesced into prefixes, each prefix is
// scanned concurrently, results are concatenated in prefix order and
// filtered to the exact range.
//
// startMs > endMs returns an empty result without touching the store. Any
// failed scan fails the whole query, and a cancelled context discards
// whatever was collected.
func (ix *Index) Query(ctx context.Context, kind types.Kind, name string, startMs, endMs int64) ([]types.Record, error) {
	ks, err := keyspaceFor(kind)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, berrors.NewValidationError(berrors.CodeEmptyEventName, "name is required")
	}
	if err := timekey.ValidateSegment(name); err != nil {
		return nil, err
	}

	prefixes := timekey.Coalesce(name, startMs, endMs)
	if len(prefixes) == 0 {
		ix.observeQuery(kind, name, nil, 0, 0, "empty", time.Time{})
		return []types.Record{}, nil
	}

	start := time.Now()
	perPrefix := make([][]types.Record, len(prefixes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.config.Concurrency)
	for i, p := range prefixes {
		i, p := i, p
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			recs, err := ix.scanPrefix(gctx, recordKey(ks, p))
			if err != nil {
				return err
			}
			perPrefix[i] = recs
			return nil
		})
	}
	err = g.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil {
		ix.observeQuery(kind, name, prefixes, 0, 0, "cancelled", start)
		return nil, berrors.NewQueryError(berrors.CodeQueryCancelled, "query cancelled", ctxErr)
	}
	if err != nil {
		ix.logger.Warn("query failed",
			zap.String("kind", string(kind)),
			zap.String("name", name),
			zap.Int("prefixes", len(prefixes)),
			zap.Error(err))
		ix.observeQuery(kind, name, prefixes, 0, 0, "error", start)
		return nil, err
	}

	scanned := 0
	for _, recs := range perPrefix {
		scanned += len(recs)
	}
	out := make([]types.Record, 0, scanned)
	for _, recs := range perPrefix {
		for _, rec := range recs {
			if rec.Timestamp >= startMs && rec.Timestamp <= endMs {
				out = append(out, rec)
			}
		}
	}

	ix.observeQuery(kind, name, prefixes, scanned, len(out), "ok", start)
	return out, nil
}

// Names returns the sorted names that have at least one record of kind.
func (ix *Index) Names(ctx context.Context, kind types.Kind) ([]string, error) {
	ks, err := keyspaceFor(kind)
	if err != nil {
		return nil, err
	}

	names := []string{}
	err = ix.store.ScanPrefix(ctx, storage.Key{ks.names}, func(e storage.Entry) error {
		if len(e.Key) == 2 {
			names = append(names, e.Key[1])
		}
		return nil
	})
	if err != nil {
		return nil, wrapStorage(err, berrors.CodeScanFailed, "failed to list names")
	}
	sort.Strings(names)
	return names, nil
}

// scanPrefix collects and decodes one prefix, re-issuing the scan on
// retryable storage errors. Scans are read-only, so a retry restarts from
// scratch.
func (ix *Index) scanPrefix(ctx context.Context, prefix storage.Key) ([]types.Record, error) {
	var recs []types.Record
	operation := func() error {
		recs = recs[:0]
		err := ix.store.ScanPrefix(ctx, prefix, func(e storage.Entry) error {
			rec, err := DecodeRecord(e.Value)
			if err != nil {
				return err
			}
			recs = append(recs, rec)
			return nil
		})
		if err == nil || berrors.IsRetryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = ix.config.RetryInterval
	policy.MaxElapsedTime = 0
	notify := func(err error, wait time.Duration) {
		if ix.metrics != nil {
			ix.metrics.ScanRetries.Inc()
		}
		ix.logger.Debug("retrying prefix scan",
			zap.Stringer("prefix", prefix),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	err := backoff.RetryNotify(operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(ix.config.ScanRetries)), ctx),
		notify)
	if err != nil {
		return nil, wrapStorage(err, berrors.CodeScanFailed, "scan of "+prefix.String()+" failed")
	}
	return recs, nil
}

func (ix *Index) observeQuery(kind types.Kind, name string, prefixes []timekey.Prefix, scanned, returned int, outcome string, start time.Time) {
	byGranularity := make(map[string]int)
	for _, p := range prefixes {
		byGranularity[p.Granularity().String()]++
	}

	if ix.metrics != nil {
		ix.metrics.Queries.WithLabelValues(string(kind), outcome).Inc()
		for g, n := range byGranularity {
			ix.metrics.PrefixesScanned.WithLabelValues(g).Add(float64(n))
		}
		ix.metrics.RecordsScanned.Add(float64(scanned))
		ix.metrics.RecordsReturned.Add(float64(returned))
		if !start.IsZero() {
			ix.metrics.QueryDuration.Observe(time.Since(start).Seconds())
		}
	}
	if ix.stats != nil {
		ix.stats.RecordQuery(string(kind), name, byGranularity)
	}
	if outcome == "ok" {
		ix.logger.Debug("query complete",
			zap.String("kind", string(kind)),
			zap.String("name", name),
			zap.Int("prefixes", len(prefixes)),
			zap.Int("scanned", scanned),
			zap.Int("returned", returned),
			zap.Duration("elapsed", time.Since(start)))
	}
}

func recordKey(ks keyspace, segments []string) storage.Key {
	key := make(storage.Key, 0, len(segments)+1)
	key = append(key, ks.records)
	return append(key, segments...)
}

// wrapStorage passes structured and context errors through and wraps
// anything else as a storage error with the given code.
func wrapStorage(err error, code, msg string) error {
	var be *berrors.BeaverError
	if errors.As(err, &be) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return berrors.NewStorageError(code, msg, err)
}
