package index

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/drg101/beaverlog/internal/storage"
	"github.com/drg101/beaverlog/pkg/types"
)

// BenchmarkQuery measures a day-wide query over a memory store holding one
// record per minute.
func BenchmarkQuery(b *testing.B) {
	ctx := context.Background()
	ix := New(storage.NewMemoryStore(16), DefaultConfig(), zap.NewNop())

	day := time.Date(2024, 7, 2, 0, 0, 0, 0, time.UTC)
	records := make([]types.Record, 0, 24*60)
	for m := 0; m < 24*60; m++ {
		ts := day.Add(time.Duration(m) * time.Minute).UnixMilli()
		records = append(records, record(fmt.Sprintf("r%04d", m), "signup", ts))
	}
	if err := ix.PutBatch(ctx, types.KindEvents, records); err != nil {
		b.Fatal(err)
	}

	start := day.Add(90 * time.Second).UnixMilli()
	end := day.Add(23*time.Hour + 30*time.Minute).UnixMilli()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		out, err := ix.Query(ctx, types.KindEvents, "signup", start, end)
		if err != nil {
			b.Fatal(err)
		}
		if len(out) == 0 {
			b.Fatal("expected records")
		}
	}
}

// BenchmarkPutBatch measures ingestion of 1000-record batches.
func BenchmarkPutBatch(b *testing.B) {
	ctx := context.Background()
	ix := New(storage.NewMemoryStore(16), DefaultConfig(), zap.NewNop())

	base := time.Date(2024, 7, 2, 0, 0, 0, 0, time.UTC).UnixMilli()
	records := make([]types.Record, 1000)
	for i := range records {
		records[i] = record(fmt.Sprintf("r%04d", i), "signup", base+int64(i)*1000)
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if err := ix.PutBatch(ctx, types.KindEvents, records); err != nil {
			b.Fatal(err)
		}
	}
	b.ReportMetric(float64(b.N*len(records))/b.Elapsed().Seconds(), "records/sec")
}
