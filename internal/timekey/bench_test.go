package timekey

import (
	"testing"
	"time"
)

// BenchmarkCoalesce measures prefix generation for a range that touches
// every granularity.
func BenchmarkCoalesce(b *testing.B) {
	start := time.Date(2023, 11, 30, 23, 58, 30, 0, time.UTC).UnixMilli()
	end := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC).UnixMilli()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if len(Coalesce("signup", start, end)) == 0 {
			b.Fatal("expected prefixes")
		}
	}
}

// BenchmarkBuildKey measures key construction for a single record.
func BenchmarkBuildKey(b *testing.B) {
	ts := time.Date(2024, 7, 2, 14, 30, 25, 0, time.UTC).UnixMilli()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := BuildKey("signup", ts, "01J1Z3Y4X5W6V7T8S9R0Q1P2N3"); err != nil {
			b.Fatal(err)
		}
	}
}
