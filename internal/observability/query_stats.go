// Package observability provides query statistics and Prometheus metrics.
package observability

import (
	"sort"
	"sync"
	"time"
)

// QueryStats tracks which names are queried and how their ranges coalesce,
// for the /v1/stats endpoint and capacity planning.
type QueryStats struct {
	mu       sync.RWMutex
	nameFreq map[string]*NameStats
	window   time.Duration
	now      func() time.Time
}

// NameStats holds statistics for one queried name.
type NameStats struct {
	Name      string         `json:"name"`
	Kind      string         `json:"kind"`
	Frequency int64          `json:"frequency"`
	LastSeen  time.Time      `json:"last_seen"`
	Prefixes  map[string]int `json:"prefixes"` // granularity → prefixes scanned (e.g., "hour" → 12)
}

// NewQueryStats creates a new query statistics tracker.
// window: time duration for pruning old entries (e.g., 1 hour)
func NewQueryStats(window time.Duration) *QueryStats {
	return &QueryStats{
		nameFreq: make(map[string]*NameStats),
		window:   window,
		now:      time.Now,
	}
}

// RecordQuery records one query for kind/name and the number of prefixes it
// scanned per granularity. Safe for concurrent use.
func (q *QueryStats) RecordQuery(kind, name string, prefixes map[string]int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	id := kind + "/" + name
	stats, exists := q.nameFreq[id]
	if !exists {
		stats = &NameStats{
			Name:     name,
			Kind:     kind,
			Prefixes: make(map[string]int),
		}
		q.nameFreq[id] = stats
	}

	stats.Frequency++
	stats.LastSeen = q.now()
	for g, n := range prefixes {
		stats.Prefixes[g] += n
	}
}

// GetTopNames returns the top N names by query frequency.
// Returns copies sorted by frequency (descending), ties by name.
func (q *QueryStats) GetTopNames(n int) []NameStats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if n <= 0 || len(q.nameFreq) == 0 {
		return []NameStats{}
	}

	stats := make([]NameStats, 0, len(q.nameFreq))
	for _, s := range q.nameFreq {
		statsCopy := *s
		statsCopy.Prefixes = make(map[string]int, len(s.Prefixes))
		for g, count := range s.Prefixes {
			statsCopy.Prefixes[g] = count
		}
		stats = append(stats, statsCopy)
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Frequency != stats[j].Frequency {
			return stats[i].Frequency > stats[j].Frequency
		}
		if stats[i].Kind != stats[j].Kind {
			return stats[i].Kind < stats[j].Kind
		}
		return stats[i].Name < stats[j].Name
	})

	if n > len(stats) {
		n = len(stats)
	}
	return stats[:n]
}

// Prune removes entries where time.Since(LastSeen) > window.
// This should be called periodically (e.g., every 5 minutes).
func (q *QueryStats) Prune() {
	q.mu.Lock()
	defer q.mu.Unlock()

	threshold := q.now().Add(-q.window)
	for id, stats := range q.nameFreq {
		if stats.LastSeen.Before(threshold) {
			delete(q.nameFreq, id)
		}
	}
}

// Len returns the number of tracked names.
func (q *QueryStats) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.nameFreq)
}
