package types

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// IDGenerator produces record identifiers for the ingestion path.
// IDs are ULIDs stamped with the record's own timestamp, so records that share
// a minute bucket sort by time inside it. IDs drawn for the same millisecond
// are monotonically increasing.
type IDGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

// NewIDGenerator creates a new ID generator backed by crypto/rand.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

// NewID returns a new ULID string for a record stamped at timestampMs.
// Timestamps a ULID cannot carry (before 1970 or past year 10889) fall back
// to the current time; uniqueness is unaffected.
func (g *IDGenerator) NewID(timestampMs int64) (string, error) {
	ms := uint64(timestampMs)
	if timestampMs < 0 || ms > ulid.MaxTime() {
		ms = ulid.Timestamp(g.now())
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	id, err := ulid.New(ms, g.entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
