// Package types provides core data types for beaverlog.
package types

import (
	"encoding/json"
	"sort"
	"time"
)

// Kind separates the record families the index serves. Each kind lives in
// its own keyspace so events and logs never share buckets.
type Kind string

const (
	// KindEvents holds named product/analytics events.
	KindEvents Kind = "events"

	// KindLogs holds log lines, bucketed by stream name.
	KindLogs Kind = "logs"
)

// DefaultLogStream is the name used for log records that carry no stream.
const DefaultLogStream = "default"

// Record is a single immutable event or log entry.
type Record struct {
	// ID is the globally unique identifier assigned at ingestion (a ULID)
	ID string `json:"id"`

	// Name is the event name (or log stream) the record is bucketed under
	Name string `json:"name"`

	// Timestamp is the Unix timestamp in milliseconds, UTC
	Timestamp int64 `json:"timestamp"`

	// UID identifies the end user that produced the record
	UID string `json:"uid,omitempty"`

	// SessionID identifies the client session
	SessionID string `json:"session_id,omitempty"`

	// Message is the log line for KindLogs records
	Message string `json:"message,omitempty"`

	// Level is the optional severity of a log record
	Level string `json:"level,omitempty"`

	// Payload is caller metadata, kept as an opaque JSON blob
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Time returns the record timestamp as a UTC time.Time.
func (r Record) Time() time.Time {
	return time.UnixMilli(r.Timestamp).UTC()
}

// SortByTimestamp orders records oldest first. Ties keep their input order.
func SortByTimestamp(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp < records[j].Timestamp
	})
}

// SortByTimestampDesc orders records newest first. Ties keep their input order.
func SortByTimestampDesc(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp > records[j].Timestamp
	})
}
