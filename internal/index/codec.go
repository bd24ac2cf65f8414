package index

import (
	"encoding/json"
	"sync"

	"github.com/golang/snappy"

	berrors "github.com/drg101/beaverlog/internal/errors"
	"github.com/drg101/beaverlog/pkg/types"
)

// snappyDecodeBufPool provides reusable destination buffers for Snappy decoding.
var snappyDecodeBufPool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, 0, 4096)
		return &b
	},
}

// EncodeRecord serializes a record for storage: JSON, then Snappy.
func EncodeRecord(rec types.Record) ([]byte, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, berrors.NewInternalError("failed to marshal record", err)
	}
	return snappy.Encode(nil, raw), nil
}

// DecodeRecord reverses EncodeRecord.
func DecodeRecord(value []byte) (types.Record, error) {
	bufPtr := snappyDecodeBufPool.Get().(*[]byte)
	defer snappyDecodeBufPool.Put(bufPtr)

	n, err := snappy.DecodedLen(value)
	if err != nil {
		return types.Record{}, berrors.NewStorageError(berrors.CodeCorruptValue, "record is not snappy encoded", err)
	}
	buf := *bufPtr
	if cap(buf) < n {
		buf = make([]byte, n)
	}
	raw, err := snappy.Decode(buf[:cap(buf)], value)
	if err != nil {
		return types.Record{}, berrors.NewStorageError(berrors.CodeCorruptValue, "record is not snappy encoded", err)
	}
	*bufPtr = raw[:0]

	// Unmarshal copies strings and RawMessage bytes out of raw, so the buffer
	// can go back to the pool.
	var rec types.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return types.Record{}, berrors.NewStorageError(berrors.CodeCorruptValue, "record is not valid JSON", err)
	}
	return rec, nil
}
