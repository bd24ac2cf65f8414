package index

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/golang/snappy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	berrors "github.com/drg101/beaverlog/internal/errors"
	"github.com/drg101/beaverlog/pkg/types"
)

func TestRecordCodec(t *testing.T) {
	rec := types.Record{
		ID:        "01J1ZK6Y3S8X1V0000000000",
		Name:      "checkout",
		Timestamp: 1719930625000,
		UID:       "user-7",
		SessionID: "sess-1",
		Payload:   json.RawMessage(`{"cart":{"items":3,"total":42.5}}`),
	}

	value, err := EncodeRecord(rec)
	require.NoError(t, err)

	got, err := DecodeRecord(value)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.Name, got.Name)
	assert.Equal(t, rec.Timestamp, got.Timestamp)
	assert.Equal(t, rec.UID, got.UID)
	assert.Equal(t, rec.SessionID, got.SessionID)
	assert.JSONEq(t, string(rec.Payload), string(got.Payload))
}

func TestRecordCodec_LargeValuesReusePool(t *testing.T) {
	big := types.Record{
		ID:        "big",
		Name:      "logs",
		Timestamp: 1,
		Message:   strings.Repeat("x", 64<<10),
	}
	small := types.Record{ID: "small", Name: "logs", Timestamp: 2, Message: "y"}

	bigValue, err := EncodeRecord(big)
	require.NoError(t, err)
	smallValue, err := EncodeRecord(small)
	require.NoError(t, err)

	// Decoded records must not alias the pooled buffer.
	first, err := DecodeRecord(bigValue)
	require.NoError(t, err)
	second, err := DecodeRecord(smallValue)
	require.NoError(t, err)
	assert.Len(t, first.Message, 64<<10)
	assert.Equal(t, "y", second.Message)
}

func TestDecodeRecord_Corrupt(t *testing.T) {
	_, err := DecodeRecord([]byte("definitely not snappy"))
	assert.Equal(t, berrors.CodeCorruptValue, berrors.GetCode(err))
	assert.False(t, berrors.IsRetryable(err))

	_, err = DecodeRecord(snappy.Encode(nil, []byte("{not json")))
	assert.Equal(t, berrors.CodeCorruptValue, berrors.GetCode(err))
}
