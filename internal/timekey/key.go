package timekey

import (
	"fmt"
	"strings"

	berrors "github.com/drg101/beaverlog/internal/errors"
)

// EventKeyLen is the number of segments in a record key:
// name, five calendar components, unique id.
const EventKeyLen = 7

// BuildKey returns the storage key for one record:
// [eventName, year, month, day, hour, minute, uniqueID].
// uniqueID is opaque here; callers guarantee its uniqueness so records in the
// same minute bucket never share a key.
func BuildKey(eventName string, timestampMs int64, uniqueID string) ([]string, error) {
	if eventName == "" {
		return nil, berrors.NewValidationError(berrors.CodeEmptyEventName, "event name is required")
	}
	if uniqueID == "" {
		return nil, berrors.NewValidationError(berrors.CodeEmptyUniqueID, "unique id is required")
	}
	if err := ValidateSegment(eventName); err != nil {
		return nil, err
	}
	if err := ValidateSegment(uniqueID); err != nil {
		return nil, err
	}

	key := make([]string, 0, EventKeyLen)
	key = append(key, eventName)
	key = append(key, Encode(timestampMs)...)
	key = append(key, uniqueID)
	return key, nil
}

// ParseKey splits a record key produced by BuildKey.
func ParseKey(key []string) (eventName string, tk TimeKey, uniqueID string, err error) {
	if len(key) != EventKeyLen {
		return "", nil, "", berrors.NewValidationError(berrors.CodeInvalidTimeKey,
			fmt.Sprintf("record key must have %d segments, got %d", EventKeyLen, len(key)))
	}
	tk = TimeKey(key[1 : EventKeyLen-1])
	if _, err := Decode(tk); err != nil {
		return "", nil, "", err
	}
	return key[0], tk, key[EventKeyLen-1], nil
}

// ValidateSegment rejects segments the byte-ordered key encoding cannot carry.
func ValidateSegment(s string) error {
	if strings.IndexByte(s, 0) >= 0 {
		return berrors.NewValidationError(berrors.CodeInvalidKeySegment,
			fmt.Sprintf("segment %q contains a NUL byte", s))
	}
	return nil
}
