package storage

import (
	"bytes"
	"fmt"

	berrors "github.com/drg101/beaverlog/internal/errors"
)

// Segment tags. Numeric segments sort before string segments at the same
// position.
const (
	tagNumber byte = 0x01
	tagString byte = 0x02

	stringTerminator byte = 0x00
	maxNumberDigits       = 255
)

// EncodeKey maps a segment key onto bytes for byte-ordered backends.
//
// Canonical decimal segments ("0", "7", "2024") are written as
// tagNumber, digit count, digits, so byte order is numeric order and "2"
// sorts before "12". Everything else is written as tagString, raw bytes, NUL.
// Each segment encoding is self-delimiting, which makes a segment-wise prefix
// a byte prefix and nothing else: ["a"] is not a byte prefix of ["ab"].
func EncodeKey(key Key) ([]byte, error) {
	size := 0
	for _, s := range key {
		size += len(s) + 2
	}
	buf := make([]byte, 0, size)

	for i, s := range key {
		if isCanonicalNumber(s) {
			buf = append(buf, tagNumber, byte(len(s)))
			buf = append(buf, s...)
			continue
		}
		if bytes.IndexByte([]byte(s), stringTerminator) >= 0 {
			return nil, berrors.NewValidationError(berrors.CodeInvalidKeySegment,
				fmt.Sprintf("segment %d contains a NUL byte", i))
		}
		buf = append(buf, tagString)
		buf = append(buf, s...)
		buf = append(buf, stringTerminator)
	}
	return buf, nil
}

// DecodeKey reverses EncodeKey.
func DecodeKey(b []byte) (Key, error) {
	var key Key
	for len(b) > 0 {
		switch b[0] {
		case tagNumber:
			if len(b) < 2 || len(b) < 2+int(b[1]) {
				return nil, corruptKey("truncated numeric segment")
			}
			n := int(b[1])
			key = append(key, string(b[2:2+n]))
			b = b[2+n:]
		case tagString:
			end := bytes.IndexByte(b[1:], stringTerminator)
			if end < 0 {
				return nil, corruptKey("unterminated string segment")
			}
			key = append(key, string(b[1:1+end]))
			b = b[2+end:]
		default:
			return nil, corruptKey(fmt.Sprintf("unknown segment tag 0x%02x", b[0]))
		}
	}
	return key, nil
}

// PrefixEnd returns the smallest byte string greater than every string that
// starts with prefix, or nil when no such bound exists (all 0xff).
func PrefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

func isCanonicalNumber(s string) bool {
	if s == "" || len(s) > maxNumberDigits {
		return false
	}
	if len(s) > 1 && s[0] == '0' {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func corruptKey(msg string) error {
	return berrors.NewStorageError(berrors.CodeCorruptValue, "corrupt key: "+msg, nil)
}
