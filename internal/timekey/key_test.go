package timekey

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	berrors "github.com/drg101/beaverlog/internal/errors"
)

func TestBuildKey(t *testing.T) {
	key, err := BuildKey("pageview", ms("2024-07-02T14:30:25Z"), "01J1Z9")
	require.NoError(t, err)
	assert.Equal(t, []string{"pageview", "2024", "7", "2", "14", "30", "01J1Z9"}, key)
}

func TestBuildKey_SameMinuteDistinctIDs(t *testing.T) {
	ts := ms("2024-07-02T14:30:25Z")
	a, err := BuildKey("click", ts, "a")
	require.NoError(t, err)
	b, err := BuildKey("click", ts+1000, "b")
	require.NoError(t, err)

	assert.Equal(t, a[:6], b[:6], "records in the same minute share a bucket")
	assert.NotEqual(t, a, b)
}

func TestBuildKey_Validation(t *testing.T) {
	tests := []struct {
		name      string
		eventName string
		uniqueID  string
		code      string
	}{
		{"empty name", "", "id", berrors.CodeEmptyEventName},
		{"empty id", "click", "", berrors.CodeEmptyUniqueID},
		{"nul in name", "cl\x00ick", "id", berrors.CodeInvalidKeySegment},
		{"nul in id", "click", "i\x00d", berrors.CodeInvalidKeySegment},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildKey(tt.eventName, 0, tt.uniqueID)
			require.Error(t, err)
			assert.Equal(t, tt.code, berrors.GetCode(err))
			assert.Equal(t, berrors.ErrCategoryValidation, berrors.GetCategory(err))
		})
	}
}

func TestParseKey(t *testing.T) {
	key, err := BuildKey("signup", ms("2024-02-29T08:15:00Z"), "xyz")
	require.NoError(t, err)

	name, tk, id, err := ParseKey(key)
	require.NoError(t, err)
	assert.Equal(t, "signup", name)
	assert.Equal(t, TimeKey{"2024", "2", "29", "8", "15"}, tk)
	assert.Equal(t, "xyz", id)
}

func TestParseKey_Invalid(t *testing.T) {
	_, _, _, err := ParseKey([]string{"signup", "2024", "2"})
	assert.Error(t, err)

	_, _, _, err = ParseKey([]string{"signup", "2024", "2", "30", "0", "0", "id"})
	assert.Error(t, err, "february 30 is not a valid bucket")
}
