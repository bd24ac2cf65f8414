package timekey

import (
	"reflect"
	"testing"
	"time"

	berrors "github.com/drg101/beaverlog/internal/errors"
)

func ms(s string) int64 {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		panic(err)
	}
	return t.UnixMilli()
}

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		ts   string
		want TimeKey
	}{
		{"basic", "2024-07-02T14:30:25Z", TimeKey{"2024", "7", "2", "14", "30"}},
		{"single digits unpadded", "2024-01-05T09:05:00Z", TimeKey{"2024", "1", "5", "9", "5"}},
		{"last minute of year", "2023-12-31T23:59:59.999Z", TimeKey{"2023", "12", "31", "23", "59"}},
		{"leap day", "2024-02-29T00:00:00Z", TimeKey{"2024", "2", "29", "0", "0"}},
		{"epoch", "1970-01-01T00:00:00Z", TimeKey{"1970", "1", "1", "0", "0"}},
		{"before epoch", "1969-12-31T23:59:30Z", TimeKey{"1969", "12", "31", "23", "59"}},
		{"offset input is normalized to UTC", "2024-07-02T23:30:00-02:00", TimeKey{"2024", "7", "3", "1", "30"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Encode(ms(tt.ts))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Encode(%s) = %v, want %v", tt.ts, got, tt.want)
			}
			if got.Granularity() != Minute {
				t.Errorf("granularity = %s, want minute", got.Granularity())
			}
		})
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		key  TimeKey
		want string
	}{
		{TimeKey{"2024"}, "2024-01-01T00:00:00Z"},
		{TimeKey{"2024", "2"}, "2024-02-01T00:00:00Z"},
		{TimeKey{"2024", "2", "29"}, "2024-02-29T00:00:00Z"},
		{TimeKey{"2024", "7", "2", "14"}, "2024-07-02T14:00:00Z"},
		{TimeKey{"2024", "7", "2", "14", "30"}, "2024-07-02T14:30:00Z"},
	}

	for _, tt := range tests {
		got, err := Decode(tt.key)
		if err != nil {
			t.Fatalf("Decode(%v) failed: %v", tt.key, err)
		}
		if got.UnixMilli() != ms(tt.want) {
			t.Errorf("Decode(%v) = %s, want %s", tt.key, got.Format(time.RFC3339), tt.want)
		}
	}
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  TimeKey
	}{
		{"empty", TimeKey{}},
		{"too long", TimeKey{"2024", "1", "1", "0", "0", "0"}},
		{"padded month", TimeKey{"2024", "07"}},
		{"not a number", TimeKey{"2024", "jan"}},
		{"month 13", TimeKey{"2024", "13"}},
		{"month 0", TimeKey{"2024", "0"}},
		{"hour 24", TimeKey{"2024", "1", "1", "24"}},
		{"minute 60", TimeKey{"2024", "1", "1", "0", "60"}},
		{"feb 29 in common year", TimeKey{"2023", "2", "29"}},
		{"april 31", TimeKey{"2024", "4", "31"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.key)
			if err == nil {
				t.Fatalf("Decode(%v) should fail", tt.key)
			}
			if berrors.GetCode(err) != berrors.CodeInvalidTimeKey {
				t.Errorf("code = %q, want %q", berrors.GetCode(err), berrors.CodeInvalidTimeKey)
			}
		})
	}
}

func TestTimeKey_Span(t *testing.T) {
	tests := []struct {
		key        TimeKey
		start, end string
	}{
		{TimeKey{"2024"}, "2024-01-01T00:00:00Z", "2024-12-31T23:59:59.999Z"},
		{TimeKey{"2024", "2"}, "2024-02-01T00:00:00Z", "2024-02-29T23:59:59.999Z"},
		{TimeKey{"2023", "2"}, "2023-02-01T00:00:00Z", "2023-02-28T23:59:59.999Z"},
		{TimeKey{"2024", "12", "31"}, "2024-12-31T00:00:00Z", "2024-12-31T23:59:59.999Z"},
		{TimeKey{"2024", "1", "31", "23"}, "2024-01-31T23:00:00Z", "2024-01-31T23:59:59.999Z"},
		{TimeKey{"2024", "7", "2", "14", "59"}, "2024-07-02T14:59:00Z", "2024-07-02T14:59:59.999Z"},
	}

	for _, tt := range tests {
		start, end, err := tt.key.Span()
		if err != nil {
			t.Fatalf("Span(%v) failed: %v", tt.key, err)
		}
		if start != ms(tt.start) || end != ms(tt.end) {
			t.Errorf("Span(%v) = [%d, %d], want [%s, %s]", tt.key, start, end, tt.start, tt.end)
		}
	}
}

func TestGranularity_String(t *testing.T) {
	want := []string{"year", "month", "day", "hour", "minute"}
	for i, g := range Granularities {
		if g.String() != want[i] {
			t.Errorf("Granularity(%d).String() = %q, want %q", int(g), g.String(), want[i])
		}
	}
	if Granularity(9).String() != "granularity(9)" {
		t.Errorf("unexpected name for unknown granularity: %s", Granularity(9))
	}
}
