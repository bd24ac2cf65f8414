// Package timekey maps millisecond timestamps onto hierarchical UTC calendar
// keys and turns time ranges into the prefix sets that cover them.
//
// A TimeKey is [year, month, day, hour, minute] with unpadded decimal
// components. Shorter keys denote coarser calendar units: a one-component key
// is a whole year, a two-component key a whole month and so on.
package timekey

import (
	"fmt"
	"strconv"
	"time"

	berrors "github.com/drg101/beaverlog/internal/errors"
)

// Granularity is the calendar level a key denotes. Its value equals the
// number of TimeKey components.
type Granularity int

const (
	Year Granularity = iota + 1
	Month
	Day
	Hour
	Minute
)

// Granularities lists all levels, coarsest first.
var Granularities = []Granularity{Year, Month, Day, Hour, Minute}

// String returns the lowercase level name.
func (g Granularity) String() string {
	switch g {
	case Year:
		return "year"
	case Month:
		return "month"
	case Day:
		return "day"
	case Hour:
		return "hour"
	case Minute:
		return "minute"
	default:
		return fmt.Sprintf("granularity(%d)", int(g))
	}
}

// TimeKey is a full or partial UTC calendar decomposition of a timestamp.
type TimeKey []string

// Encode returns the full five-component TimeKey for a millisecond timestamp.
// It is total: any int64 maps to a key.
func Encode(timestampMs int64) TimeKey {
	return encodeTime(time.UnixMilli(timestampMs).UTC(), Minute)
}

func encodeTime(t time.Time, g Granularity) TimeKey {
	parts := [5]int{t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute()}
	key := make(TimeKey, g)
	for i := range key {
		key[i] = strconv.Itoa(parts[i])
	}
	return key
}

// Granularity returns the calendar level of the key.
func (k TimeKey) Granularity() Granularity {
	return Granularity(len(k))
}

// Decode returns the first instant of the calendar unit a TimeKey denotes.
// Components must be in range for their position; the day must exist in the
// given month.
func Decode(k TimeKey) (time.Time, error) {
	if len(k) < int(Year) || len(k) > int(Minute) {
		return time.Time{}, berrors.NewValidationError(berrors.CodeInvalidTimeKey,
			fmt.Sprintf("time key must have 1 to 5 components, got %d", len(k)))
	}

	// year, month, day, hour, minute with defaults for a partial key
	parts := [5]int{0, 1, 1, 0, 0}
	bounds := [5][2]int{{-1 << 31, 1<<31 - 1}, {1, 12}, {1, 31}, {0, 23}, {0, 59}}
	for i, s := range k {
		v, err := strconv.Atoi(s)
		if err != nil || strconv.Itoa(v) != s {
			return time.Time{}, berrors.NewValidationError(berrors.CodeInvalidTimeKey,
				fmt.Sprintf("component %d (%q) is not an unpadded integer", i, s))
		}
		if v < bounds[i][0] || v > bounds[i][1] {
			return time.Time{}, berrors.NewValidationError(berrors.CodeInvalidTimeKey,
				fmt.Sprintf("%s %d out of range", Granularity(i+1), v))
		}
		parts[i] = v
	}

	t := time.Date(parts[0], time.Month(parts[1]), parts[2], parts[3], parts[4], 0, 0, time.UTC)
	if t.Day() != parts[2] {
		return time.Time{}, berrors.NewValidationError(berrors.CodeInvalidTimeKey,
			fmt.Sprintf("day %d does not exist in %d-%d", parts[2], parts[0], parts[1]))
	}
	return t, nil
}

// unitStart truncates t to the start of its calendar unit.
func unitStart(t time.Time, g Granularity) time.Time {
	switch g {
	case Year:
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	case Month:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case Day:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case Hour:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)
	}
}

// nextUnit returns the first instant of the calendar unit following the one
// that contains t. time.Date normalizes month and day overflow.
func nextUnit(t time.Time, g Granularity) time.Time {
	switch g {
	case Year:
		return time.Date(t.Year()+1, time.January, 1, 0, 0, 0, 0, time.UTC)
	case Month:
		return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	case Day:
		return time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, time.UTC)
	case Hour:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute()+1, 0, 0, time.UTC)
	}
}

// Span returns the inclusive millisecond bounds of the unit a TimeKey denotes.
func (k TimeKey) Span() (startMs, endMs int64, err error) {
	start, err := Decode(k)
	if err != nil {
		return 0, 0, err
	}
	return start.UnixMilli(), nextUnit(start, k.Granularity()).UnixMilli() - 1, nil
}
