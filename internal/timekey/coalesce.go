package timekey

import (
	"time"
)

// Prefix is [name, ...TimeKey]: every record of that name whose timestamp falls
// inside the calendar unit the TimeKey describes.
type Prefix []string

// Name returns the leading name segment.
func (p Prefix) Name() string {
	if len(p) == 0 {
		return ""
	}
	return p[0]
}

// TimeKey returns the calendar components of the prefix.
func (p Prefix) TimeKey() TimeKey {
	if len(p) < 2 {
		return nil
	}
	return TimeKey(p[1:])
}

// Granularity returns the calendar level the prefix denotes.
func (p Prefix) Granularity() Granularity {
	return p.TimeKey().Granularity()
}

// Span returns the inclusive millisecond bounds of the prefix's bucket.
func (p Prefix) Span() (startMs, endMs int64, err error) {
	return p.TimeKey().Span()
}

// Coalesce returns the ordered prefixes whose buckets together cover every
// whole UTC minute from minute(startMs) to minute(endMs), each exactly once.
//
// The sweep is greedy: at each cursor position the largest aligned unit
// (year, month, day, hour, then minute) that starts at the cursor and ends
// no later than the range is emitted. The end is widened to the last
// millisecond of its minute. startMs > endMs yields no prefixes.
func Coalesce(eventName string, startMs, endMs int64) []Prefix {
	if startMs > endMs {
		return []Prefix{}
	}

	end := nextUnit(time.UnixMilli(endMs).UTC(), Minute).UnixMilli() - 1
	cursor := time.UnixMilli(startMs).UTC()

	var prefixes []Prefix
	for cursor.UnixMilli() <= end {
		g := largestAligned(cursor, end)
		prefixes = append(prefixes, newPrefix(eventName, cursor, g))
		cursor = nextUnit(cursor, g)
	}
	return prefixes
}

// largestAligned picks the coarsest unit that starts at the cursor's minute
// and ends by end. Seconds are ignored: the cursor's own minute is always in
// range, so a non-aligned start still contributes its minute.
func largestAligned(cursor time.Time, end int64) Granularity {
	for _, g := range Granularities[:len(Granularities)-1] {
		if !alignedAt(cursor, g) {
			continue
		}
		if nextUnit(cursor, g).UnixMilli()-1 <= end {
			return g
		}
	}
	return Minute
}

// alignedAt reports whether every component finer than g is at its minimum.
func alignedAt(t time.Time, g Granularity) bool {
	switch g {
	case Year:
		return t.Month() == time.January && t.Day() == 1 && t.Hour() == 0 && t.Minute() == 0
	case Month:
		return t.Day() == 1 && t.Hour() == 0 && t.Minute() == 0
	case Day:
		return t.Hour() == 0 && t.Minute() == 0
	case Hour:
		return t.Minute() == 0
	default:
		return true
	}
}

func newPrefix(eventName string, t time.Time, g Granularity) Prefix {
	p := make(Prefix, 0, 1+int(g))
	p = append(p, eventName)
	return append(p, encodeTime(t, g)...)
}
