package types

import (
	"fmt"
	"time"
)

// TimestampValue is a point in time with nanosecond precision, or null.
// Seconds and Nanos must have the same sign (or be zero), and |Nanos| < 1e9.
type TimestampValue struct {
	Seconds int64
	Nanos   int32
	null    bool
}

// NewTimestamp builds a non-null timestamp.
func NewTimestamp(seconds int64, nanos int32) TimestampValue {
	return TimestampValue{Seconds: seconds, Nanos: nanos}
}

// NullTimestamp returns the null timestamp.
func NullTimestamp() TimestampValue {
	return TimestampValue{null: true}
}

// TimestampFromTime converts a time.Time.
func TimestampFromTime(t time.Time) TimestampValue {
	return NewTimestamp(t.Unix(), int32(t.Nanosecond()))
}

func (t TimestampValue) IsNull() bool {
	return t.null
}

// Time converts a non-null timestamp to a time.Time in UTC.
func (t TimestampValue) Time() time.Time {
	return time.Unix(t.Seconds, int64(t.Nanos)).UTC()
}

// Compare orders timestamps with null first.
func (t TimestampValue) Compare(o TimestampValue) int {
	switch {
	case t.null && o.null:
		return 0
	case t.null:
		return -1
	case o.null:
		return 1
	}
	if c := CompareOrdered(t.Seconds, o.Seconds); c != 0 {
		return c
	}
	return CompareOrdered(t.Nanos, o.Nanos)
}

func (t TimestampValue) Equal(o TimestampValue) bool {
	return t.Compare(o) == 0
}

func (t TimestampValue) String() string {
	if t.null {
		return "null"
	}
	return fmt.Sprintf("%d.%09d", t.Seconds, t.Nanos)
}
