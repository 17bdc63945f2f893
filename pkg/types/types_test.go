package types

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPredicateHolds(t *testing.T) {
	tests := []struct {
		op   Predicate
		cmp  int
		want bool
	}{
		{Equals, 0, true},
		{Equals, 1, false},
		{NotEqual, -1, true},
		{LessThan, -1, true},
		{LessThan, 0, false},
		{LessThanOrEqual, 0, true},
		{GreaterThan, 1, true},
		{GreaterThanOrEqual, -1, false},
		{Contains, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.op.Holds(tt.cmp))
		})
	}
}

func TestTimestampCompare(t *testing.T) {
	null := NullTimestamp()
	a := NewTimestamp(10, 5)
	b := NewTimestamp(10, 6)
	c := NewTimestamp(-1, 0)

	assert.Equal(t, 0, null.Compare(NullTimestamp()))
	assert.Equal(t, -1, null.Compare(c))
	assert.Equal(t, 1, a.Compare(null))
	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 1, a.Compare(c))
	assert.True(t, a.Equal(NewTimestamp(10, 5)))
	assert.Equal(t, "null", null.String())
}

func TestTimestampFromTime(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 500, time.UTC)
	ts := TimestampFromTime(now)
	assert.False(t, ts.IsNull())
	assert.True(t, now.Equal(ts.Time()))
}

func TestMixed(t *testing.T) {
	var zero Mixed
	assert.True(t, zero.IsNull())
	assert.False(t, MixedInt(0).IsNull())
	assert.True(t, MixedInt(0).Equal(MixedInt(0)))
	assert.False(t, MixedInt(0).Equal(MixedBool(false)))
	assert.True(t, MixedString("abc").Equal(MixedString("abc")))
	assert.False(t, MixedBinary(nil).IsNull())
	assert.True(t, MixedTimestamp(NullTimestamp()).IsNull())
	assert.True(t, MixedDouble(math.NaN()).Equal(MixedDouble(math.NaN())))
	assert.Equal(t, "42", MixedInt(42).String())
	assert.Equal(t, "true", MixedBool(true).String())
	assert.True(t, MixedLink(-1).IsNull())
}

func TestIsValidColumnType(t *testing.T) {
	assert.True(t, IsValidColumnType(Int))
	assert.True(t, IsValidColumnType(LinkList))
	assert.False(t, IsValidColumnType(DataType(7)))
	assert.False(t, IsIndexable(Double))
	assert.True(t, IsIndexable(Timestamp))
}
