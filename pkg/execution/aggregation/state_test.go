package aggregation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"colstore/pkg/primitives"
)

func TestQueryState(t *testing.T) {
	values := []int64{4, -2, 9, 9, 3}

	tests := []struct {
		name      string
		op        AggregateOp
		limit     int
		wantCount int
		wantState int64
		wantIndex int
		wantRows  []int
	}{
		{"count", Count, -1, 5, 0, primitives.NotFound, nil},
		{"count limited", Count, 2, 2, 0, primitives.NotFound, nil},
		{"sum", Sum, -1, 5, 23, primitives.NotFound, nil},
		{"min", Min, -1, 5, -2, 1, nil},
		{"max keeps first", Max, -1, 5, 9, 2, nil},
		{"first", ReturnFirst, -1, 1, 0, 0, nil},
		{"find all limited", FindAll, 3, 3, 0, primitives.NotFound, []int{0, 1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewQueryState[int64](tt.op, tt.limit)
			for row, v := range values {
				if !s.Match(row, v) {
					break
				}
			}
			assert.Equal(t, tt.wantCount, s.MatchCount)
			assert.Equal(t, tt.wantState, s.State)
			assert.Equal(t, tt.wantIndex, s.MinMaxIndex)
			assert.Equal(t, tt.wantRows, s.Rows)
		})
	}
}

func TestQueryStateAverage(t *testing.T) {
	s := NewQueryState[float64](Avg, -1)
	assert.Equal(t, 0.0, s.Average())
	s.Match(0, 1.5)
	s.Match(1, 2.5)
	assert.Equal(t, 2.0, s.Average())
}

func TestParseAggregateOp(t *testing.T) {
	for _, op := range []AggregateOp{ReturnFirst, Count, Sum, Min, Max, FindAll, Avg} {
		got, err := ParseAggregateOp(op.String())
		assert.NoError(t, err)
		assert.Equal(t, op, got)
	}
	_, err := ParseAggregateOp("median")
	assert.Error(t, err)
}
