package aggregation

import "colstore/pkg/primitives"

// Number is the set of accumulator types.
type Number interface {
	~int64 | ~float32 | ~float64
}

// QueryState accumulates the matches of one scan.
type QueryState[R Number] struct {
	Op    AggregateOp
	Limit int

	// MatchCount is the number of matches accepted so far.
	MatchCount int

	// State is the running sum, minimum or maximum.
	State R

	// MinMaxIndex is the row of the current minimum or maximum, or the first
	// match for ReturnFirst. NotFound until something matched.
	MinMaxIndex int

	// Rows collects matches for FindAll.
	Rows []int
}

// NewQueryState returns an empty state. A negative limit means no limit.
func NewQueryState[R Number](op AggregateOp, limit int) *QueryState[R] {
	if limit < 0 {
		limit = primitives.MaxRows
	}
	return &QueryState[R]{Op: op, Limit: limit, MinMaxIndex: primitives.NotFound}
}

// Done reports whether the limit has been reached.
func (s *QueryState[R]) Done() bool {
	return s.MatchCount >= s.Limit
}

// Match records a match at row holding v and reports whether the scan
// should continue.
func (s *QueryState[R]) Match(row int, v R) bool {
	switch s.Op {
	case ReturnFirst:
		s.MatchCount++
		s.MinMaxIndex = row
		return false
	case Count:
		s.MatchCount++
	case Sum, Avg:
		s.MatchCount++
		s.State += v
	case Min:
		if s.MatchCount == 0 || v < s.State {
			s.State = v
			s.MinMaxIndex = row
		}
		s.MatchCount++
	case Max:
		if s.MatchCount == 0 || v > s.State {
			s.State = v
			s.MinMaxIndex = row
		}
		s.MatchCount++
	case FindAll:
		s.MatchCount++
		s.Rows = append(s.Rows, row)
	}
	return s.MatchCount < s.Limit
}

// MatchRow records a match for operations that do not look at values.
func (s *QueryState[R]) MatchRow(row int) bool {
	var zero R
	return s.Match(row, zero)
}

// Average returns State / MatchCount, or 0 when nothing matched.
func (s *QueryState[R]) Average() float64 {
	if s.MatchCount == 0 {
		return 0
	}
	return float64(s.State) / float64(s.MatchCount)
}
