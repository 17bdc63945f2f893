// Package aggregation holds the accumulator shared by column aggregates and
// query evaluation. A scan feeds every match into a QueryState, which decides
// whether the scan may stop early.
package aggregation

import (
	"fmt"
	"strings"
)

// AggregateOp selects what a QueryState accumulates.
type AggregateOp int

const (
	// ReturnFirst stops at the first match and remembers its row.
	ReturnFirst AggregateOp = iota
	Count
	Sum
	Min
	Max
	// FindAll collects matching rows.
	FindAll
	// Avg accumulates like Sum; the caller divides by MatchCount.
	Avg
)

// String returns a string representation of the aggregation operation
func (op AggregateOp) String() string {
	switch op {
	case ReturnFirst:
		return "FIRST"
	case Count:
		return "COUNT"
	case Sum:
		return "SUM"
	case Min:
		return "MIN"
	case Max:
		return "MAX"
	case FindAll:
		return "FIND_ALL"
	case Avg:
		return "AVG"
	default:
		return "UNKNOWN"
	}
}

// ParseAggregateOp converts an aggregate operation name to an AggregateOp.
func ParseAggregateOp(name string) (AggregateOp, error) {
	switch strings.ToUpper(name) {
	case "FIRST":
		return ReturnFirst, nil
	case "COUNT":
		return Count, nil
	case "SUM":
		return Sum, nil
	case "MIN":
		return Min, nil
	case "MAX":
		return Max, nil
	case "FIND_ALL":
		return FindAll, nil
	case "AVG":
		return Avg, nil
	default:
		return 0, fmt.Errorf("unknown aggregate operation %q", name)
	}
}

// NeedsValue reports whether matches must carry the column value.
func (op AggregateOp) NeedsValue() bool {
	return op == Sum || op == Min || op == Max || op == Avg
}
