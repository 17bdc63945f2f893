package types

// Predicate is a comparison operator of a query condition.
type Predicate int

const (
	Equals Predicate = iota
	NotEqual
	LessThan
	LessThanOrEqual
	GreaterThan
	GreaterThanOrEqual
	Contains
	BeginsWith
	EndsWith
	Like
)

func (p Predicate) String() string {
	switch p {
	case Equals:
		return "=="

	case NotEqual:
		return "!="

	case LessThan:
		return "<"

	case LessThanOrEqual:
		return "<="

	case GreaterThan:
		return ">"

	case GreaterThanOrEqual:
		return ">="

	case Contains:
		return "CONTAINS"

	case BeginsWith:
		return "BEGINSWITH"

	case EndsWith:
		return "ENDSWITH"

	case Like:
		return "LIKE"

	default:
		return "UNKNOWN"
	}
}

// IsStringOnly reports whether p only applies to strings and binaries.
func (p Predicate) IsStringOnly() bool {
	return p >= Contains
}

// Holds evaluates p given the result of a three-way comparison between the
// stored value and the search value.
func (p Predicate) Holds(cmp int) bool {
	switch p {
	case Equals:
		return cmp == 0
	case NotEqual:
		return cmp != 0
	case LessThan:
		return cmp < 0
	case LessThanOrEqual:
		return cmp <= 0
	case GreaterThan:
		return cmp > 0
	case GreaterThanOrEqual:
		return cmp >= 0
	default:
		return false
	}
}
