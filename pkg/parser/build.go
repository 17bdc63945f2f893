package parser

import (
	"strconv"

	"colstore/pkg/database"
	dberr "colstore/pkg/error"
	"colstore/pkg/execution/query"
	"colstore/pkg/primitives"
	"colstore/pkg/types"
)

// Filter parses input and builds the matching query on t.
func Filter(t *database.Table, input string) (*query.Query, error) {
	e, err := Parse(input)
	if err != nil {
		return nil, err
	}
	return Build(t, e)
}

// Build turns e into a query on t. Column names are resolved against t and
// literals converted to the column types.
func Build(t *database.Table, e Expr) (*query.Query, error) {
	q := query.Where(t)
	if e != nil {
		if err := emit(q, t, e); err != nil {
			return nil, err
		}
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}

func emit(q *query.Query, t *database.Table, e Expr) error {
	switch e := e.(type) {
	case *AndExpr:
		for _, term := range e.Terms {
			if err := emit(q, t, term); err != nil {
				return err
			}
		}
	case *OrExpr:
		q.Group()
		for i, alt := range e.Alts {
			if i > 0 {
				q.Or()
			}
			if err := emit(q, t, alt); err != nil {
				return err
			}
		}
		q.EndGroup()
	case *NotExpr:
		q.Not().Group()
		if err := emit(q, t, e.Inner); err != nil {
			return err
		}
		q.EndGroup()
	case *Condition:
		return emitCondition(q, t, e)
	}
	return nil
}

func buildError(c *Condition, format string, args ...any) error {
	return syntaxError(c.Position, "column %q: "+format, append([]any{c.Column}, args...)...)
}

func emitCondition(q *query.Query, t *database.Table, c *Condition) error {
	col := t.ColumnIndex(c.Column)
	if col == primitives.NPos {
		return dberr.From(dberr.ErrInvalidQuery).WithDetail("at %d: no column %q", c.Position, c.Column).In("Build", "Parser")
	}
	if c.Null {
		if c.Pred == types.Equals {
			q.IsNull(col)
		} else {
			q.IsNotNull(col)
		}
		return nil
	}

	typ, err := t.ColumnType(col)
	if err != nil {
		return err
	}
	if c.Pred.IsStringOnly() && typ != types.String && typ != types.Binary {
		return buildError(c, "%s is only defined on strings", c.Pred)
	}
	switch typ {
	case types.Int:
		if c.Between {
			lo, err1 := intValue(c, c.Values[0])
			hi, err2 := intValue(c, c.Values[1])
			if err := firstErr(err1, err2); err != nil {
				return err
			}
			q.Between(col, lo, hi)
			return nil
		}
		v, err := intValue(c, c.Values[0])
		if err != nil {
			return err
		}
		emitInt(q, col, c.Pred, v)

	case types.Bool:
		v := c.Values[0]
		if c.Between || (v.Type != TRUE && v.Type != FALSE) {
			return buildError(c, "expected true or false")
		}
		switch c.Pred {
		case types.Equals:
			q.EqualBool(col, v.Type == TRUE)
		case types.NotEqual:
			q.Not().EqualBool(col, v.Type == TRUE)
		default:
			return buildError(c, "%s is not defined on bools", c.Pred)
		}

	case types.Float, types.Double:
		if c.Between {
			lo, err1 := floatValue(c, c.Values[0])
			hi, err2 := floatValue(c, c.Values[1])
			if err := firstErr(err1, err2); err != nil {
				return err
			}
			if typ == types.Double {
				q.BetweenDouble(col, lo, hi)
			} else {
				q.CompareFloat(col, types.GreaterThanOrEqual, float32(lo)).CompareFloat(col, types.LessThanOrEqual, float32(hi))
			}
			return nil
		}
		v, err := floatValue(c, c.Values[0])
		if err != nil {
			return err
		}
		if typ == types.Double {
			q.CompareDouble(col, c.Pred, v)
		} else {
			q.CompareFloat(col, c.Pred, float32(v))
		}

	case types.String, types.Binary:
		v := c.Values[0]
		if c.Between || v.Type != STRING {
			return buildError(c, "expected a quoted string")
		}
		if typ == types.Binary {
			q.CompareBinary(col, c.Pred, []byte(v.Value))
		} else {
			q.CompareString(col, c.Pred, v.Value, c.CaseSensitive)
		}

	case types.Timestamp:
		if c.Between {
			lo, err1 := intValue(c, c.Values[0])
			hi, err2 := intValue(c, c.Values[1])
			if err := firstErr(err1, err2); err != nil {
				return err
			}
			q.CompareTimestamp(col, types.GreaterThanOrEqual, types.NewTimestamp(lo, 0)).
				CompareTimestamp(col, types.LessThanOrEqual, types.NewTimestamp(hi, 0))
			return nil
		}
		secs, err := intValue(c, c.Values[0])
		if err != nil {
			return err
		}
		q.CompareTimestamp(col, c.Pred, types.NewTimestamp(secs, 0))

	default:
		return buildError(c, "cannot filter %s columns", typ)
	}
	return nil
}

func emitInt(q *query.Query, col int, pred types.Predicate, v int64) {
	switch pred {
	case types.Equals:
		q.Equal(col, v)
	case types.NotEqual:
		q.NotEqual(col, v)
	case types.LessThan:
		q.Less(col, v)
	case types.LessThanOrEqual:
		q.LessEqual(col, v)
	case types.GreaterThan:
		q.Greater(col, v)
	case types.GreaterThanOrEqual:
		q.GreaterEqual(col, v)
	}
}

func intValue(c *Condition, tok Token) (int64, error) {
	if tok.Type != INT {
		return 0, buildError(c, "expected an integer, got %q", tok.Value)
	}
	v, err := strconv.ParseInt(tok.Value, 10, 64)
	if err != nil {
		return 0, buildError(c, "%v", err)
	}
	return v, nil
}

func floatValue(c *Condition, tok Token) (float64, error) {
	if tok.Type != INT && tok.Type != FLOAT {
		return 0, buildError(c, "expected a number, got %q", tok.Value)
	}
	v, err := strconv.ParseFloat(tok.Value, 64)
	if err != nil {
		return 0, buildError(c, "%v", err)
	}
	return v, nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
