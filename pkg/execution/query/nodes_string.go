package query

import (
	"bytes"
	"fmt"
	"slices"
	"strconv"
	"unicode/utf8"

	"golang.org/x/text/cases"

	"colstore/pkg/database"
	dberr "colstore/pkg/error"
	"colstore/pkg/primitives"
	"colstore/pkg/storage/array"
	"colstore/pkg/storage/column"
	"colstore/pkg/storage/index"
	"colstore/pkg/types"
)

// stringNode compares a string or binary column with a constant. A nil
// value is the null string.
type stringNode struct {
	col           int
	pred          types.Predicate
	value         []byte
	caseSensitive bool
	binary        bool

	needle []byte
	fold   cases.Caser

	str      *column.StringColumn
	enum     *column.StringEnumColumn
	keyMatch []bool
	indexed  []int
	useIdx   bool
	st       nodeStats
}

func newStringNode(col int, pred types.Predicate, value []byte, caseSensitive, binary bool) (*stringNode, error) {
	n := &stringNode{col: col, pred: pred, value: value, caseSensitive: caseSensitive, binary: binary}
	switch {
	case !binary && value != nil && !utf8.Valid(value):
		return nil, dberr.From(dberr.ErrInvalidQuery).WithDetail("search term is not valid UTF-8")
	case !pred.IsStringOnly() && pred != types.Equals && pred != types.NotEqual:
		return nil, dberr.From(dberr.ErrInvalidQuery).WithDetail("%s is not defined for strings", pred)
	case value == nil && pred != types.Equals && pred != types.NotEqual:
		return nil, dberr.From(dberr.ErrInvalidQuery).WithDetail("%s needs a non-null search term", pred)
	case binary && (pred == types.Like || !caseSensitive):
		return nil, dberr.From(dberr.ErrInvalidQuery).WithDetail("%s is not defined for binaries", describePred(pred, caseSensitive))
	}
	n.prepare()
	return n, nil
}

func (n *stringNode) prepare() {
	n.needle = n.value
	if !n.caseSensitive {
		n.fold = cases.Fold()
		n.needle = n.fold.Bytes(n.value)
	}
}

func (n *stringNode) init(t *database.Table) error {
	n.str, n.enum, n.keyMatch, n.indexed, n.useIdx = nil, nil, nil, nil, false
	n.st = newStats(10)

	c, err := t.QueryColumn(n.col)
	if err != nil || c == nil {
		return err
	}
	want := types.String
	if n.binary {
		want = types.Binary
	}
	switch c := c.(type) {
	case *column.StringColumn:
		if c.Type() != want {
			break
		}
		n.str = c
		if n.pred == types.Equals && n.caseSensitive {
			key := index.NullKey()
			if n.value != nil {
				key = index.StringKey(n.value)
			}
			if rows, ok := indexedRows(c, key); ok {
				n.indexed, n.useIdx = rows, true
				n.st.dT = 0
			}
		}
		return nil
	case *column.StringEnumColumn:
		if n.binary {
			break
		}
		n.enum = c
		n.st.dT = 1
		if n.pred == types.Equals && n.caseSensitive {
			n.initEnumEqual()
			return nil
		}
		keys := c.Keys()
		n.keyMatch = make([]bool, keys.Size())
		for k := range n.keyMatch {
			n.keyMatch[k] = n.matches(keys.Get(k))
		}
		return nil
	}
	return dberr.From(dberr.ErrTypeMismatch).WithDetail("column %d is %s", n.col, c.Type()).In("StringCondition", "Query")
}

// initEnumEqual resolves an equality search through the enum index, or
// failing that to a scan for one key.
func (n *stringNode) initEnumEqual() {
	res, rows, k := n.enum.FindAllIndexRef(n.value)
	switch res {
	case column.FindResNotFound:
		n.indexed, n.useIdx = nil, true
		n.st.dT = 0
	case column.FindResSingle, column.FindResList:
		n.indexed, n.useIdx = sortedCopy(rows), true
		n.st.dT = 0
	default:
		n.keyMatch = make([]bool, n.enum.Keys().Size())
		if k != primitives.NotFound {
			n.keyMatch[k] = true
		}
	}
}

func sortedCopy(rows []int) []int {
	out := slices.Clone(rows)
	slices.Sort(out)
	return out
}

func (n *stringNode) matches(v []byte) bool {
	if n.value == nil {
		return (n.pred == types.Equals) == (v == nil)
	}
	if v == nil {
		return n.pred == types.NotEqual
	}
	if !n.caseSensitive {
		v = n.fold.Bytes(v)
	}
	switch n.pred {
	case types.Equals:
		return bytes.Equal(v, n.needle)
	case types.NotEqual:
		return !bytes.Equal(v, n.needle)
	case types.Contains:
		return bytes.Contains(v, n.needle)
	case types.BeginsWith:
		return bytes.HasPrefix(v, n.needle)
	case types.EndsWith:
		return bytes.HasSuffix(v, n.needle)
	case types.Like:
		return like(v, n.needle)
	}
	return false
}

func (n *stringNode) findFirstLocal(start, end int) int {
	switch {
	case n.useIdx:
		return firstIndexed(n.indexed, start, end)
	case n.enum != nil:
		found := primitives.NotFound
		n.enum.ForEach(start, end, func(row int, k array.NullInt) bool {
			if n.keyMatch[k.Int64] {
				found = row
				return false
			}
			return true
		})
		return found
	case n.str != nil:
		found := primitives.NotFound
		n.str.ForEach(start, end, func(row int, v []byte) bool {
			if n.matches(v) {
				found = row
				return false
			}
			return true
		})
		return found
	}
	return primitives.NotFound
}

func (n *stringNode) stats() *nodeStats { return &n.st }

func (n *stringNode) clone() node {
	c := &stringNode{col: n.col, pred: n.pred, value: n.value, caseSensitive: n.caseSensitive, binary: n.binary}
	c.prepare()
	return c
}

func (n *stringNode) describe(s schema) string {
	v := "NULL"
	switch {
	case n.value == nil:
	case n.binary:
		v = fmt.Sprintf("0x%x", n.value)
	default:
		v = strconv.Quote(string(n.value))
	}
	return fmt.Sprintf("%s %s %s", columnName(s, n.col), describePred(n.pred, n.caseSensitive), v)
}

func describePred(p types.Predicate, caseSensitive bool) string {
	if caseSensitive {
		return p.String()
	}
	return p.String() + "[c]"
}

// like matches text against a pattern where '*' matches any run of
// characters and '?' matches exactly one.
func like(text, pattern []byte) bool {
	t, p := []rune(string(text)), []rune(string(pattern))
	ti, pi := 0, 0
	star, mark := -1, 0
	for ti < len(t) {
		switch {
		case pi < len(p) && p[pi] == '*':
			star, mark = pi, ti
			pi++
		case pi < len(p) && (p[pi] == '?' || p[pi] == t[ti]):
			ti++
			pi++
		case star >= 0:
			pi = star + 1
			mark++
			ti = mark
		default:
			return false
		}
	}
	for pi < len(p) && p[pi] == '*' {
		pi++
	}
	return pi == len(p)
}
