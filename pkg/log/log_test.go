package log

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"colstore/pkg/primitives"
	"colstore/pkg/types"
)

func sampleInstructions() []Instruction {
	return []Instruction{
		{Type: InsertTable, Table: 0, Name: "people"},
		{Type: InsertColumn, Table: 0, Col: 0, Name: "name", ColType: primitives.ColTypeString, Nullable: true},
		{Type: InsertColumn, Table: 0, Col: 1, Name: "friend", ColType: primitives.ColTypeLink, LinkTarget: 0},
		{Type: InsertRows, Table: 0, Row: 0, N: 3, PriorSize: 0},
		{Type: SetValue, Table: 0, Col: 0, Row: 1, Value: types.MixedString("ada")},
		{Type: SetValue, Table: 0, Col: 0, Row: 2, Value: types.NullMixed()},
		{Type: SetValue, Table: 0, Col: 2, Row: 2, Value: types.MixedDouble(-2.5)},
		{Type: SetValue, Table: 0, Col: 3, Row: 0, Value: types.MixedTimestamp(types.NewTimestamp(-7, 99))},
		{Type: SetValue, Table: 0, Col: 1, Row: 0, Value: types.MixedLink(2)},
		{Type: SwapRows, Table: 0, Row: 0, Row2: 2},
		{Type: EraseRows, Table: 0, Row: 0, N: 1, PriorSize: 3, Unordered: true},
		{Type: LinkListInsert, Table: 1, Col: 4, Row: 0, Ndx: 0, LinkTarget: 1},
		{Type: LinkListMove, Table: 1, Col: 4, Row: 0, Ndx: 0, Ndx2: 3},
		{Type: MoveTable, Table: 0, Col: 2},
		{Type: ClearTable, Table: 2, PriorSize: 5},
	}
}

func TestEncodeParseRoundTrip(t *testing.T) {
	enc := NewEncoder()
	want := sampleInstructions()
	for _, in := range want {
		enc.Append(in)
	}
	assert.Equal(t, len(want), enc.Len())

	got, err := Parse(enc.Bytes())
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].String(), got[i].String(), "instruction %d", i)
		assert.True(t, want[i].Value.Equal(got[i].Value), "value of instruction %d", i)
	}

	enc.Reset()
	assert.Empty(t, enc.Bytes())
	assert.Equal(t, 0, enc.Len())
}

func TestParseCorrupt(t *testing.T) {
	enc := NewEncoder()
	enc.Append(Instruction{Type: SetValue, Table: 1, Col: 2, Row: 3, Value: types.MixedString("hello")})
	data := enc.Bytes()

	_, err := Parse(data[:len(data)-2])
	assert.True(t, errors.Is(err, ErrCorruptChangeset))

	_, err = Parse([]byte{0xEE})
	assert.True(t, errors.Is(err, ErrCorruptChangeset))
}

func TestApplyStopsOnError(t *testing.T) {
	enc := NewEncoder()
	for _, in := range sampleInstructions() {
		enc.Append(in)
	}
	seen := 0
	stop := errors.New("stop")
	err := Apply(enc.Bytes(), HandlerFunc(func(in *Instruction) error {
		seen++
		if in.Type == SwapRows {
			return stop
		}
		return nil
	}))
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 10, seen)
}

func TestReverse(t *testing.T) {
	tests := []struct {
		name string
		in   Instruction
		want []Instruction
	}{
		{
			"insert rows",
			Instruction{Type: InsertRows, Table: 1, Row: 2, N: 3, PriorSize: 4},
			[]Instruction{{Type: EraseRows, Table: 1, Row: 2, N: 3, PriorSize: 7}},
		},
		{
			"move last over",
			Instruction{Type: EraseRows, Table: 1, Row: 0, N: 1, PriorSize: 5, Unordered: true},
			[]Instruction{{Type: InsertRows, Table: 1, Row: 0, N: 1, PriorSize: 4, Unordered: true}},
		},
		{
			"clear",
			Instruction{Type: ClearTable, Table: 3, PriorSize: 2},
			[]Instruction{{Type: InsertRows, Table: 3, N: 2}},
		},
		{
			"move table",
			Instruction{Type: MoveTable, Table: 0, Col: 4},
			[]Instruction{{Type: MoveTable, Table: 4, Col: 0}},
		},
		{
			"link list clear",
			Instruction{Type: LinkListClear, Table: 1, Col: 2, Row: 3, PriorSize: 2},
			[]Instruction{
				{Type: LinkListInsert, Table: 1, Col: 2, Row: 3, Ndx: 0},
				{Type: LinkListInsert, Table: 1, Col: 2, Row: 3, Ndx: 1},
			},
		},
		{
			"column",
			Instruction{Type: InsertColumn, Table: 0, Col: 1, ColType: primitives.ColTypeInt},
			[]Instruction{{Type: EraseColumn, Table: 0, Col: 1, ColType: primitives.ColTypeInt}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Reverse([]Instruction{tt.in}))
		})
	}
}

func TestReverseOrder(t *testing.T) {
	instrs := []Instruction{
		{Type: InsertTable, Table: 0},
		{Type: InsertRows, Table: 0, N: 1},
	}
	rev := Reverse(instrs)
	require.Len(t, rev, 2)
	assert.Equal(t, EraseRows, rev[0].Type)
	assert.Equal(t, EraseTable, rev[1].Type)
}
