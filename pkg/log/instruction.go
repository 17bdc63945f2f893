// Package log implements the transaction log: the changeset recorded while a
// write transaction runs. A changeset is replayed forward to bring accessors
// of another session up to date, and in reverse to restore accessors after a
// rollback. Cell contents are never restored from a changeset; the snapshot
// itself carries the data.
package log

import (
	"fmt"

	"colstore/pkg/primitives"
	"colstore/pkg/types"
)

// InstrType identifies a changeset instruction.
type InstrType uint8

const (
	InsertTable InstrType = iota + 1
	EraseTable
	RenameTable
	MoveTable

	InsertColumn
	EraseColumn
	RenameColumn
	AddSearchIndex
	RemoveSearchIndex

	InsertRows
	EraseRows
	SwapRows
	ClearTable
	OptimizeTable

	SetValue
	SubtableChanged

	LinkListSet
	LinkListInsert
	LinkListErase
	LinkListMove
	LinkListSwap
	LinkListClear
)

var instrNames = map[InstrType]string{
	InsertTable:       "InsertTable",
	EraseTable:        "EraseTable",
	RenameTable:       "RenameTable",
	MoveTable:         "MoveTable",
	InsertColumn:      "InsertColumn",
	EraseColumn:       "EraseColumn",
	RenameColumn:      "RenameColumn",
	AddSearchIndex:    "AddSearchIndex",
	RemoveSearchIndex: "RemoveSearchIndex",
	InsertRows:        "InsertRows",
	EraseRows:         "EraseRows",
	SwapRows:          "SwapRows",
	ClearTable:        "ClearTable",
	OptimizeTable:     "OptimizeTable",
	SetValue:          "SetValue",
	SubtableChanged:   "SubtableChanged",
	LinkListSet:       "LinkListSet",
	LinkListInsert:    "LinkListInsert",
	LinkListErase:     "LinkListErase",
	LinkListMove:      "LinkListMove",
	LinkListSwap:      "LinkListSwap",
	LinkListClear:     "LinkListClear",
}

func (t InstrType) String() string {
	if s, ok := instrNames[t]; ok {
		return s
	}
	return fmt.Sprintf("InstrType(%d)", t)
}

// Instruction is one decoded changeset entry. Every instruction names its
// group-level table, so instructions can be reordered or reversed without
// tracking a selection state. Fields not used by a type are zero.
type Instruction struct {
	Type  InstrType
	Table int

	// Col is the column, or the destination table of MoveTable.
	Col int

	// Row is the first row; Row2 is the second row of SwapRows.
	Row  int
	Row2 int

	// N is the row count of InsertRows/EraseRows. PriorSize is the table
	// (or link list) size before the instruction.
	N         int
	PriorSize int

	// Unordered marks move-last-over erasure and its inverse.
	Unordered bool

	// Ndx and Ndx2 are link list positions.
	Ndx  int
	Ndx2 int

	Name       string
	ColType    primitives.ColumnType
	Nullable   bool
	LinkTarget int
	Value      types.Mixed
}

func (in Instruction) String() string {
	switch in.Type {
	case InsertTable, EraseTable, RenameTable:
		return fmt.Sprintf("%s(table=%d name=%q)", in.Type, in.Table, in.Name)
	case MoveTable:
		return fmt.Sprintf("MoveTable(%d -> %d)", in.Table, in.Col)
	case InsertColumn:
		return fmt.Sprintf("InsertColumn(table=%d col=%d %s %q)", in.Table, in.Col, in.ColType, in.Name)
	case EraseColumn, RenameColumn, AddSearchIndex, RemoveSearchIndex:
		return fmt.Sprintf("%s(table=%d col=%d)", in.Type, in.Table, in.Col)
	case InsertRows, EraseRows:
		return fmt.Sprintf("%s(table=%d row=%d n=%d prior=%d unordered=%t)", in.Type, in.Table, in.Row, in.N, in.PriorSize, in.Unordered)
	case SwapRows:
		return fmt.Sprintf("SwapRows(table=%d %d <-> %d)", in.Table, in.Row, in.Row2)
	case ClearTable:
		return fmt.Sprintf("ClearTable(table=%d prior=%d)", in.Table, in.PriorSize)
	case SetValue:
		return fmt.Sprintf("SetValue(table=%d col=%d row=%d %s)", in.Table, in.Col, in.Row, in.Value)
	default:
		return fmt.Sprintf("%s(table=%d col=%d row=%d ndx=%d ndx2=%d)", in.Type, in.Table, in.Col, in.Row, in.Ndx, in.Ndx2)
	}
}

// Handler receives replayed instructions. Returning an error stops the
// replay.
type Handler interface {
	Handle(in *Instruction) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(in *Instruction) error

func (f HandlerFunc) Handle(in *Instruction) error { return f(in) }

// NoopHandler ignores everything.
var NoopHandler Handler = HandlerFunc(func(*Instruction) error { return nil })
