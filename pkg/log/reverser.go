package log

// Reverse returns the instructions that undo the structural effect of a
// changeset, in the order they must be replayed. Cell assignments reverse
// to themselves; only row, column and table positions are inverted.
func Reverse(instrs []Instruction) []Instruction {
	out := make([]Instruction, 0, len(instrs))
	for i := len(instrs) - 1; i >= 0; i-- {
		out = append(out, invert(instrs[i])...)
	}
	return out
}

// ReverseChangeset decodes and reverses a changeset.
func ReverseChangeset(data []byte) ([]Instruction, error) {
	instrs, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return Reverse(instrs), nil
}

func invert(in Instruction) []Instruction {
	r := in
	switch in.Type {
	case InsertTable:
		r.Type = EraseTable
	case EraseTable:
		r.Type = InsertTable
	case MoveTable:
		r.Table, r.Col = in.Col, in.Table
	case InsertColumn:
		r.Type = EraseColumn
	case EraseColumn:
		r.Type = InsertColumn
	case AddSearchIndex:
		r.Type = RemoveSearchIndex
	case RemoveSearchIndex:
		r.Type = AddSearchIndex
	case InsertRows:
		r.Type = EraseRows
		r.PriorSize = in.PriorSize + in.N
	case EraseRows:
		r.Type = InsertRows
		r.PriorSize = in.PriorSize - in.N
	case ClearTable:
		r = Instruction{Type: InsertRows, Table: in.Table, Row: 0, N: in.PriorSize, PriorSize: 0}
	case LinkListInsert:
		r.Type = LinkListErase
	case LinkListErase:
		r.Type = LinkListInsert
	case LinkListMove:
		r.Ndx, r.Ndx2 = in.Ndx2, in.Ndx
	case LinkListClear:
		ins := make([]Instruction, in.PriorSize)
		for i := range ins {
			ins[i] = Instruction{Type: LinkListInsert, Table: in.Table, Col: in.Col, Row: in.Row, Ndx: i}
		}
		return ins
	}
	return []Instruction{r}
}
