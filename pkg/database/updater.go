package database

import (
	"slices"

	"colstore/pkg/log"
)

// accessorUpdater replays a changeset against the accessors of a group
// without touching storage. It keeps tables, rows, link views and
// subtables pointing at the same logical objects while the group moves to
// another snapshot; the group re-attaches them to the new refs afterwards.
type accessorUpdater struct {
	g *Group
}

func (u accessorUpdater) table(ndx int) *Table {
	if ndx < 0 || ndx >= len(u.g.accessors) {
		return nil
	}
	return u.g.accessors[ndx]
}

func (u accessorUpdater) Handle(in *log.Instruction) error {
	g := u.g
	switch in.Type {
	case log.InsertTable:
		if in.Table <= len(g.accessors) {
			g.accessors = slices.Insert(g.accessors, in.Table, nil)
		}
	case log.EraseTable:
		if t := u.table(in.Table); t != nil {
			t.detach()
		}
		if in.Table < len(g.accessors) {
			g.accessors = slices.Delete(g.accessors, in.Table, in.Table+1)
		}
	case log.MoveTable:
		if in.Table < len(g.accessors) && in.Col < len(g.accessors) {
			t := g.accessors[in.Table]
			g.accessors = slices.Delete(g.accessors, in.Table, in.Table+1)
			g.accessors = slices.Insert(g.accessors, in.Col, t)
		}
	case log.InsertColumn:
		if t := u.table(in.Table); t != nil {
			t.shiftColumnAccessors(func(c int) int {
				if c >= in.Col {
					return c + 1
				}
				return c
			})
		}
	case log.EraseColumn:
		if t := u.table(in.Table); t != nil {
			t.shiftColumnAccessors(func(c int) int {
				switch {
				case c == in.Col:
					return -1
				case c > in.Col:
					return c - 1
				}
				return c
			})
		}
	case log.InsertRows:
		if t := u.table(in.Table); t != nil {
			t.shiftRowAccessors(insertShift(in))
		}
	case log.EraseRows:
		if t := u.table(in.Table); t != nil {
			t.shiftRowAccessors(eraseShift(in))
		}
	case log.SwapRows:
		if t := u.table(in.Table); t != nil {
			t.shiftRowAccessors(func(r int) int {
				switch r {
				case in.Row:
					return in.Row2
				case in.Row2:
					return in.Row
				}
				return r
			})
		}
	case log.ClearTable:
		if t := u.table(in.Table); t != nil {
			t.shiftRowAccessors(func(int) int { return -1 })
		}
	case log.SetValue:
		// a new mixed value replaces whatever subtable the cell held
		if t := u.table(in.Table); t != nil {
			t.dropSubtableAccessor(in.Col, in.Row)
		}
	}
	if t := u.table(in.Table); t != nil && in.Type != log.EraseTable {
		t.bumpVersion()
	}
	return nil
}

func insertShift(in *log.Instruction) func(int) int {
	if in.Unordered {
		// the row at in.Row went to the end to make room
		return func(r int) int {
			if r == in.Row {
				return in.PriorSize
			}
			return r
		}
	}
	return func(r int) int {
		if r >= in.Row {
			return r + in.N
		}
		return r
	}
}

func eraseShift(in *log.Instruction) func(int) int {
	if in.Unordered {
		last := in.PriorSize - 1
		return func(r int) int {
			switch r {
			case in.Row:
				return -1
			case last:
				return in.Row
			}
			return r
		}
	}
	return func(r int) int {
		switch {
		case r >= in.Row && r < in.Row+in.N:
			return -1
		case r >= in.Row+in.N:
			return r - in.N
		}
		return r
	}
}

// multiHandler feeds every instruction to each handler in turn.
type multiHandler []log.Handler

func (m multiHandler) Handle(in *log.Instruction) error {
	for _, h := range m {
		if h == nil {
			continue
		}
		if err := h.Handle(in); err != nil {
			return err
		}
	}
	return nil
}
