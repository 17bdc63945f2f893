// Package query evaluates conditions over the rows of a table.
//
// A Query is built with fluent calls and compiles into a tree of condition
// nodes. The top of every tree, and of every group, subtable condition and
// OR alternative, is a ParentNode: a flat list of conditions that must all
// hold. Scans are driven by whichever condition is currently estimated to be
// cheapest per match; the others only test the rows it proposes.
package query

import (
	"math"

	"colstore/pkg/database"
	"colstore/pkg/primitives"
)

// Scheduling constants of the scan loop.
const (
	// findlocals caps the matches a driving node reports before the scan
	// re-evaluates which node should drive.
	findlocals = 64

	// warmupMatches is the number of matches a node must have produced before
	// its distance estimate replaces the initial guess.
	warmupMatches = 4

	// bestDist is the window handed to a node with a non-zero lookup cost.
	bestDist = 512

	// bitwidthTimeUnit is the time of one lookup into a packed leaf relative
	// to the per-lookup costs of the nodes.
	bitwidthTimeUnit = 64

	initialDistance = 100.0
)

// node is one condition of a ParentNode.
type node interface {
	// init binds the node to t and resets per-scan caches. It is called
	// once before every evaluation.
	init(t *database.Table) error

	// findFirstLocal returns the first row in [start, end) the condition
	// holds for, or NotFound.
	findFirstLocal(start, end int) int

	stats() *nodeStats

	// clone returns an unbound copy sharing no mutable state.
	clone() node

	describe(s schema) string
}

// nodeStats are the running cost estimates of a node.
type nodeStats struct {
	// dD is the average distance between matches.
	dD float64
	// dT is the cost of probing one row.
	dT float64

	matches int
}

func newStats(dT float64) nodeStats {
	return nodeStats{dD: initialDistance, dT: dT}
}

func (s *nodeStats) reset() {
	s.dD = initialDistance
	s.matches = 0
}

func (s *nodeStats) cost() float64 {
	return 8*bitwidthTimeUnit/s.dD + s.dT
}

// observe folds the outcome of one driving window into the estimate.
func (s *nodeStats) observe(span, matches int, exhausted bool) {
	s.matches += matches
	if s.matches < warmupMatches && !exhausted {
		return
	}
	s.dD = math.Max(float64(span)/(float64(matches)+1.1), 1)
}

// ParentNode is a conjunction of conditions.
type ParentNode struct {
	conds []node
	st    nodeStats
}

func newParent(conds []node) *ParentNode {
	return &ParentNode{conds: conds, st: newStats(0)}
}

func (p *ParentNode) init(t *database.Table) error {
	p.st.reset()
	dT := 0.0
	for _, c := range p.conds {
		if err := c.init(t); err != nil {
			return err
		}
		dT += c.stats().dT
	}
	p.st.dT = dT
	return nil
}

func (p *ParentNode) stats() *nodeStats { return &p.st }

func (p *ParentNode) clone() node {
	return p.cloneParent()
}

func (p *ParentNode) cloneParent() *ParentNode {
	conds := make([]node, len(p.conds))
	for i, c := range p.conds {
		conds[i] = c.clone()
	}
	return newParent(conds)
}

func (p *ParentNode) findFirstLocal(start, end int) int {
	return p.findFirst(start, end)
}

// findFirst returns the first row of [start, end) every condition holds
// for. Conditions take turns proposing a row until all of them agree.
func (p *ParentNode) findFirst(start, end int) int {
	if len(p.conds) == 0 {
		if start < end {
			return start
		}
		return primitives.NotFound
	}
	next, first := 0, 0
	for start < end {
		m := p.conds[next].findFirstLocal(start, end)
		if m == primitives.NotFound {
			return primitives.NotFound
		}
		next++
		if next == len(p.conds) {
			next = 0
		}
		if m == start {
			if next == first {
				return m
			}
			continue
		}
		first = next
		start = m
	}
	return primitives.NotFound
}

// aggregate calls match with every row of [start, end) all conditions hold
// for, in ascending order, until match returns false.
func (p *ParentNode) aggregate(start, end int, match func(row int) bool) {
	if len(p.conds) == 0 {
		for r := start; r < end; r++ {
			if !match(r) {
				return
			}
		}
		return
	}
	for start < end {
		best := p.bestNode()
		td := end
		if p.conds[best].stats().dT != 0 {
			td = min(start+bestDist, end)
		}
		next, stopped := p.aggregateLocal(best, start, td, findlocals, match)
		if stopped {
			return
		}
		start = next
	}
}

// aggregateLocal lets conds[driver] find matches in [start, end) and
// confirms each one with the other conditions. It returns where the next
// window starts, and whether match asked to stop.
func (p *ParentNode) aggregateLocal(driver, start, end, limit int, match func(row int) bool) (int, bool) {
	d := p.conds[driver]
	st := d.stats()
	found := 0
	r := start
	for {
		if found == limit {
			st.observe(r-start, found, false)
			return r, false
		}
		m := d.findFirstLocal(r, end)
		if m == primitives.NotFound {
			st.observe(end-start, found, true)
			return end, false
		}
		found++
		ok := true
		for i, c := range p.conds {
			if i != driver && c.findFirstLocal(m, m+1) != m {
				ok = false
				break
			}
		}
		if ok && !match(m) {
			return primitives.NotFound, true
		}
		r = m + 1
	}
}

// bestNode returns the condition with the lowest estimated cost per match.
func (p *ParentNode) bestNode() int {
	best := 0
	for i := 1; i < len(p.conds); i++ {
		if p.conds[i].stats().cost() < p.conds[best].stats().cost() {
			best = i
		}
	}
	return best
}

func (p *ParentNode) describe(s schema) string {
	return describeAnd(p.conds, s)
}
