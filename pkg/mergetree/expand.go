package mergetree

import (
	"fmt"
	"iter"
)

// Expand is ExpandRange(-1, Len()-1).
func (t *Tree) Expand() iter.Seq[Line] {
	return t.ExpandRange(int(Head), t.trunkLen-1)
}

// ExpandRange yields the visible lines for trunk positions from..to, where
// position -1 is Head. A deleted line is skipped but its children are not.
// Resolved conflicts yield their chosen branches; an unresolved conflict is
// yielded as a single Line with Conflict set. Out-of-range bounds are clamped.
//
// The sequence reads the tree lazily and can be ranged over repeatedly.
func (t *Tree) ExpandRange(from, to int) iter.Seq[Line] {
	return func(yield func(Line) bool) {
		t.traverse(from, to, false, yield)
	}
}

// Walk is WalkRange(-1, Len()-1).
func (t *Tree) Walk() iter.Seq[Line] {
	return t.WalkRange(int(Head), t.trunkLen-1)
}

// WalkRange is ExpandRange with deleted lines included, for renderers that
// paint deletions.
func (t *Tree) WalkRange(from, to int) iter.Seq[Line] {
	return func(yield func(Line) bool) {
		t.traverse(from, to, true, yield)
	}
}

// Flatten returns the text of the visible lines.
func (t *Tree) Flatten() ([]string, error) {
	out := make([]string, 0, t.trunkLen)

	for line := range t.Expand() {
		if line.Conflict {
			return nil, fmt.Errorf("%w: node %d", ErrUnresolvedConflict, line.ID)
		}

		out = append(out, line.Text)
	}

	return out, nil
}

func (t *Tree) traverse(from, to int, all bool, yield func(Line) bool) {
	from = max(from, int(Head))
	to = min(to, t.trunkLen-1)

	for pos := from; pos <= to; pos++ {
		if pos == int(Head) {
			if !t.emitSpan(t.head, 1, all, yield) {
				return
			}

			continue
		}

		if !t.emit(NodeID(pos), 0, all, yield) {
			return
		}
	}
}

func (t *Tree) emitSpan(s Span, depth int, all bool, yield func(Line) bool) bool {
	for id := range s.IDs() {
		if !t.emit(id, depth, all, yield) {
			return false
		}
	}

	return true
}

func (t *Tree) emit(id NodeID, depth int, all bool, yield func(Line) bool) bool {
	n := &t.nodes[id]

	if n.conflict >= 0 {
		return t.emitConflict(&t.conflicts[n.conflict], depth, all, yield)
	}

	if (all || n.state != Deleted) && !yield(t.line(id, depth)) {
		return false
	}

	return t.emitSpan(n.kids, depth+1, all, yield)
}

func (t *Tree) emitConflict(c *conflictRec, depth int, all bool, yield func(Line) bool) bool {
	switch c.res {
	case PickVersion1:
		return t.emitSpan(c.v1, depth, all, yield)
	case PickVersion2:
		return t.emitSpan(c.v2, depth, all, yield)
	case KeepBoth:
		return t.emitSpan(c.v1, depth, all, yield) && t.emitSpan(c.v2, depth, all, yield)
	default:
		return yield(Line{ID: c.id, State: Inserted, Depth: depth, Conflict: true})
	}
}
