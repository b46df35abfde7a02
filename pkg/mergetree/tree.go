// Package mergetree folds a line alignment into a merge tree: the original
// lines form the trunk, inserted lines hang off the trunk line they follow, and
// deleted lines stay in place so later merges can still address them.
//
// Nodes live in an arena and are addressed by NodeID. The trunk always
// occupies IDs 0..Len()-1, and every node's children occupy one contiguous
// Span of the arena, so no node is ever shared between two parents.
package mergetree

import (
	"errors"
	"fmt"
	"iter"
)

// Sentinel errors.
var (
	ErrInvalidScript      = errors.New("mergetree: script does not match inputs")
	ErrUnresolvedConflict = errors.New("mergetree: unresolved conflict")
	ErrNotConflict        = errors.New("mergetree: node is not a conflict")
	ErrUnknownNode        = errors.New("mergetree: unknown node")
	ErrInvalidSnapshot    = errors.New("mergetree: invalid snapshot")
)

// State is the fate of a line relative to the trunk it belongs to.
type State uint8

// Line states.
const (
	Unchanged State = iota
	Inserted
	Deleted
)

// String returns the lower-case name of the state.
func (s State) String() string {
	switch s {
	case Unchanged:
		return "unchanged"
	case Inserted:
		return "inserted"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// ParseState is the inverse of State.String.
func ParseState(name string) (State, error) {
	switch name {
	case "unchanged":
		return Unchanged, nil
	case "inserted":
		return Inserted, nil
	case "deleted":
		return Deleted, nil
	default:
		return 0, fmt.Errorf("%w: unknown state %q", ErrInvalidSnapshot, name)
	}
}

// NodeID addresses a node in a Tree.
type NodeID int32

// Head is the virtual position in front of the first trunk line. Lines
// inserted before any original line are its children.
const Head NodeID = -1

// Span is a contiguous run of node IDs.
type Span struct {
	Start NodeID
	Len   int
}

// IDs iterates the IDs covered by the span.
func (s Span) IDs() iter.Seq[NodeID] {
	return func(yield func(NodeID) bool) {
		for off := range s.Len {
			if !yield(s.Start + NodeID(off)) {
				return
			}
		}
	}
}

// Line is a read-only view of a node produced by the traversals.
type Line struct {
	ID    NodeID
	Text  string
	State State
	// Depth is 0 for trunk lines and grows by one per nesting level.
	Depth int
	// Conflict marks an unresolved conflict node; Text is empty and the
	// branches are available through Tree.Conflict and Tree.Branch.
	Conflict bool
}

type node struct {
	text  string
	state State
	kids  Span
	// slot records that the child container exists, even when it is empty.
	slot     bool
	conflict int32
}

type conflictRec struct {
	id  NodeID
	v1  Span
	v2  Span
	res Resolution
}

// Tree is a merge tree. It is not safe for concurrent use while Resolve or
// ResolveAll is running.
type Tree struct {
	nodes     []node
	trunkLen  int
	head      Span
	headSlot  bool
	conflicts []conflictRec
}

// Len returns the number of trunk lines.
func (t *Tree) Len() int {
	return t.trunkLen
}

// Size returns the number of nodes in the arena.
func (t *Tree) Size() int {
	return len(t.nodes)
}

// Text returns the content of a node. Conflict nodes have no content.
func (t *Tree) Text(id NodeID) string {
	return t.nodes[id].text
}

// State returns the state of a node.
func (t *Tree) State(id NodeID) State {
	return t.nodes[id].state
}

// Children returns the child span of id (or of the head position) and whether
// the child container exists. A container can exist and be empty.
func (t *Tree) Children(id NodeID) (Span, bool) {
	if id == Head {
		return t.head, t.headSlot || t.head.Len > 0
	}

	n := &t.nodes[id]

	return n.kids, n.slot || n.kids.Len > 0
}

// IsConflict reports whether id is a conflict node.
func (t *Tree) IsConflict(id NodeID) bool {
	return t.nodes[id].conflict >= 0
}

func (t *Tree) valid(id NodeID) bool {
	return id >= 0 && int(id) < len(t.nodes)
}

func (t *Tree) line(id NodeID, depth int) Line {
	n := &t.nodes[id]

	return Line{ID: id, Text: n.text, State: n.state, Depth: depth}
}

// Stats summarises a tree.
type Stats struct {
	Trunk      int
	Unchanged  int
	Inserted   int
	Deleted    int
	Conflicts  int
	Unresolved int
	MaxDepth   int
}

// Stats counts every node, including both branches of every conflict.
func (t *Tree) Stats() Stats {
	st := Stats{Trunk: t.trunkLen}

	t.visit(func(id NodeID, depth int) {
		n := &t.nodes[id]
		st.MaxDepth = max(st.MaxDepth, depth)

		if n.conflict >= 0 {
			st.Conflicts++

			if t.conflicts[n.conflict].res == Unresolved {
				st.Unresolved++
			}

			return
		}

		switch n.state {
		case Unchanged:
			st.Unchanged++
		case Inserted:
			st.Inserted++
		case Deleted:
			st.Deleted++
		}
	})

	return st
}

// visit calls fn for every node in document order, descending into deleted
// nodes and both branches of conflicts.
func (t *Tree) visit(fn func(id NodeID, depth int)) {
	var walk func(s Span, depth int)

	walk = func(s Span, depth int) {
		for id := range s.IDs() {
			fn(id, depth)

			n := &t.nodes[id]
			if n.conflict >= 0 {
				c := &t.conflicts[n.conflict]
				walk(c.v1, depth)
				walk(c.v2, depth)

				continue
			}

			walk(n.kids, depth+1)
		}
	}

	walk(t.head, 1)

	for pos := range t.trunkLen {
		walk(Span{Start: NodeID(pos), Len: 1}, 0)
	}
}
