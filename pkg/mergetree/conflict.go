package mergetree

import (
	"context"
	"fmt"
	"iter"
	"slices"

	"github.com/Sumatoshi-tech/codemerge/pkg/alg/lcs"
)

// Resolution is the caller's decision for a conflict.
type Resolution uint8

// Resolutions.
const (
	Unresolved Resolution = iota
	PickVersion1
	PickVersion2
	KeepBoth
)

// String returns the snapshot name of the resolution.
func (r Resolution) String() string {
	switch r {
	case Unresolved:
		return "unresolved"
	case PickVersion1:
		return "version1"
	case PickVersion2:
		return "version2"
	case KeepBoth:
		return "both"
	default:
		return "unknown"
	}
}

// ParseResolution is the inverse of Resolution.String.
func ParseResolution(name string) (Resolution, error) {
	switch name {
	case "unresolved", "":
		return Unresolved, nil
	case "version1":
		return PickVersion1, nil
	case "version2":
		return PickVersion2, nil
	case "both":
		return KeepBoth, nil
	default:
		return 0, fmt.Errorf("%w: unknown resolution %q", ErrInvalidSnapshot, name)
	}
}

// Version selects one branch of a conflict.
type Version uint8

// Branches of a conflict.
const (
	Version1 Version = 1
	Version2 Version = 2
)

// Conflict describes a position where two different insertion branches
// compete. Neither branch is preferred until the caller resolves it.
type Conflict struct {
	ID         NodeID
	Version1   Span
	Version2   Span
	Resolution Resolution
}

// Build3 folds two alignments of the same base into one tree. A base line is
// deleted when either side deleted it. The lines inserted after a position
// come from whichever side inserted them; identical branches collapse into
// one, and two different branches become a conflict node holding both.
func Build3(base, v1, v2 []string, s1, s2 lcs.Script, opts ...Option) (*Tree, error) {
	cfg := newOptions(opts)

	d1, err := foldBase(base, v1, s1, cfg)
	if err != nil {
		return nil, fmt.Errorf("version1: %w", err)
	}

	d2, err := foldBase(base, v2, s2, cfg)
	if err != nil {
		return nil, fmt.Errorf("version2: %w", err)
	}

	out := newDraft(base)
	out.combine(headCursor, d1, d2)

	for pos := range base {
		if d1.nodes[pos].state == Deleted || d2.nodes[pos].state == Deleted {
			out.nodes[pos].state = Deleted
		}

		out.combine(pos, d1, d2)
	}

	return out.freeze(), nil
}

// Merge3 aligns base with each version and combines the results with Build3.
func Merge3(ctx context.Context, base, v1, v2 []string, opts ...Option) (*Tree, error) {
	cfg := newOptions(opts)

	s1, err := lcs.Align(ctx, base, v1, cfg.align...)
	if err != nil {
		return nil, fmt.Errorf("align version1: %w", err)
	}

	s2, err := lcs.Align(ctx, base, v2, cfg.align...)
	if err != nil {
		return nil, fmt.Errorf("align version2: %w", err)
	}

	return Build3(base, v1, v2, s1, s2, opts...)
}

func (d *draft) combine(pos int, d1, d2 *draft) {
	k1, slot1 := d1.kidsAt(pos)
	k2, slot2 := d2.kidsAt(pos)
	t1, t2 := d1.texts(k1), d2.texts(k2)

	switch {
	case len(k1) == 0 && len(k2) == 0:
	case len(k2) == 0 || slices.Equal(t1, t2):
		d.setKids(pos, d.addAll(t1))
	case len(k1) == 0:
		d.setKids(pos, d.addAll(t2))
	default:
		cid := d.add("", Inserted)
		d.nodes[cid].conflict = &draftConflict{v1: d.addAll(t1), v2: d.addAll(t2)}
		d.setKids(pos, []int{cid})
	}

	if slot1 || slot2 {
		d.reserve(pos)
	}
}

// Conflict returns the conflict stored at id.
func (t *Tree) Conflict(id NodeID) (Conflict, bool) {
	if !t.valid(id) || t.nodes[id].conflict < 0 {
		return Conflict{}, false
	}

	c := &t.conflicts[t.nodes[id].conflict]

	return Conflict{ID: c.id, Version1: c.v1, Version2: c.v2, Resolution: c.res}, true
}

// Conflicts returns every conflict node in document order.
func (t *Tree) Conflicts() []NodeID {
	var ids []NodeID

	t.visit(func(id NodeID, _ int) {
		if t.nodes[id].conflict >= 0 {
			ids = append(ids, id)
		}
	})

	return ids
}

// Branch yields the visible lines of one branch of the conflict at id, with
// depths relative to the conflict.
func (t *Tree) Branch(id NodeID, v Version) iter.Seq[Line] {
	return func(yield func(Line) bool) {
		c, ok := t.Conflict(id)
		if !ok {
			return
		}

		s := c.Version1
		if v == Version2 {
			s = c.Version2
		}

		t.emitSpan(s, 0, false, yield)
	}
}

// Resolve records the caller's decision for the conflict at id.
func (t *Tree) Resolve(id NodeID, r Resolution) error {
	if !t.valid(id) {
		return fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}

	idx := t.nodes[id].conflict
	if idx < 0 {
		return fmt.Errorf("%w: %d", ErrNotConflict, id)
	}

	t.conflicts[idx].res = r

	return nil
}

// ResolveAll applies r to every conflict and returns how many it touched.
func (t *Tree) ResolveAll(r Resolution) int {
	for idx := range t.conflicts {
		t.conflicts[idx].res = r
	}

	return len(t.conflicts)
}
