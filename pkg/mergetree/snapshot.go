package mergetree

import "fmt"

// SnapshotFormat identifies the current snapshot layout.
const SnapshotFormat = "codemerge.tree/v1"

// Snapshot is the nested, serialisable form of a Tree.
type Snapshot struct {
	Format       string         `json:"format"                  yaml:"format"`
	Head         []SnapshotNode `json:"head,omitempty"          yaml:"head,omitempty"`
	HeadReserved bool           `json:"head_reserved,omitempty" yaml:"head_reserved,omitempty"`
	Trunk        []SnapshotNode `json:"trunk"                   yaml:"trunk"`
}

// SnapshotNode is one node of a Snapshot.
type SnapshotNode struct {
	Text     string            `json:"text"               yaml:"text"`
	State    string            `json:"state"              yaml:"state"`
	Children []SnapshotNode    `json:"children,omitempty" yaml:"children,omitempty"`
	Reserved bool              `json:"reserved,omitempty" yaml:"reserved,omitempty"`
	Conflict *SnapshotConflict `json:"conflict,omitempty" yaml:"conflict,omitempty"`
}

// SnapshotConflict holds both branches of a conflict node.
type SnapshotConflict struct {
	Version1   []SnapshotNode `json:"version1"   yaml:"version1"`
	Version2   []SnapshotNode `json:"version2"   yaml:"version2"`
	Resolution string         `json:"resolution" yaml:"resolution"`
}

// Snapshot converts t into its nested form.
func (t *Tree) Snapshot() *Snapshot {
	snap := &Snapshot{
		Format:       SnapshotFormat,
		Head:         t.snapshotSpan(t.head),
		HeadReserved: t.headSlot,
		Trunk:        t.snapshotSpan(Span{Start: 0, Len: t.trunkLen}),
	}

	if snap.Trunk == nil {
		snap.Trunk = []SnapshotNode{}
	}

	return snap
}

func (t *Tree) snapshotSpan(s Span) []SnapshotNode {
	if s.Len == 0 {
		return nil
	}

	out := make([]SnapshotNode, 0, s.Len)

	for id := range s.IDs() {
		n := &t.nodes[id]
		sn := SnapshotNode{
			Text:     n.text,
			State:    n.state.String(),
			Reserved: n.slot && n.kids.Len == 0,
		}

		if n.conflict >= 0 {
			c := &t.conflicts[n.conflict]
			sn.Conflict = &SnapshotConflict{
				Version1:   t.snapshotSpan(c.v1),
				Version2:   t.snapshotSpan(c.v2),
				Resolution: c.res.String(),
			}
		} else {
			sn.Children = t.snapshotSpan(n.kids)
		}

		out = append(out, sn)
	}

	return out
}

// FromSnapshot rebuilds a tree. Trunk nodes must not be inserted, and every
// child must be inserted.
func FromSnapshot(snap *Snapshot) (*Tree, error) {
	if snap == nil {
		return nil, fmt.Errorf("%w: nil snapshot", ErrInvalidSnapshot)
	}

	if snap.Format != SnapshotFormat {
		return nil, fmt.Errorf("%w: format %q, want %q", ErrInvalidSnapshot, snap.Format, SnapshotFormat)
	}

	d := &draft{nodes: make([]draftNode, len(snap.Trunk)), trunk: len(snap.Trunk)}

	for idx := range snap.Trunk {
		sn := &snap.Trunk[idx]

		state, err := ParseState(sn.State)
		if err != nil {
			return nil, fmt.Errorf("trunk line %d: %w", idx, err)
		}

		if state == Inserted || sn.Conflict != nil {
			return nil, fmt.Errorf("%w: trunk line %d is %s", ErrInvalidSnapshot, idx, sn.State)
		}

		d.nodes[idx] = draftNode{text: sn.Text, state: state}

		kids, err := d.restore(sn.Children)
		if err != nil {
			return nil, fmt.Errorf("trunk line %d: %w", idx, err)
		}

		d.nodes[idx].kids = kids
		d.nodes[idx].slot = sn.Reserved || len(kids) > 0
	}

	head, err := d.restore(snap.Head)
	if err != nil {
		return nil, fmt.Errorf("head: %w", err)
	}

	d.head = head
	d.headSlot = snap.HeadReserved || len(head) > 0

	return d.freeze(), nil
}

func (d *draft) restore(nodes []SnapshotNode) ([]int, error) {
	if len(nodes) == 0 {
		return nil, nil
	}

	ids := make([]int, 0, len(nodes))

	for idx := range nodes {
		sn := &nodes[idx]

		state, err := ParseState(sn.State)
		if err != nil {
			return nil, err
		}

		if state == Unchanged {
			return nil, fmt.Errorf("%w: child %d is unchanged", ErrInvalidSnapshot, idx)
		}

		id := d.add(sn.Text, state)

		if sn.Conflict != nil {
			if len(sn.Children) > 0 {
				return nil, fmt.Errorf("%w: conflict %d has children", ErrInvalidSnapshot, idx)
			}

			res, err := ParseResolution(sn.Conflict.Resolution)
			if err != nil {
				return nil, err
			}

			v1, err := d.restore(sn.Conflict.Version1)
			if err != nil {
				return nil, fmt.Errorf("version1: %w", err)
			}

			v2, err := d.restore(sn.Conflict.Version2)
			if err != nil {
				return nil, fmt.Errorf("version2: %w", err)
			}

			d.nodes[id].conflict = &draftConflict{v1: v1, v2: v2, res: res}
			ids = append(ids, id)

			continue
		}

		kids, err := d.restore(sn.Children)
		if err != nil {
			return nil, err
		}

		d.nodes[id].kids = kids
		d.nodes[id].slot = sn.Reserved || len(kids) > 0
		ids = append(ids, id)
	}

	return ids, nil
}
