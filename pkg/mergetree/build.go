package mergetree

import (
	"context"
	"fmt"
	"slices"

	"github.com/Sumatoshi-tech/codemerge/pkg/alg/lcs"
)

type options struct {
	align        []lcs.Option
	reserveSlots bool
}

// Option configures tree construction.
type Option func(*options)

// WithAlignOptions forwards options to the aligner used by Merge and Merge3.
func WithAlignOptions(opts ...lcs.Option) Option {
	return func(o *options) {
		o.align = append(o.align, opts...)
	}
}

// WithoutReservedSlots turns off the reserved slot policy: by default a
// deleted line directly followed by an unchanged one gets an empty child
// container, which keeps an insertion point at that position for later merges.
func WithoutReservedSlots() Option {
	return func(o *options) {
		o.reserveSlots = false
	}
}

func newOptions(opts []Option) options {
	cfg := options{reserveSlots: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	return cfg
}

// FromLines returns a tree whose trunk is lines, all unchanged.
func FromLines(lines []string) *Tree {
	return newDraft(lines).freeze()
}

// Merge aligns left with right and folds the result onto left.
func Merge(ctx context.Context, left, right []string, opts ...Option) (*Tree, lcs.Script, error) {
	cfg := newOptions(opts)

	script, err := lcs.Align(ctx, left, right, cfg.align...)
	if err != nil {
		return nil, nil, fmt.Errorf("align: %w", err)
	}

	tree, err := build(left, right, script, cfg)
	if err != nil {
		return nil, nil, err
	}

	return tree, script, nil
}

// Build folds script, an alignment of left with right, onto left in a single
// pass. Inserted lines become children of the most recently visited trunk
// line, or of Head when they precede every trunk line.
func Build(left, right []string, script lcs.Script, opts ...Option) (*Tree, error) {
	return build(left, right, script, newOptions(opts))
}

func build(left, right []string, script lcs.Script, cfg options) (*Tree, error) {
	d, err := foldBase(left, right, script, cfg)
	if err != nil {
		return nil, err
	}

	return d.freeze(), nil
}

func foldBase(left, right []string, script lcs.Script, cfg options) (*draft, error) {
	err := validateScript(script, len(left), len(right))
	if err != nil {
		return nil, err
	}

	d := newDraft(left)
	d.fold(script, identity(len(left)), right, cfg.reserveSlots)

	return d, nil
}

// Merge aligns the visible lines of t with right and folds the result into a
// copy of t. Deletions mark existing nodes at any depth; insertions become
// children of the last visited visible node, ahead of its existing children,
// which is how nesting deeper than one level arises. Every conflict must be
// resolved first.
func (t *Tree) Merge(ctx context.Context, right []string, opts ...Option) (*Tree, lcs.Script, error) {
	cfg := newOptions(opts)

	ids, texts, err := t.visible()
	if err != nil {
		return nil, nil, err
	}

	script, err := lcs.Align(ctx, texts, right, cfg.align...)
	if err != nil {
		return nil, nil, fmt.Errorf("align: %w", err)
	}

	d := t.thaw()
	d.fold(script, ids, right, cfg.reserveSlots)

	return d.freeze(), script, nil
}

func (t *Tree) visible() ([]int, []string, error) {
	var (
		ids   []int
		texts []string
	)

	for line := range t.Expand() {
		if line.Conflict {
			return nil, nil, fmt.Errorf("%w: node %d", ErrUnresolvedConflict, line.ID)
		}

		ids = append(ids, int(line.ID))
		texts = append(texts, line.Text)
	}

	return ids, texts, nil
}

func validateScript(script lcs.Script, nLeft, nRight int) error {
	var l, r int

	for pos, ev := range script {
		ok := true

		switch ev.Kind {
		case lcs.Unchanged:
			ok = ev.Left == l && ev.Right == r
			l++
			r++
		case lcs.Deleted:
			ok = ev.Left == l
			l++
		case lcs.Inserted:
			ok = ev.Right == r
			r++
		default:
			ok = false
		}

		if !ok {
			return fmt.Errorf("%w: event %d (%s %d/%d) out of order", ErrInvalidScript, pos, ev.Kind, ev.Left, ev.Right)
		}
	}

	if l != nLeft || r != nRight {
		return fmt.Errorf("%w: consumed %d/%d left and %d/%d right lines", ErrInvalidScript, l, nLeft, r, nRight)
	}

	return nil
}

func identity(n int) []int {
	ids := make([]int, n)
	for idx := range ids {
		ids[idx] = idx
	}

	return ids
}

// draft is the mutable form of a tree. Node indices are stable while
// drafting; freeze lays the nodes out so that siblings are contiguous.
type draft struct {
	nodes    []draftNode
	trunk    int
	head     []int
	headSlot bool
}

type draftNode struct {
	text     string
	state    State
	kids     []int
	slot     bool
	conflict *draftConflict
}

type draftConflict struct {
	v1  []int
	v2  []int
	res Resolution
}

const headCursor = -1

func newDraft(lines []string) *draft {
	d := &draft{nodes: make([]draftNode, len(lines)), trunk: len(lines)}
	for idx, text := range lines {
		d.nodes[idx] = draftNode{text: text}
	}

	return d
}

func (d *draft) add(text string, state State) int {
	d.nodes = append(d.nodes, draftNode{text: text, state: state})

	return len(d.nodes) - 1
}

func (d *draft) addAll(texts []string) []int {
	ids := make([]int, len(texts))
	for idx, text := range texts {
		ids[idx] = d.add(text, Inserted)
	}

	return ids
}

func (d *draft) kidsAt(cursor int) ([]int, bool) {
	if cursor == headCursor {
		return d.head, d.headSlot
	}

	n := &d.nodes[cursor]

	return n.kids, n.slot
}

func (d *draft) setKids(cursor int, kids []int) {
	if cursor == headCursor {
		d.head = kids
		d.headSlot = d.headSlot || len(kids) > 0

		return
	}

	n := &d.nodes[cursor]
	n.kids = kids
	n.slot = n.slot || len(kids) > 0
}

func (d *draft) reserve(cursor int) {
	if cursor == headCursor {
		d.headSlot = true

		return
	}

	d.nodes[cursor].slot = true
}

func (d *draft) texts(ids []int) []string {
	out := make([]string, len(ids))
	for idx, id := range ids {
		out[idx] = d.nodes[id].text
	}

	return out
}

// fold applies script to the draft. visible maps the script's left indices
// to draft node indices.
func (d *draft) fold(script lcs.Script, visible []int, right []string, reserve bool) {
	cursor, insertAt := headCursor, 0
	afterDelete := false

	for _, ev := range script {
		switch ev.Kind {
		case lcs.Unchanged:
			if reserve && afterDelete {
				d.reserve(cursor)
			}

			cursor, insertAt = visible[ev.Left], 0
		case lcs.Deleted:
			cursor, insertAt = visible[ev.Left], 0
			d.nodes[cursor].state = Deleted
		case lcs.Inserted:
			id := d.add(right[ev.Right], Inserted)
			kids, _ := d.kidsAt(cursor)
			d.setKids(cursor, slices.Insert(kids, insertAt, id))
			insertAt++
		}

		afterDelete = ev.Kind == lcs.Deleted
	}
}

// freeze lays the draft out breadth-first: trunk first, then the head's
// children, then each node's children as one contiguous block. Nodes that
// are not reachable are dropped.
func (d *draft) freeze() *Tree {
	t := &Tree{nodes: make([]node, 0, len(d.nodes)), trunkLen: d.trunk}

	type pending struct {
		at  NodeID
		src int
	}

	var queue []pending

	place := func(src []int) Span {
		span := Span{Start: NodeID(len(t.nodes)), Len: len(src)}

		for _, idx := range src {
			dn := &d.nodes[idx]
			queue = append(queue, pending{at: NodeID(len(t.nodes)), src: idx})
			t.nodes = append(t.nodes, node{text: dn.text, state: dn.state, slot: dn.slot, conflict: -1})
		}

		return span
	}

	place(identity(d.trunk))
	t.head = place(d.head)
	t.headSlot = d.headSlot

	for qi := 0; qi < len(queue); qi++ {
		p := queue[qi]
		dn := &d.nodes[p.src]

		if dn.conflict != nil {
			v1 := place(dn.conflict.v1)
			v2 := place(dn.conflict.v2)
			t.nodes[p.at].conflict = int32(len(t.conflicts))
			t.conflicts = append(t.conflicts, conflictRec{id: p.at, v1: v1, v2: v2, res: dn.conflict.res})

			continue
		}

		t.nodes[p.at].kids = place(dn.kids)
	}

	return t
}

// thaw copies t into a draft whose node indices equal t's NodeIDs.
func (t *Tree) thaw() *draft {
	d := &draft{
		nodes:    make([]draftNode, len(t.nodes)),
		trunk:    t.trunkLen,
		head:     spanInts(t.head),
		headSlot: t.headSlot,
	}

	for idx := range t.nodes {
		n := &t.nodes[idx]
		dn := draftNode{text: n.text, state: n.state, slot: n.slot, kids: spanInts(n.kids)}

		if n.conflict >= 0 {
			c := &t.conflicts[n.conflict]
			dn.conflict = &draftConflict{v1: spanInts(c.v1), v2: spanInts(c.v2), res: c.res}
		}

		d.nodes[idx] = dn
	}

	return d
}

func spanInts(s Span) []int {
	if s.Len == 0 {
		return nil
	}

	out := make([]int, 0, s.Len)
	for id := range s.IDs() {
		out = append(out, int(id))
	}

	return out
}
