package mergetree_test

import (
	"context"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/codemerge/pkg/alg/lcs"
	"github.com/Sumatoshi-tech/codemerge/pkg/lines"
	"github.com/Sumatoshi-tech/codemerge/pkg/mergetree"
)

func merge(t *testing.T, left, right []string, opts ...mergetree.Option) *mergetree.Tree {
	t.Helper()

	tree, _, err := mergetree.Merge(context.Background(), left, right, opts...)
	require.NoError(t, err)

	return tree
}

func texts(seq func(func(mergetree.Line) bool)) []string {
	var out []string
	for line := range seq {
		out = append(out, line.Text)
	}

	return out
}

func TestMerge_InsertInTheMiddle(t *testing.T) {
	t.Parallel()

	tree, script, err := mergetree.Merge(context.Background(), []string{"a", "b", "c"}, []string{"a", "x", "b", "c"})
	require.NoError(t, err)

	kinds := make([]lcs.Kind, 0, len(script))
	for _, ev := range script {
		kinds = append(kinds, ev.Kind)
	}

	assert.Equal(t, []lcs.Kind{lcs.Unchanged, lcs.Inserted, lcs.Unchanged, lcs.Unchanged}, kinds)

	lines := slices.Collect(tree.Expand())
	require.Len(t, lines, 4)
	assert.Equal(t, mergetree.Line{ID: 0, Text: "a", State: mergetree.Unchanged}, lines[0])
	assert.Equal(t, "x", lines[1].Text)
	assert.Equal(t, mergetree.Inserted, lines[1].State)
	assert.Equal(t, 1, lines[1].Depth)

	kids, ok := tree.Children(0)
	require.True(t, ok)
	assert.Equal(t, 1, kids.Len)
	assert.Equal(t, "x", tree.Text(kids.Start))

	assert.Equal(t, mergetree.Stats{Trunk: 3, Unchanged: 3, Inserted: 1, MaxDepth: 1}, tree.Stats())
}

func TestMerge_DeleteReservesSlot(t *testing.T) {
	t.Parallel()

	tree := merge(t, []string{"a", "b", "c"}, []string{"a", "c"})

	flat, err := tree.Flatten()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, flat)
	assert.Equal(t, mergetree.Deleted, tree.State(1))

	kids, ok := tree.Children(1)
	assert.True(t, ok)
	assert.Zero(t, kids.Len)

	_, ok = tree.Children(0)
	assert.False(t, ok)

	plain := merge(t, []string{"a", "b", "c"}, []string{"a", "c"}, mergetree.WithoutReservedSlots())

	_, ok = plain.Children(1)
	assert.False(t, ok)
}

func TestMerge_DuplicateLine(t *testing.T) {
	t.Parallel()

	tree := merge(t, []string{"a"}, []string{"a", "a"})

	lines := slices.Collect(tree.Expand())
	require.Len(t, lines, 2)

	// The new copy precedes the kept line, so it hangs off the head.
	assert.Equal(t, 1, lines[0].Depth)
	assert.Equal(t, mergetree.Inserted, lines[0].State)
	assert.Equal(t, mergetree.NodeID(0), lines[1].ID)

	head, ok := tree.Children(mergetree.Head)
	assert.True(t, ok)
	assert.Equal(t, 1, head.Len)
}

func TestMerge_EmptyInputs(t *testing.T) {
	t.Parallel()

	tree := merge(t, nil, []string{"x", "y"})
	assert.Zero(t, tree.Len())

	flat, err := tree.Flatten()
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, flat)

	tree = merge(t, []string{"x", "y"}, nil)
	flat, err = tree.Flatten()
	require.NoError(t, err)
	assert.Empty(t, flat)
	assert.Equal(t, []string{"x", "y"}, texts(tree.Walk()))

	tree = merge(t, nil, nil)
	assert.Empty(t, slices.Collect(tree.Expand()))
}

func TestMerge_ExpandReproducesRight(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(42, 7))

	for range 500 {
		left := randomLines(rng, 4, 12)
		right := randomLines(rng, 4, 12)

		tree := merge(t, left, right)

		flat, err := tree.Flatten()
		require.NoError(t, err)

		if len(right) == 0 {
			assert.Empty(t, flat)
		} else {
			require.Equal(t, right, flat, "left=%q right=%q", left, right)
		}

		assert.Equal(t, len(left), tree.Len())

		for pos := range tree.Len() {
			assert.Equal(t, left[pos], tree.Text(mergetree.NodeID(pos)))
		}
	}
}

func TestMerge_FlattenedTreeAgainstItself(t *testing.T) {
	t.Parallel()

	tree := merge(t, []string{"a", "b", "c", "d"}, []string{"x", "a", "c", "y", "d"})

	flat, err := tree.Flatten()
	require.NoError(t, err)

	again, script, err := tree.Merge(context.Background(), flat)
	require.NoError(t, err)
	assert.True(t, script.Identity())

	flat2, err := again.Flatten()
	require.NoError(t, err)
	assert.True(t, lines.Sequence(flat).Equal(flat2))
	assert.Equal(t, tree.Snapshot(), again.Snapshot())

	trunk := mergetree.FromLines([]string{"p", "q"})
	flat3, err := trunk.Flatten()
	require.NoError(t, err)
	assert.Equal(t, []string{"p", "q"}, flat3)
}

func TestTree_MergeNestsInsertions(t *testing.T) {
	t.Parallel()

	tree := merge(t, []string{"a", "b", "c"}, []string{"a", "x", "b", "c"})

	nested, _, err := tree.Merge(context.Background(), []string{"a", "x", "z", "b", "c"})
	require.NoError(t, err)

	lines := slices.Collect(nested.Expand())
	require.Len(t, lines, 5)
	assert.Equal(t, "z", lines[2].Text)
	assert.Equal(t, 2, lines[2].Depth)
	assert.Equal(t, 2, nested.Stats().MaxDepth)

	// The first tree is left untouched.
	assert.Equal(t, []string{"a", "x", "b", "c"}, texts(tree.Expand()))

	sibling, _, err := tree.Merge(context.Background(), []string{"a", "y", "x", "b", "c"})
	require.NoError(t, err)

	kids, _ := sibling.Children(0)
	require.Equal(t, 2, kids.Len)
	assert.Equal(t, "y", sibling.Text(kids.Start))
	assert.Equal(t, "x", sibling.Text(kids.Start+1))
}

func TestTree_MergeDeletesNestedNode(t *testing.T) {
	t.Parallel()

	tree := merge(t, []string{"a", "b", "c"}, []string{"a", "x", "b", "c"})

	next, _, err := tree.Merge(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, texts(next.Expand()))

	walked := slices.Collect(next.Walk())
	require.Len(t, walked, 4)
	assert.Equal(t, "x", walked[1].Text)
	assert.Equal(t, mergetree.Deleted, walked[1].State)
	assert.Equal(t, 1, walked[1].Depth)

	kids, ok := next.Children(walked[1].ID)
	assert.True(t, ok)
	assert.Zero(t, kids.Len)
}

func TestTree_MergeRandomPasses(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(9, 9))

	for range 200 {
		tree := mergetree.FromLines(randomLines(rng, 3, 8))

		for range 4 {
			next := randomLines(rng, 3, 8)

			var err error

			tree, _, err = tree.Merge(context.Background(), next)
			require.NoError(t, err)

			flat, err := tree.Flatten()
			require.NoError(t, err)

			if len(next) == 0 {
				assert.Empty(t, flat)
			} else {
				require.Equal(t, next, flat)
			}
		}

		for line := range tree.Walk() {
			if line.Depth > 0 && !line.Conflict {
				assert.NotEqual(t, mergetree.Unchanged, line.State)
			}
		}
	}
}

func TestTree_ExpandRange(t *testing.T) {
	t.Parallel()

	tree := merge(t, []string{"a", "b", "c"}, []string{"h", "a", "x", "b", "c"})

	assert.Equal(t, []string{"h"}, texts(tree.ExpandRange(-1, -1)))
	assert.Equal(t, []string{"a", "x"}, texts(tree.ExpandRange(0, 0)))
	assert.Equal(t, []string{"b", "c"}, texts(tree.ExpandRange(1, 2)))
	assert.Equal(t, texts(tree.Expand()), texts(tree.ExpandRange(-10, 10)))
	assert.Empty(t, texts(tree.ExpandRange(2, 1)))

	var first []string

	for line := range tree.Expand() {
		first = append(first, line.Text)
		if len(first) == 2 {
			break
		}
	}

	assert.Equal(t, []string{"h", "a"}, first)
}

func TestBuild_InvalidScript(t *testing.T) {
	t.Parallel()

	_, err := mergetree.Build([]string{"a"}, []string{"b"}, lcs.Script{})
	require.ErrorIs(t, err, mergetree.ErrInvalidScript)

	_, err = mergetree.Build([]string{"a", "b"}, nil, lcs.Script{
		{Kind: lcs.Deleted, Left: 1, Right: -1},
		{Kind: lcs.Deleted, Left: 0, Right: -1},
	})
	require.ErrorIs(t, err, mergetree.ErrInvalidScript)
}

func TestMerge_AlignOptions(t *testing.T) {
	t.Parallel()

	_, _, err := mergetree.Merge(context.Background(), []string{"a", "b"}, []string{"c", "d"},
		mergetree.WithAlignOptions(lcs.WithMaxCells(3)))
	require.ErrorIs(t, err, lcs.ErrTooLarge)
}

func TestState_Parse(t *testing.T) {
	t.Parallel()

	for _, s := range []mergetree.State{mergetree.Unchanged, mergetree.Inserted, mergetree.Deleted} {
		got, err := mergetree.ParseState(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	_, err := mergetree.ParseState("moved")
	require.ErrorIs(t, err, mergetree.ErrInvalidSnapshot)
}

func BenchmarkMerge(b *testing.B) {
	rng := rand.New(rand.NewPCG(1, 1))
	left := randomLines(rng, 20, 2000)
	right := slices.Clone(left)

	for idx := 0; idx < len(right); idx += 50 {
		right[idx] = "changed"
	}

	ctx := context.Background()

	for b.Loop() {
		_, _, err := mergetree.Merge(ctx, left, right)
		if err != nil {
			b.Fatal(err)
		}
	}
}

func randomLines(rng *rand.Rand, alphabet, maxLen int) []string {
	out := make([]string, rng.IntN(maxLen+1))
	for idx := range out {
		out[idx] = string(rune('a' + rng.IntN(alphabet)))
	}

	return out
}
