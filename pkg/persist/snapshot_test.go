package persist_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/codemerge/pkg/mergetree"
	"github.com/Sumatoshi-tech/codemerge/pkg/persist"
)

func conflictTree(t *testing.T) *mergetree.Tree {
	t.Helper()

	tree, err := mergetree.Merge3(context.Background(),
		[]string{"package main", "func main() {", "}"},
		[]string{"package main", "func main() {", "\tprintln(1)", "}"},
		[]string{"// header", "package main", "func main() {", "\tprintln(2)", "}"},
	)
	require.NoError(t, err)
	require.Len(t, tree.Conflicts(), 1)

	return tree
}

func TestSaveLoad_AllFormats(t *testing.T) {
	t.Parallel()

	tree := conflictTree(t)
	snap := tree.Snapshot()
	dir := t.TempDir()

	for _, name := range []string{"tree.json", "tree.yaml", "tree.yml", "tree.json.lz4", "tree.yaml.lz4"} {
		path := filepath.Join(dir, name)

		require.NoError(t, persist.Save(path, snap), name)

		got, err := persist.Load(path)
		require.NoError(t, err, name)
		assert.Equal(t, snap, got, name)

		back, err := persist.LoadTree(path)
		require.NoError(t, err, name)
		assert.Equal(t, tree.Stats(), back.Stats(), name)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, err := persist.Load(filepath.Join(dir, "tree.txt"))
	require.ErrorIs(t, err, persist.ErrUnknownFormat)

	_, err = persist.Load(filepath.Join(dir, "missing.json"))
	require.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"format":"codemerge.tree/v1","trunk":[{"text":"a","state":"moved"}]}`), 0o600))

	_, err = persist.Load(bad)
	require.ErrorIs(t, err, persist.ErrSchema)
	assert.Contains(t, err.Error(), "trunk.0")

	// Valid against the schema, rejected by the tree rules.
	orphan := filepath.Join(dir, "orphan.json")
	require.NoError(t, os.WriteFile(orphan, []byte(`{"format":"codemerge.tree/v1","trunk":[],"head":[`+
		`{"text":"","state":"inserted","children":[{"text":"x","state":"inserted"}],"conflict":{"resolution":"both"}}]}`), 0o600))

	_, err = persist.Load(orphan)
	require.NoError(t, err)

	_, err = persist.LoadTree(orphan)
	require.ErrorIs(t, err, mergetree.ErrInvalidSnapshot)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		doc   string
		valid bool
	}{
		{name: "minimal", doc: `{"format":"codemerge.tree/v1","trunk":[]}`, valid: true},
		{name: "missing trunk", doc: `{"format":"codemerge.tree/v1"}`},
		{name: "wrong format", doc: `{"format":"codemerge.tree/v0","trunk":[]}`},
		{name: "unknown field", doc: `{"format":"codemerge.tree/v1","trunk":[],"extra":1}`},
		{name: "inserted trunk", doc: `{"format":"codemerge.tree/v1","trunk":[{"text":"a","state":"inserted"}]}`},
		{name: "unchanged child", doc: `{"format":"codemerge.tree/v1","trunk":[{"text":"a","state":"unchanged","children":[{"text":"b","state":"unchanged"}]}]}`},
		{name: "bad resolution", doc: `{"format":"codemerge.tree/v1","trunk":[],"head":[{"text":"","state":"inserted","conflict":{"resolution":"mine"}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := persist.DecodeSnapshot(strings.NewReader(tt.doc), persist.NewJSONCodec())
			if tt.valid {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, persist.ErrSchema)
			}
		})
	}
}

func TestEncodeSnapshot_ValidatesAgainstSchema(t *testing.T) {
	t.Parallel()

	tree := conflictTree(t)
	require.NoError(t, tree.Resolve(tree.Conflicts()[0], mergetree.KeepBoth))

	for _, codec := range []persist.Codec{persist.NewJSONCodec(), persist.NewYAMLCodec()} {
		var buf bytes.Buffer
		require.NoError(t, persist.EncodeSnapshot(&buf, codec, tree.Snapshot()))

		snap, err := persist.DecodeSnapshot(&buf, codec)
		require.NoError(t, err)
		assert.Equal(t, "both", snap.Trunk[1].Children[0].Conflict.Resolution)
	}

	assert.Contains(t, string(persist.Schema()), "codemerge.tree/v1")
}
