package persist

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/Sumatoshi-tech/codemerge/pkg/mergetree"
)

// EncodeSnapshot writes snap with codec.
func EncodeSnapshot(w io.Writer, codec Codec, snap *mergetree.Snapshot) error {
	return codec.Encode(w, snap)
}

// DecodeSnapshot reads a snapshot with codec, validating it against the
// schema before it is decoded into the typed form.
func DecodeSnapshot(r io.Reader, codec Codec) (*mergetree.Snapshot, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var doc any

	err = codec.Decode(bytes.NewReader(raw), &doc)
	if err != nil {
		return nil, err
	}

	err = Validate(doc)
	if err != nil {
		return nil, err
	}

	var snap mergetree.Snapshot

	err = codec.Decode(bytes.NewReader(raw), &snap)
	if err != nil {
		return nil, err
	}

	return &snap, nil
}

// Save writes snap to path, choosing the codec from the extension.
func Save(path string, snap *mergetree.Snapshot) error {
	codec, err := CodecFor(path)
	if err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}

	err = EncodeSnapshot(file, codec, snap)
	if err != nil {
		file.Close()

		return fmt.Errorf("encode snapshot: %w", err)
	}

	err = file.Close()
	if err != nil {
		return fmt.Errorf("close snapshot file: %w", err)
	}

	return nil
}

// Load reads and validates the snapshot at path.
func Load(path string) (*mergetree.Snapshot, error) {
	codec, err := CodecFor(path)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot file: %w", err)
	}
	defer file.Close()

	snap, err := DecodeSnapshot(file, codec)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	return snap, nil
}

// LoadTree loads the snapshot at path and rebuilds the tree.
func LoadTree(path string) (*mergetree.Tree, error) {
	snap, err := Load(path)
	if err != nil {
		return nil, err
	}

	tree, err := mergetree.FromSnapshot(snap)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	return tree, nil
}
