package persist_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/codemerge/pkg/persist"
)

type sample struct {
	Name  string         `json:"name"  yaml:"name"`
	Count int            `json:"count" yaml:"count"`
	Tags  map[string]int `json:"tags"  yaml:"tags"`
}

func TestCodecs_RoundTrip(t *testing.T) {
	t.Parallel()

	codecs := map[string]persist.Codec{
		"json":         persist.NewJSONCodec(),
		"compact json": &persist.JSONCodec{},
		"yaml":         persist.NewYAMLCodec(),
		"json lz4":     persist.NewLZ4Codec(persist.NewJSONCodec()),
		"yaml lz4":     persist.NewLZ4Codec(persist.NewYAMLCodec()),
	}

	in := sample{Name: "tree <a&b>", Count: 3, Tags: map[string]int{"x": 1}}

	for name, codec := range codecs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			require.NoError(t, codec.Encode(&buf, in))

			var out sample
			require.NoError(t, codec.Decode(&buf, &out))
			assert.Equal(t, in, out)
		})
	}
}

func TestJSONCodec_Layout(t *testing.T) {
	t.Parallel()

	var pretty, compact bytes.Buffer

	require.NoError(t, persist.NewJSONCodec().Encode(&pretty, sample{Name: "<x>"}))
	require.NoError(t, (&persist.JSONCodec{}).Encode(&compact, sample{Name: "<x>"}))

	assert.Contains(t, pretty.String(), "\n  \"name\": \"<x>\"")
	assert.Equal(t, 1, strings.Count(compact.String(), "\n"))
}

func TestLZ4Codec_WritesFrame(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, persist.NewLZ4Codec(persist.NewJSONCodec()).Encode(&buf, sample{Name: "framed"}))

	assert.Equal(t, []byte{0x04, 0x22, 0x4D, 0x18}, buf.Bytes()[:4])
	assert.NotContains(t, buf.String(), "\"name\"")
}

func TestCodecFor(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"tree.json":        ".json",
		"out/TREE.JSON":    ".json",
		"tree.yaml":        ".yaml",
		"tree.yml":         ".yaml",
		"tree.json.lz4":    ".json.lz4",
		"a/b/tree.yml.lz4": ".yaml.lz4",
	}

	for path, ext := range tests {
		codec, err := persist.CodecFor(path)
		require.NoError(t, err, path)
		assert.Equal(t, ext, codec.Extension(), path)
	}

	for _, path := range []string{"tree.gob", "tree", "tree.lz4"} {
		_, err := persist.CodecFor(path)
		require.ErrorIs(t, err, persist.ErrUnknownFormat, path)
	}
}
