package persist

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrSchema is returned when a document does not match the snapshot schema.
var ErrSchema = errors.New("persist: snapshot does not match schema")

//go:embed schema/tree.schema.json
var treeSchema []byte

// Schema returns the JSON schema of the snapshot format.
func Schema() []byte {
	return treeSchema
}

// Validate checks a decoded document (maps, slices and scalars, as produced
// by decoding into an any) against the snapshot schema.
func Validate(doc any) error {
	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(treeSchema), gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("validate snapshot: %w", err)
	}

	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, verr := range result.Errors() {
		problems = append(problems, verr.Field()+": "+verr.Description())
	}

	return fmt.Errorf("%w: %s", ErrSchema, strings.Join(problems, "; "))
}
