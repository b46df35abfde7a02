package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/Sumatoshi-tech/codemerge/pkg/alg/lcs"
)

// InlineEvents is Events with each deleted line that is directly replaced by
// an inserted one collapsed into a single "~" line. Removed characters are
// written as [-text-] and added ones as {+text+}.
func InlineEvents(w io.Writer, script lcs.Script, left, right []string, opts Options) error {
	p := newPalette(opts.Color)
	dmp := diffmatchpatch.New()

	for idx := 0; idx < len(script); {
		if script[idx].Kind != lcs.Deleted {
			err := Events(w, script[idx:idx+1], left, right, opts)
			if err != nil {
				return err
			}

			idx++

			continue
		}

		dels := runLen(script[idx:], lcs.Deleted)
		ins := runLen(script[idx+dels:], lcs.Inserted)
		pairs := min(dels, ins)

		for k := range pairs {
			before := left[script[idx+k].Left]
			after := right[script[idx+dels+k].Right]
			diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(before, after, false))

			_, err := fmt.Fprintln(w, "~"+p.wordDiff(diffs))
			if err != nil {
				return fmt.Errorf("render events: %w", err)
			}
		}

		rest := append(lcs.Script{}, script[idx+pairs:idx+dels]...)
		rest = append(rest, script[idx+dels+pairs:idx+dels+ins]...)

		err := Events(w, rest, left, right, opts)
		if err != nil {
			return err
		}

		idx += dels + ins
	}

	return nil
}

func runLen(script lcs.Script, kind lcs.Kind) int {
	n := 0
	for n < len(script) && script[n].Kind == kind {
		n++
	}

	return n
}

func (p palette) wordDiff(diffs []diffmatchpatch.Diff) string {
	var sb strings.Builder

	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			sb.WriteString(d.Text)
		case diffmatchpatch.DiffDelete:
			sb.WriteString(p.deleted.Sprint("[-" + d.Text + "-]"))
		case diffmatchpatch.DiffInsert:
			sb.WriteString(p.inserted.Sprint("{+" + d.Text + "+}"))
		}
	}

	return sb.String()
}
