// Package render prints edit scripts and merge trees for terminals and
// produces conflict-marked text for files.
package render

import (
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/fatih/color"

	"github.com/Sumatoshi-tech/codemerge/pkg/alg/lcs"
	"github.com/Sumatoshi-tech/codemerge/pkg/mergetree"
)

// Default conflict labels.
const (
	DefaultLabel1 = "version1"
	DefaultLabel2 = "version2"
)

const (
	markerStart = "<<<<<<<"
	markerSep   = "======="
	markerEnd   = ">>>>>>>"
	indentUnit  = "  "
)

// Options controls terminal output.
type Options struct {
	// Color enables ANSI colors regardless of whether the output is a terminal.
	Color bool
	// Label1 and Label2 name the two sides of a conflict.
	Label1 string
	Label2 string
}

func (o Options) labels() (string, string) {
	l1, l2 := o.Label1, o.Label2
	if l1 == "" {
		l1 = DefaultLabel1
	}

	if l2 == "" {
		l2 = DefaultLabel2
	}

	return l1, l2
}

type palette struct {
	inserted *color.Color
	deleted  *color.Color
	conflict *color.Color
	plain    *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		inserted: color.New(color.FgGreen),
		deleted:  color.New(color.FgRed),
		conflict: color.New(color.FgYellow, color.Bold),
		plain:    color.New(color.Reset),
	}

	for _, c := range []*color.Color{p.inserted, p.deleted, p.conflict, p.plain} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	return p
}

func (p palette) forState(s mergetree.State) (*color.Color, string) {
	switch s {
	case mergetree.Inserted:
		return p.inserted, "+"
	case mergetree.Deleted:
		return p.deleted, "-"
	default:
		return p.plain, " "
	}
}

// Events writes one line per event: " " for kept lines, "+" for inserted and
// "-" for deleted ones.
func Events(w io.Writer, script lcs.Script, left, right []string, opts Options) error {
	p := newPalette(opts.Color)

	for ev := range script.All() {
		var err error

		switch ev.Kind {
		case lcs.Unchanged:
			_, err = p.plain.Fprintln(w, " "+left[ev.Left])
		case lcs.Inserted:
			_, err = p.inserted.Fprintln(w, "+"+right[ev.Right])
		case lcs.Deleted:
			_, err = p.deleted.Fprintln(w, "-"+left[ev.Left])
		}

		if err != nil {
			return fmt.Errorf("render events: %w", err)
		}
	}

	return nil
}

// Markup writes every node of t, deleted ones included, indented by depth and
// prefixed like Events. Unresolved conflicts are shown with both branches
// between conflict markers.
func Markup(w io.Writer, t *mergetree.Tree, opts Options) error {
	m := markup{w: w, t: t, p: newPalette(opts.Color)}
	m.l1, m.l2 = opts.labels()

	m.lines(t.Walk())

	if m.err != nil {
		return fmt.Errorf("render tree: %w", m.err)
	}

	return nil
}

type markup struct {
	w      io.Writer
	t      *mergetree.Tree
	p      palette
	l1, l2 string
	err    error
}

func (m *markup) lines(seq iter.Seq[mergetree.Line]) {
	for line := range seq {
		if m.err != nil {
			return
		}

		if line.Conflict {
			m.conflict(line)

			continue
		}

		c, sign := m.p.forState(line.State)
		_, m.err = c.Fprintln(m.w, sign+strings.Repeat(indentUnit, line.Depth)+line.Text)
	}
}

func (m *markup) conflict(line mergetree.Line) {
	indent := strings.Repeat(indentUnit, line.Depth)

	m.marker(indent + markerStart + " " + m.l1)
	m.lines(shift(m.t.Branch(line.ID, mergetree.Version1), line.Depth))
	m.marker(indent + markerSep)
	m.lines(shift(m.t.Branch(line.ID, mergetree.Version2), line.Depth))
	m.marker(indent + markerEnd + " " + m.l2)
}

func (m *markup) marker(text string) {
	if m.err == nil {
		_, m.err = m.p.conflict.Fprintln(m.w, "!"+text)
	}
}

func shift(seq iter.Seq[mergetree.Line], depth int) iter.Seq[mergetree.Line] {
	return func(yield func(mergetree.Line) bool) {
		for line := range seq {
			line.Depth += depth
			if !yield(line) {
				return
			}
		}
	}
}

// FlattenWithMarkers is Flatten that writes unresolved conflicts as
// conflict-marker blocks instead of failing.
func FlattenWithMarkers(t *mergetree.Tree, opts Options) []string {
	l1, l2 := opts.labels()

	var out []string

	var emit func(seq iter.Seq[mergetree.Line])

	emit = func(seq iter.Seq[mergetree.Line]) {
		for line := range seq {
			if !line.Conflict {
				out = append(out, line.Text)

				continue
			}

			out = append(out, markerStart+" "+l1)
			emit(t.Branch(line.ID, mergetree.Version1))
			out = append(out, markerSep)
			emit(t.Branch(line.ID, mergetree.Version2))
			out = append(out, markerEnd+" "+l2)
		}
	}

	emit(t.Expand())

	return out
}
