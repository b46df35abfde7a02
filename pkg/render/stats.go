package render

import (
	"fmt"
	"iter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Sumatoshi-tech/codemerge/pkg/mergetree"
)

// Summary is what StatsTable prints about one merge.
type Summary struct {
	Stats      mergetree.Stats
	LeftBytes  uint64
	RightBytes uint64
	Elapsed    time.Duration
}

// StatsTable renders s as a two-column table.
func StatsTable(s Summary) string {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Metric", "Value"})

	st := s.Stats

	tbl.AppendRows([]table.Row{
		{"Original lines", humanize.Comma(int64(st.Trunk))},
		{"Unchanged", humanize.Comma(int64(st.Unchanged))},
		{"Inserted", humanize.Comma(int64(st.Inserted))},
		{"Deleted", humanize.Comma(int64(st.Deleted))},
		{"Conflicts", humanize.Comma(int64(st.Conflicts))},
		{"Unresolved", humanize.Comma(int64(st.Unresolved))},
		{"Max depth", st.MaxDepth},
	})

	if s.LeftBytes > 0 || s.RightBytes > 0 {
		tbl.AppendSeparator()
		tbl.AppendRow(table.Row{"Input size", humanize.Bytes(s.LeftBytes) + " / " + humanize.Bytes(s.RightBytes)})
	}

	if s.Elapsed > 0 {
		tbl.AppendRow(table.Row{"Elapsed", s.Elapsed.Round(time.Microsecond).String()})
	}

	return tbl.Render()
}

const previewWidth = 32

// ConflictTable lists the conflicts of t with the first line of each branch.
func ConflictTable(t *mergetree.Tree) string {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"ID", "Resolution", "Version 1", "Version 2"})

	for _, id := range t.Conflicts() {
		c, _ := t.Conflict(id)
		tbl.AppendRow(table.Row{
			int(id), c.Resolution.String(),
			preview(t.Branch(id, mergetree.Version1)),
			preview(t.Branch(id, mergetree.Version2)),
		})
	}

	return tbl.Render()
}

// preview summarises a branch as its first line and the number of others.
func preview(seq iter.Seq[mergetree.Line]) string {
	var (
		first string
		n     int
	)

	for line := range seq {
		if n == 0 {
			first = line.Text
		}

		n++
	}

	if len(first) > previewWidth {
		first = first[:previewWidth] + "..."
	}

	if n > 1 {
		first += fmt.Sprintf(" (+%d)", n-1)
	}

	return first
}
