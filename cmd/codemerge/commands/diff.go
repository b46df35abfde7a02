package commands

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/codemerge/internal/observability"
	"github.com/Sumatoshi-tech/codemerge/pkg/render"
)

// ErrFilesDiffer is returned by diff --exit-code when the inputs differ.
var ErrFilesDiffer = errors.New("files differ")

// DiffCommand holds the configuration for the diff command.
type DiffCommand struct {
	stat     bool
	inline   bool
	exitCode bool
}

func newDiffCommand() *cobra.Command {
	dc := &DiffCommand{}

	cmd := &cobra.Command{
		Use:   "diff LEFT RIGHT",
		Short: "Print the minimal line edit script between two files",
		Long: `Print the edit script that turns LEFT into RIGHT, one line per event:
" " for kept lines, "+" for inserted and "-" for deleted ones.
Either file may be "-" for standard input.`,
		Args: cobra.ExactArgs(2),
		RunE: dc.run,
	}

	cmd.Flags().BoolVar(&dc.stat, "stat", false, "print only a summary of the changes")
	cmd.Flags().BoolVar(&dc.inline, "inline", false, "show replaced lines as one line with character changes")
	cmd.Flags().BoolVar(&dc.exitCode, "exit-code", false, "fail when the files differ")

	return cmd
}

func (dc *DiffCommand) run(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd, observability.ModeCLI, nil)
	if err != nil {
		return err
	}
	defer rt.close()

	opts, err := rt.renderOptions(cmd)
	if err != nil {
		return err
	}

	left, err := readInput(cmd, args[0])
	if err != nil {
		return err
	}

	right, err := readInput(cmd, args[1])
	if err != nil {
		return err
	}

	res, err := rt.svc.Diff(cmd.Context(), left, right)
	if err != nil {
		return err
	}

	if dc.stat {
		unchanged, inserted, deleted := res.Script.Counts()
		fmt.Fprintf(cmd.OutOrStdout(), "%s unchanged, %s inserted, %s deleted\n",
			humanize.Comma(int64(unchanged)), humanize.Comma(int64(inserted)), humanize.Comma(int64(deleted)))
	} else {
		write := render.Events
		if dc.inline {
			write = render.InlineEvents
		}

		err = write(cmd.OutOrStdout(), res.Script, res.Left.Lines, res.Right.Lines, opts)
		if err != nil {
			return err
		}
	}

	if dc.exitCode && !res.Script.Identity() {
		return ErrFilesDiffer
	}

	return nil
}
