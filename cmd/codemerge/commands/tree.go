package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/codemerge/internal/observability"
	"github.com/Sumatoshi-tech/codemerge/pkg/lines"
	"github.com/Sumatoshi-tech/codemerge/pkg/mergetree"
	"github.com/Sumatoshi-tech/codemerge/pkg/persist"
	"github.com/Sumatoshi-tech/codemerge/pkg/render"
)

// ErrNoResolution reports a resolve call that would leave conflicts as they are.
var ErrNoResolution = errors.New("resolve needs --resolution other than unresolved")

// ShowCommand holds the configuration for the show command.
type ShowCommand struct {
	flat  bool
	stats bool
}

func newShowCommand() *cobra.Command {
	sc := &ShowCommand{}

	cmd := &cobra.Command{
		Use:   "show TREE",
		Short: "Render a saved merge tree",
		Long: `Print every node of a saved merge tree, deleted lines included, indented
by nesting depth. With --flat, print the visible lines instead, writing
unresolved conflicts with conflict markers.`,
		Args: cobra.ExactArgs(1),
		RunE: sc.run,
	}

	cmd.Flags().BoolVar(&sc.flat, "flat", false, "print the visible lines with conflict markers")
	cmd.Flags().BoolVar(&sc.stats, "stats", false, "print tree statistics to stderr")

	return cmd
}

func (sc *ShowCommand) run(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd, observability.ModeCLI, nil)
	if err != nil {
		return err
	}
	defer rt.close()

	opts, err := rt.renderOptions(cmd)
	if err != nil {
		return err
	}

	tree, err := persist.LoadTree(args[0])
	if err != nil {
		return err
	}

	if sc.flat {
		data, encErr := lines.Encode(render.FlattenWithMarkers(tree, opts), lines.DefaultFormat)
		if encErr != nil {
			return encErr
		}

		err = writeOutput(cmd, "", data)
	} else {
		err = render.Markup(cmd.OutOrStdout(), tree, opts)
	}

	if err != nil {
		return err
	}

	if sc.stats {
		fmt.Fprintln(cmd.ErrOrStderr(), render.StatsTable(render.Summary{Stats: tree.Stats()}))
	}

	return nil
}

// ResolveCommand holds the configuration for the resolve command.
type ResolveCommand struct {
	ids        []int
	resolution string
	output     string
}

func newResolveCommand() *cobra.Command {
	rc := &ResolveCommand{}

	cmd := &cobra.Command{
		Use:   "resolve TREE",
		Short: "List or resolve the conflicts of a saved merge tree",
		Long: `Without --resolution, list the conflicts of TREE. With it, apply the
resolution to the conflicts named by --id, or to all of them, and save the
tree back (or to --output).`,
		Args: cobra.ExactArgs(1),
		RunE: rc.run,
	}

	cmd.Flags().IntSliceVar(&rc.ids, "id", nil, "conflict node ID to resolve (repeatable, default all)")
	cmd.Flags().StringVar(&rc.resolution, "resolution", "", "version1, version2 or both")
	cmd.Flags().StringVarP(&rc.output, "output", "o", "", "save the resolved tree here instead of TREE")

	return cmd
}

func (rc *ResolveCommand) run(cmd *cobra.Command, args []string) error {
	tree, err := persist.LoadTree(args[0])
	if err != nil {
		return err
	}

	if rc.resolution == "" {
		fmt.Fprintln(cmd.OutOrStdout(), render.ConflictTable(tree))

		return nil
	}

	res, err := mergetree.ParseResolution(rc.resolution)
	if err != nil {
		return err
	}

	if res == mergetree.Unresolved {
		return ErrNoResolution
	}

	resolved := 0

	if len(rc.ids) == 0 {
		resolved = tree.ResolveAll(res)
	} else {
		for _, id := range rc.ids {
			err = tree.Resolve(mergetree.NodeID(id), res)
			if err != nil {
				return err
			}

			resolved++
		}
	}

	out := rc.output
	if out == "" {
		out = args[0]
	}

	err = persist.Save(out, tree.Snapshot())
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "resolved %d conflict(s), %d unresolved, saved %s\n",
		resolved, tree.Stats().Unresolved, out)

	return nil
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate TREE...",
		Short: "Check saved merge trees against the snapshot schema",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var errs []error

			for _, path := range args {
				tree, err := persist.LoadTree(path)
				if err != nil {
					errs = append(errs, err)
					fmt.Fprintf(cmd.OutOrStdout(), "%s: invalid\n", path)

					continue
				}

				st := tree.Stats()
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d lines, %d conflicts, %d unresolved)\n",
					path, st.Trunk, st.Conflicts, st.Unresolved)
			}

			return errors.Join(errs...)
		},
	}
}
