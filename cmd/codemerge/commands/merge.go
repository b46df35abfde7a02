package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/codemerge/internal/observability"
	"github.com/Sumatoshi-tech/codemerge/internal/service"
	"github.com/Sumatoshi-tech/codemerge/pkg/lines"
	"github.com/Sumatoshi-tech/codemerge/pkg/mergetree"
	"github.com/Sumatoshi-tech/codemerge/pkg/persist"
	"github.com/Sumatoshi-tech/codemerge/pkg/render"
)

// ErrMergeArgs reports a file count that does not match the --tree flag.
var ErrMergeArgs = errors.New("merge takes LEFT RIGHT, or only RIGHT with --tree")

// treeOutput holds the flags shared by the commands that produce a tree.
type treeOutput struct {
	output   string
	saveTree string
	markup   bool
	stats    bool
}

func (o *treeOutput) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.output, "output", "o", "", "write the merged file here instead of stdout")
	cmd.Flags().StringVar(&o.saveTree, "save-tree", "", "save the merge tree (.json, .yaml or .lz4)")
	cmd.Flags().BoolVar(&o.markup, "markup", false, "print the annotated tree instead of the merged file")
	cmd.Flags().BoolVar(&o.stats, "stats", false, "print tree statistics to stderr")
}

// emit writes merged (or the markup of tree) and then the optional tree file
// and statistics.
func (o *treeOutput) emit(cmd *cobra.Command, tree *mergetree.Tree, merged []string, format lines.Format,
	opts render.Options, summary render.Summary,
) error {
	if o.markup {
		err := render.Markup(cmd.OutOrStdout(), tree, opts)
		if err != nil {
			return err
		}
	} else {
		data, err := lines.Encode(merged, format)
		if err != nil {
			return err
		}

		err = writeOutput(cmd, o.output, data)
		if err != nil {
			return err
		}
	}

	if o.saveTree != "" {
		err := persist.Save(o.saveTree, tree.Snapshot())
		if err != nil {
			return err
		}
	}

	if o.stats {
		summary.Stats = tree.Stats()
		fmt.Fprintln(cmd.ErrOrStderr(), render.StatsTable(summary))
	}

	return nil
}

// MergeCommand holds the configuration for the merge command.
type MergeCommand struct {
	treeOutput

	tree string
}

func newMergeCommand() *cobra.Command {
	mc := &MergeCommand{}

	cmd := &cobra.Command{
		Use:   "merge [LEFT] RIGHT",
		Short: "Fold the changes from LEFT to RIGHT into a merge tree",
		Long: `Align LEFT with RIGHT and build a merge tree that keeps every LEFT line
in place, marks deleted lines and nests inserted ones under the line they
follow. The merged output is RIGHT, re-encoded with its own line endings.

With --tree, LEFT is replaced by a saved tree: RIGHT is merged on top of it
so earlier insertions stay nested. Save the result with --save-tree to
continue in a later pass.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: mc.run,
	}

	cmd.Flags().StringVar(&mc.tree, "tree", "", "merge on top of this saved tree")
	mc.register(cmd)

	return cmd
}

func (mc *MergeCommand) run(cmd *cobra.Command, args []string) error {
	if (mc.tree != "") != (len(args) == 1) {
		return ErrMergeArgs
	}

	rt, err := newRuntime(cmd, observability.ModeCLI, nil)
	if err != nil {
		return err
	}
	defer rt.close()

	opts, err := rt.renderOptions(cmd)
	if err != nil {
		return err
	}

	start := time.Now()

	var (
		res     *service.MergeResult
		summary render.Summary
	)

	if mc.tree != "" {
		res, summary, err = mc.mergeInto(cmd, rt, args[0])
	} else {
		res, summary, err = mc.merge(cmd, rt, args[0], args[1])
	}

	if err != nil {
		return err
	}

	summary.Elapsed = time.Since(start)

	merged, err := res.Tree.Flatten()
	if err != nil {
		return err
	}

	return mc.emit(cmd, res.Tree, merged, res.Right.Format, opts, summary)
}

func (mc *MergeCommand) merge(cmd *cobra.Command, rt *runtime, leftPath, rightPath string) (*service.MergeResult, render.Summary, error) {
	left, err := readInput(cmd, leftPath)
	if err != nil {
		return nil, render.Summary{}, err
	}

	right, err := readInput(cmd, rightPath)
	if err != nil {
		return nil, render.Summary{}, err
	}

	res, err := rt.svc.Merge(cmd.Context(), left, right)
	if err != nil {
		return nil, render.Summary{}, err
	}

	return res, render.Summary{LeftBytes: uint64(len(left.Data)), RightBytes: uint64(len(right.Data))}, nil
}

func (mc *MergeCommand) mergeInto(cmd *cobra.Command, rt *runtime, rightPath string) (*service.MergeResult, render.Summary, error) {
	tree, err := persist.LoadTree(mc.tree)
	if err != nil {
		return nil, render.Summary{}, err
	}

	right, err := readInput(cmd, rightPath)
	if err != nil {
		return nil, render.Summary{}, err
	}

	res, err := rt.svc.MergeInto(cmd.Context(), tree, right)
	if err != nil {
		return nil, render.Summary{}, err
	}

	return res, render.Summary{RightBytes: uint64(len(right.Data))}, nil
}

// Merge3Command holds the configuration for the merge3 command.
type Merge3Command struct {
	treeOutput

	resolution string
	label1     string
	label2     string
	strict     bool
}

func newMerge3Command() *cobra.Command {
	mc := &Merge3Command{}

	cmd := &cobra.Command{
		Use:   "merge3 BASE VERSION1 VERSION2",
		Short: "Three-way merge of two versions of a common base",
		Long: `Align BASE with each version and combine both alignments into one merge
tree. A base line deleted by either side is deleted. Lines inserted at the
same position by both sides become a conflict unless they are identical.

Unresolved conflicts are written with conflict markers. Use --resolution to
resolve every conflict the same way, or save the tree with --save-tree and
resolve conflicts one by one with "codemerge resolve".`,
		Args: cobra.ExactArgs(3),
		RunE: mc.run,
	}

	cmd.Flags().StringVar(&mc.resolution, "resolution", "unresolved", "resolve every conflict: unresolved, version1, version2 or both")
	cmd.Flags().StringVar(&mc.label1, "label1", "", "conflict marker label for VERSION1 (default from config)")
	cmd.Flags().StringVar(&mc.label2, "label2", "", "conflict marker label for VERSION2 (default from config)")
	cmd.Flags().BoolVar(&mc.strict, "strict", false, "fail when conflicts remain unresolved")
	mc.register(cmd)

	return cmd
}

func (mc *Merge3Command) run(cmd *cobra.Command, args []string) error {
	resolution, err := mergetree.ParseResolution(mc.resolution)
	if err != nil {
		return err
	}

	rt, err := newRuntime(cmd, observability.ModeCLI, nil)
	if err != nil {
		return err
	}
	defer rt.close()

	opts, err := rt.renderOptions(cmd)
	if err != nil {
		return err
	}

	if mc.label1 != "" {
		opts.Label1 = mc.label1
	}

	if mc.label2 != "" {
		opts.Label2 = mc.label2
	}

	inputs := make([]service.Input, 0, len(args))

	for _, path := range args {
		in, readErr := readInput(cmd, path)
		if readErr != nil {
			return readErr
		}

		inputs = append(inputs, in)
	}

	start := time.Now()

	res, err := rt.svc.Merge3(cmd.Context(), inputs[0], inputs[1], inputs[2], resolution)
	if err != nil {
		return err
	}

	summary := render.Summary{
		LeftBytes:  uint64(len(inputs[1].Data)),
		RightBytes: uint64(len(inputs[2].Data)),
		Elapsed:    time.Since(start),
	}

	merged := render.FlattenWithMarkers(res.Tree, opts)

	err = mc.emit(cmd, res.Tree, merged, res.Base.Format, opts, summary)
	if err != nil {
		return err
	}

	if mc.strict && res.Tree.Stats().Unresolved > 0 {
		return fmt.Errorf("%w: %d left", mergetree.ErrUnresolvedConflict, res.Tree.Stats().Unresolved)
	}

	return nil
}
