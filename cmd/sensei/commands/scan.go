package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/ChamsBouzaiene/sensei/internal/logging"
	"github.com/ChamsBouzaiene/sensei/internal/metrics"
	"github.com/ChamsBouzaiene/sensei/internal/workspace"
)

// NewScanCommand creates the scan command.
func NewScanCommand() *cobra.Command {
	var (
		opts    workspace.ScanOptions
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "scan [dir]",
		Short: "Print the bounded file tree of a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			abs, err := filepath.Abs(root)
			if err != nil {
				return fmt.Errorf("failed to resolve %s: %w", root, err)
			}

			tree, err := workspace.NewScanner(opts, logging.L()).Scan(abs)
			if err != nil {
				return err
			}
			files, dirs := workspace.Count(tree)
			metrics.RecordScan(files)

			out := cmd.OutOrStdout()
			if jsonOut {
				return printJSON(out, tree)
			}
			printTree(out, tree, "")
			fmt.Fprintf(out, "\n%d files, %d directories, %s (%s)\n",
				files, dirs, units.HumanSize(float64(treeSize(abs, tree))),
				workspace.DetectProjectType(abs, tree).Describe())
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.MaxDepth, "max-depth", workspace.DefaultMaxDepth, "Maximum directory depth")
	cmd.Flags().IntVar(&opts.MaxFiles, "max-files", workspace.DefaultMaxFiles, "Maximum number of files")
	cmd.Flags().StringSliceVar(&opts.ExtraIgnore, "ignore", nil, "Additional gitignore-style patterns to skip")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the tree as JSON")
	return cmd
}

func printTree(w io.Writer, nodes []workspace.FileNode, indent string) {
	for _, n := range nodes {
		name := n.Name
		if !n.IsFile && !n.DepthLimited {
			name += "/"
		}
		fmt.Fprintf(w, "%s%s\n", indent, name)
		if len(n.Children) > 0 {
			printTree(w, n.Children, indent+"  ")
		}
	}
}

// treeSize sums the sizes of the files in tree.
func treeSize(root string, tree []workspace.FileNode) int64 {
	var total int64
	for _, rel := range workspace.Files(tree) {
		if info, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel))); err == nil {
			total += info.Size()
		}
	}
	return total
}
