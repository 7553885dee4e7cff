package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ChamsBouzaiene/sensei/internal/backend"
)

// NewProjectsCommand creates the projects command group.
func NewProjectsCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "Manage Code Sensei projects",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List projects, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withBackend(cmd, func(b *backend.Backend) error {
				projects, err := b.Projects.List()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(projects) == 0 {
					fmt.Fprintln(out, "No projects found")
					return nil
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tLANGUAGE\tUPDATED\tROOT")
				for _, p := range projects {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Language,
						time.Unix(p.UpdatedAt, 0).Format("2006-01-02 15:04"), b.Projects.ContentRoot(&p))
				}
				return tw.Flush()
			})
		},
	}

	var description, rootPath string
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withBackend(cmd, func(b *backend.Backend) error {
				p, err := b.Projects.Create(args[0], description, rootPath)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), p)
			})
		},
	}
	create.Flags().StringVar(&description, "description", "", "Project description")
	create.Flags().StringVar(&rootPath, "root", "", "Use an existing directory as the project root")

	del := &cobra.Command{
		Use:   "delete <project-id>",
		Short: "Delete a project (an external root directory is kept)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withBackend(cmd, func(b *backend.Backend) error {
				if err := b.DeleteProject(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				return nil
			})
		},
	}

	var jsonOut bool
	files := &cobra.Command{
		Use:   "files <project-id>",
		Short: "Print the file tree of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withBackend(cmd, func(b *backend.Backend) error {
				tree, err := b.ProjectFiles(args[0])
				if err != nil {
					return err
				}
				if jsonOut {
					return printJSON(cmd.OutOrStdout(), tree)
				}
				printTree(cmd.OutOrStdout(), tree, "")
				return nil
			})
		},
	}
	files.Flags().BoolVar(&jsonOut, "json", false, "Print the tree as JSON")

	cmd.AddCommand(list, create, del, files)
	return cmd
}
