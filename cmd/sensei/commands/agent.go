package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ChamsBouzaiene/sensei/internal/agent"
	"github.com/ChamsBouzaiene/sensei/internal/backend"
	"github.com/ChamsBouzaiene/sensei/internal/notify"
)

// progressPrinter prints saga progress to stderr.
func progressPrinter(cmd *cobra.Command) notify.Notifier {
	return notify.Func(func(e notify.Event) {
		if e.Name != notify.AgentProgress {
			return
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "[%v] %v\n", e.Payload["stage"], e.Payload["message"])
	})
}

type sagaFunc func(b *backend.Backend, cmd *cobra.Command, projectID, input string, async bool) (any, error)

func newSagaCommand(opts *rootOptions, use, short string, run sagaFunc) *cobra.Command {
	var async bool
	cmd := &cobra.Command{
		Use:   use + " <project-id> <text...>",
		Short: short,
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := opts.openBackend(cmd.Context(), progressPrinter(cmd))
			if err != nil {
				return err
			}
			defer b.Close()

			result, err := run(b, cmd, args[0], strings.Join(args[1:], " "), async)
			if err != nil {
				return err
			}
			return printResult(cmd, result)
		},
	}
	cmd.Flags().BoolVar(&async, "async", false, "Return the session id without waiting for the agent")
	return cmd
}

func printResult(cmd *cobra.Command, result any) error {
	out := cmd.OutOrStdout()
	if resp, ok := result.(*agent.AgentResponse); ok {
		if resp.DocumentContent != "" {
			fmt.Fprintln(out, resp.DocumentContent)
			return nil
		}
		fmt.Fprintln(out, resp.Message)
		return nil
	}
	return printJSON(out, result)
}

// NewRequirementCommand creates the requirement command.
func NewRequirementCommand(opts *rootOptions) *cobra.Command {
	cmd := newSagaCommand(opts, "requirement", "Create or update a project's requirements document",
		func(b *backend.Backend, cmd *cobra.Command, projectID, input string, async bool) (any, error) {
			return b.RunUpdateRequirement(cmd.Context(), projectID, input, async)
		})

	finish := &cobra.Command{
		Use:   "finish <project-id> <session-id>",
		Short: "Collect the reply of an async requirement update",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withBackend(cmd, func(b *backend.Backend) error {
				resp, err := b.Agent.FinishRequirement(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return printResult(cmd, resp)
			})
		},
	}
	cmd.AddCommand(finish)
	return cmd
}

// NewGenerateCommand creates the generate command.
func NewGenerateCommand(opts *rootOptions) *cobra.Command {
	cmd := newSagaCommand(opts, "generate", "Ask the agent to write code for a project",
		func(b *backend.Backend, cmd *cobra.Command, projectID, input string, async bool) (any, error) {
			return b.RunGenerateCode(cmd.Context(), projectID, input, async)
		})

	finish := &cobra.Command{
		Use:   "finish <project-id> <session-id>",
		Short: "Collect the summary of an async code generation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withBackend(cmd, func(b *backend.Backend) error {
				resp, err := b.Agent.FinishCodegen(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return printResult(cmd, resp)
			})
		},
	}
	cmd.AddCommand(finish)
	return cmd
}

// NewMessagesCommand creates the messages command.
func NewMessagesCommand(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "messages <session-id>",
		Short: "Print the messages of an agent session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withBackend(cmd, func(b *backend.Backend) error {
				messages, err := b.Agent.SessionMessages(cmd.Context(), args[0], limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, m := range messages {
					fmt.Fprintf(out, "--- %s (%s) ---\n%s\n", m.Info.Role, m.Info.ID, m.Text())
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of messages (0 = all)")
	return cmd
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent saga runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withBackend(cmd, func(b *backend.Backend) error {
				runs, err := b.Runs.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "STARTED\tKIND\tSTATUS\tPROJECT\tSESSION\tERROR")
				for _, r := range runs {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", r.StartedAt.Format("2006-01-02 15:04:05"),
						r.Kind, r.Status, r.ProjectID, r.SessionID, r.Error)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of runs to show")
	return cmd
}

// NewSearchCommand creates the search command.
func NewSearchCommand(opts *rootOptions) *cobra.Command {
	var k int
	cmd := &cobra.Command{
		Use:   "search <project-id> <query...>",
		Short: "Full-text search over a project's files",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withBackend(cmd, func(b *backend.Backend) error {
				hits, err := b.SearchProject(cmd.Context(), args[0], strings.Join(args[1:], " "), k)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(hits) == 0 {
					fmt.Fprintln(out, "No matches")
					return nil
				}
				for _, h := range hits {
					fmt.Fprintf(out, "%6.3f  %s\n", h.Score, h.Path)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&k, "limit", 10, "Maximum number of results")
	return cmd
}
