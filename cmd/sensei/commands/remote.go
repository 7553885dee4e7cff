package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ChamsBouzaiene/sensei/internal/backend"
)

// NewHealthCommand creates the health command.
func NewHealthCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the configured agent server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withBackend(cmd, func(b *backend.Backend) error {
				remote := b.Config.Get()
				h, err := b.TestConnection(cmd.Context(), nil)
				if err != nil {
					return fmt.Errorf("agent server %s is not reachable: %w", remote.ServerURL, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s healthy=%t version=%s\n", remote.ServerURL, h.Healthy, h.Version)
				return nil
			})
		},
	}
}

// NewProvidersCommand creates the providers command.
func NewProvidersCommand(opts *rootOptions) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "List the model providers of the agent server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withBackend(cmd, func(b *backend.Backend) error {
				providers, err := b.Providers(cmd.Context(), nil)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if jsonOut {
					return printJSON(out, providers)
				}
				if len(providers) == 0 {
					fmt.Fprintln(out, "No providers found")
					return nil
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tMODELS")
				for _, p := range providers {
					fmt.Fprintf(tw, "%s\t%s\t%d\n", p.ID, p.Name, p.Models.Len())
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print providers as JSON")
	return cmd
}
