package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ChamsBouzaiene/sensei/internal/backend"
	"github.com/ChamsBouzaiene/sensei/internal/config"
)

// NewConfigCommand creates the config command group.
func NewConfigCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the agent server settings",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the current settings (password redacted)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withBackend(cmd, func(b *backend.Backend) error {
				fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", b.Config.Path())
				return printJSON(cmd.OutOrStdout(), b.Config.Get().Redacted())
			})
		},
	}

	setServer := &cobra.Command{
		Use:   "set-server <url>",
		Short: "Set the agent server URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.updateConfig(cmd, func(s *config.Store) (config.Remote, error) {
				return s.UpdateServerURL(args[0])
			})
		},
	}

	setAuth := &cobra.Command{
		Use:   "set-auth <username> [password]",
		Short: "Set the Basic auth credentials; an empty password disables auth",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			password := ""
			if len(args) == 2 {
				password = args[1]
			}
			return opts.updateConfig(cmd, func(s *config.Store) (config.Remote, error) {
				return s.UpdateAuth(args[0], password)
			})
		},
	}

	setProvider := &cobra.Command{
		Use:   "set-provider <provider> [model]",
		Short: "Set the default provider and model for new sessions",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			model := ""
			if len(args) == 2 {
				model = args[1]
			}
			return opts.updateConfig(cmd, func(s *config.Store) (config.Remote, error) {
				return s.UpdateProvider(args[0], model)
			})
		},
	}

	cmd.AddCommand(show, setServer, setAuth, setProvider)
	return cmd
}

func (o *rootOptions) updateConfig(cmd *cobra.Command, fn func(*config.Store) (config.Remote, error)) error {
	return o.withBackend(cmd, func(b *backend.Backend) error {
		cfg, err := fn(b.Config)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), cfg.Redacted())
	})
}
