package commands

import (
	"github.com/spf13/cobra"

	"github.com/ChamsBouzaiene/sensei/internal/logging"
	"github.com/ChamsBouzaiene/sensei/internal/server"
)

// NewServeCommand creates the serve command.
func NewServeCommand(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the local HTTP API and notification websocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := opts.openBackend(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer b.Close()
			return server.New(b, logging.L()).Start(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:7420", "Listen address")
	return cmd
}
