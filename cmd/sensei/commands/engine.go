package commands

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ChamsBouzaiene/sensei/internal/logging"
)

// NewEngineCommand creates the engine command used by the desktop shell.
func NewEngineCommand(opts *rootOptions) *cobra.Command {
	var stdio bool
	cmd := &cobra.Command{
		Use:   "engine",
		Short: "Serve the backend to the desktop shell",
		Long: `Serve the backend over the NDJSON stdio protocol: one JSON command per line on
stdin, one JSON event per line on stdout. Logs go to stderr.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !stdio {
				return errors.New("engine requires --stdio")
			}
			b, err := opts.openBackend(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer b.Close()

			logger := logging.L()
			logger.Info("starting engine stdio bridge", zap.String("projects_dir", b.Projects.Dir()))
			return newStdIORunner(os.Stdin, os.Stdout, b, logger).Run(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&stdio, "stdio", false, "Serve the engine over the NDJSON stdio protocol")
	return cmd
}
