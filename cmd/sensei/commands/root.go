// Package commands implements the sensei command line.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ChamsBouzaiene/sensei/internal/backend"
	"github.com/ChamsBouzaiene/sensei/internal/config"
	"github.com/ChamsBouzaiene/sensei/internal/logging"
	"github.com/ChamsBouzaiene/sensei/internal/notify"
)

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	projectsDir string
	configDir   string
	logLevel    string
	logFormat   string
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "sensei",
		Short:         "Code Sensei backend",
		Long:          `sensei manages Code Sensei projects and drives a remote coding agent server to write requirements and code.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := logging.Init(logging.Config{Level: opts.logLevel, Format: opts.logFormat})
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logging.Sync()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.projectsDir, "projects-dir", os.Getenv("SENSEI_PROJECTS_DIR"), "Directory holding projects (default: <user config dir>/CodeSensei/projects)")
	flags.StringVar(&opts.configDir, "config-dir", os.Getenv("SENSEI_CONFIG_DIR"), "Directory holding opencode-config.json (default: <user config dir>/CodeSensei)")
	flags.StringVar(&opts.logLevel, "log-level", envOr("SENSEI_LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	flags.StringVar(&opts.logFormat, "log-format", envOr("SENSEI_LOG_FORMAT", "console"), "Log format: console or json")

	rootCmd.AddCommand(
		NewEngineCommand(opts),
		NewServeCommand(opts),
		NewScanCommand(),
		NewHealthCommand(opts),
		NewProvidersCommand(opts),
		NewConfigCommand(opts),
		NewProjectsCommand(opts),
		NewRequirementCommand(opts),
		NewGenerateCommand(opts),
		NewMessagesCommand(opts),
		NewRunsCommand(opts),
		NewSearchCommand(opts),
	)

	return rootCmd
}

// Execute runs the root command.
func Execute() {
	// A missing .env is fine.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	rootCmd := NewRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// openBackend builds the backend for a command. The caller closes it.
func (o *rootOptions) openBackend(ctx context.Context, notifier notify.Notifier) (*backend.Backend, error) {
	return backend.New(ctx, backend.Options{
		ProjectsDir: o.projectsDir,
		ConfigDir:   o.configDir,
		Env:         config.OverridesFromEnv(),
		Notifier:    notifier,
	}, logging.L())
}

// withBackend runs fn with an open backend.
func (o *rootOptions) withBackend(cmd *cobra.Command, fn func(b *backend.Backend) error) error {
	b, err := o.openBackend(cmd.Context(), nil)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := b.Close(); cerr != nil {
			logging.L().Warn("failed to close backend", zap.Error(cerr))
		}
	}()
	return fn(b)
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
