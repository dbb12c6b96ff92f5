package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/simloom/internal/config"
	"github.com/roach88/simloom/internal/synth"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	Database   string
	Workspace  string
	Model      string

	// Config is resolved before any subcommand runs: file, then
	// environment, then the flags above.
	Config config.Config

	// Synthesizer overrides the configured synthesis collaborator (for testing).
	Synthesizer synth.Synthesizer
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the simloom CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simloom",
		Short: "simloom - intent-driven simulation workbench",
		Long: `simloom grows an entity-component simulation from natural-language intents.

Each request is synthesized into component and system definitions, registered,
executed in a sandbox and, when a system faults, diagnosed and repaired.
Workspaces persist the registry and world between invocations.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.resolveConfig(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVar(&opts.ConfigPath, "config", "", "config file (.yaml, .yml or .toml)")
	flags.StringVar(&opts.Database, "db", "", "path to the SQLite workspace database")
	flags.StringVarP(&opts.Workspace, "workspace", "w", "", "workspace id")
	flags.StringVar(&opts.Model, "model", "", "synthesis model")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewApplyCommand(opts))
	cmd.AddCommand(NewDiagnoseCommand(opts))
	cmd.AddCommand(NewSnapshotCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewWorkspacesCommand(opts))

	return cmd
}

// resolveConfig loads the config file and environment, applies flag
// overrides and installs the process logger.
func (o *RootOptions) resolveConfig(cmd *cobra.Command) error {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.Database = o.Database
	}
	if flags.Changed("workspace") {
		cfg.Workspace = o.Workspace
	}
	if flags.Changed("model") {
		cfg.Model = o.Model
	}
	if o.Verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	}
	o.Config = cfg

	slog.SetDefault(cfg.Logger(cmd.ErrOrStderr()))
	return nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   o.Verbose,
	}
}
