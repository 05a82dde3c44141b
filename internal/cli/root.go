package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/odm/internal/config"

	// Backends register their factories on import.
	_ "github.com/roach88/odm/internal/adapter/docstore"
	_ "github.com/roach88/odm/internal/adapter/memory"
	_ "github.com/roach88/odm/internal/adapter/sqlstore"
)

// RootOptions holds global flags and the configuration resolved from them.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string

	Config *config.Config
	Logger *slog.Logger
}

// NewRootCommand creates the root command for the odm CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "odm",
		Short: "odm - typed schemas and queries for document records",
		Long: `Declare models and embedded clusters, validate them, and compile
typed queries against them for the in-memory, document-store or SQLite
backends.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", config.DefaultFormat, "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (default odm.yaml)")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewKindsCommand(opts))

	return cmd
}

// load resolves the configuration and logger for a command.
func (o *RootOptions) load(cmd *cobra.Command) error {
	cfg, err := config.Load(o.ConfigFile, cmd.Flags())
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	lvl, err := cfg.Level()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	o.Config = cfg
	o.Format = cfg.Format
	o.Verbose = cfg.Verbose
	o.Logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: lvl}))
	return nil
}

// ensure fills in configuration for commands executed without the root
// command. Preset format and verbosity win over the configuration.
func (o *RootOptions) ensure(cmd *cobra.Command) error {
	if o.Config != nil {
		return nil
	}
	format, verbose := o.Format, o.Verbose
	if err := o.load(cmd); err != nil {
		return err
	}
	if format != "" {
		o.Format = format
	}
	o.Verbose = o.Verbose || verbose
	return nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}
