// Package cli implements the driftstore command line interface. Every
// command is a thin caller of the public driftstore API; no durability
// logic lives here.
package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/neuraldrift/driftstore/pkg/driftstore"
	"github.com/neuraldrift/driftstore/pkg/driftstore/config"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	ConfigPath string
	DataDir    string
	Verbose    bool
	Format     string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the driftstore CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "driftstore",
		Short: "Inspect and maintain a driftstore data directory",
		Long: `driftstore manages an atomic, crash-safe document store with
checkpointed sessions. The CLI inspects session state after a crash,
reports document integrity, and cleans up interrupted writes.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (yaml or json)")
	cmd.PersistentFlags().StringVar(&opts.DataDir, "data-dir", "", "data directory (overrides config)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewPreflightCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewSweepCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// resolveSettings builds settings from the config file and flag overrides.
func resolveSettings(opts *RootOptions) (config.Settings, error) {
	settings := config.Default()
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return config.Settings{}, err
		}
		settings = loaded
	}
	if opts.DataDir != "" {
		settings.DataDir = opts.DataDir
		if opts.ConfigPath == "" {
			settings.JournalPath = filepath.Join(opts.DataDir, "journal.db")
		}
	}
	return settings, nil
}

// openCore resolves settings and opens the wired core.
func openCore(opts *RootOptions) (*driftstore.Core, error) {
	settings, err := resolveSettings(opts)
	if err != nil {
		return nil, WrapExitError(ExitRestart, "resolve settings", err)
	}
	core, err := driftstore.Open(settings)
	if err != nil {
		return nil, WrapExitError(ExitRestart, "open store", err)
	}
	return core, nil
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
