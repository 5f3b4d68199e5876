package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// SweepResult is the JSON payload for the sweep command.
type SweepResult struct {
	Removed int `json:"removed"`
}

// NewSweepCommand creates the sweep command.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete orphaned temp files from interrupted saves",
		Long: `Delete stray temp files left by interrupted saves.

Temp files are inert: they never shadow a primary or backup. Sweeping
only reclaims space and quiets directory listings.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(rootOpts, cmd)
		},
	}
}

func runSweep(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	core, err := openCore(opts)
	if err != nil {
		_ = formatter.Error(err.Error(), nil)
		return err
	}
	defer core.Close()

	removed, err := core.Store.Sweep()
	if err != nil {
		_ = formatter.Error(err.Error(), nil)
		return WrapExitError(ExitRestart, "sweep", err)
	}

	if opts.Format == "json" {
		return formatter.Success(SweepResult{Removed: removed})
	}
	fmt.Fprintf(formatter.Writer, "removed %d temp file(s)\n", removed)
	return nil
}
