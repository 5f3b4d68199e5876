package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/neuraldrift/driftstore/pkg/driftstore/preflight"
)

// PreflightResult is the JSON payload for the preflight command.
type PreflightResult struct {
	Verdict         string            `json:"verdict"`
	PlanID          string            `json:"plan_id,omitempty"`
	StepIndex       int               `json:"step_index,omitempty"`
	AffectedKeys    []string          `json:"affected_keys,omitempty"`
	KeyVerdicts     map[string]string `json:"key_verdicts,omitempty"`
	Staleness       string            `json:"staleness,omitempty"`
	Recommendations []string          `json:"recommendations,omitempty"`
}

// NewPreflightCommand creates the preflight command.
func NewPreflightCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "preflight",
		Short: "Inspect crash state and report a resume verdict",
		Long: `Inspect the data directory and report how the last session ended.

Exit codes: 0 RESUME (clean), 1 PARTIAL (interrupted work, replay the
current step), 2 RESTART (unrecoverable state, reinitialize affected keys).`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPreflight(rootOpts, cmd)
		},
	}
}

func runPreflight(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	core, err := openCore(opts)
	if err != nil {
		_ = formatter.Error(err.Error(), nil)
		return err
	}
	defer core.Close()

	report, err := core.Preflight.Inspect()
	if err != nil {
		_ = formatter.Error(err.Error(), nil)
		return WrapExitError(ExitRestart, "preflight", err)
	}

	result := PreflightResult{
		Verdict:         report.Verdict.String(),
		AffectedKeys:    report.AffectedKeys,
		Recommendations: report.Recommendations,
	}
	if report.Checkpoint != nil {
		result.PlanID = report.Checkpoint.PlanID
		result.StepIndex = report.Checkpoint.StepIndex
	}
	if report.Staleness > 0 {
		result.Staleness = report.Staleness.String()
	}
	if len(report.KeyVerdicts) > 0 {
		result.KeyVerdicts = make(map[string]string, len(report.KeyVerdicts))
		for key, v := range report.KeyVerdicts {
			result.KeyVerdicts[key] = v.String()
		}
	}

	if opts.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(formatter.Writer, renderPreflight(report))
	}

	switch report.Verdict {
	case preflight.Resume:
		return nil
	case preflight.Partial:
		return NewExitError(ExitPartial, "interrupted work detected")
	default:
		return NewExitError(ExitRestart, "unrecoverable state detected")
	}
}

func renderPreflight(report *preflight.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "verdict: %s\n", report.Verdict)
	if report.Checkpoint != nil {
		fmt.Fprintf(&b, "plan: %s (step %d)\n", report.Checkpoint.PlanID, report.Checkpoint.StepIndex)
	}
	if report.Staleness > 0 {
		fmt.Fprintf(&b, "checkpoint age: %s\n", report.Staleness.Round(0))
	}
	if len(report.AffectedKeys) > 0 {
		keys := append([]string(nil), report.AffectedKeys...)
		sort.Strings(keys)
		fmt.Fprintln(&b, "affected keys:")
		for _, key := range keys {
			fmt.Fprintf(&b, "  %s: %s\n", key, report.KeyVerdicts[key])
		}
	}
	for _, rec := range report.Recommendations {
		fmt.Fprintf(&b, "hint: %s\n", rec)
	}
	return strings.TrimRight(b.String(), "\n")
}
