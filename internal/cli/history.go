package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/neuraldrift/driftstore/pkg/driftstore/journal"
)

// HistoryEvent is one journal row in the JSON payload.
type HistoryEvent struct {
	Kind      string    `json:"kind"`
	StepIndex int       `json:"step_index"`
	Key       string    `json:"key,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "history <plan-id>",
		Short:         "Dump the journal events recorded for a plan",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(rootOpts, args[0], cmd)
		},
	}
}

func runHistory(opts *RootOptions, planID string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	core, err := openCore(opts)
	if err != nil {
		_ = formatter.Error(err.Error(), nil)
		return err
	}
	defer core.Close()

	if core.Journal == nil {
		msg := "journal disabled (empty journal_path)"
		_ = formatter.Error(msg, nil)
		return NewExitError(ExitRestart, msg)
	}

	events, err := core.Journal.History(planID)
	if err != nil {
		_ = formatter.Error(err.Error(), nil)
		return WrapExitError(ExitRestart, "read journal", err)
	}

	if opts.Format == "json" {
		out := make([]HistoryEvent, 0, len(events))
		for _, ev := range events {
			out = append(out, HistoryEvent{
				Kind:      ev.Kind,
				StepIndex: ev.StepIndex,
				Key:       ev.Key,
				Detail:    ev.Detail,
				At:        ev.At,
			})
		}
		return formatter.Success(out)
	}

	if len(events) == 0 {
		fmt.Fprintf(formatter.Writer, "no events for plan %q\n", planID)
		return nil
	}
	fmt.Fprintln(formatter.Writer, renderHistory(events))
	return nil
}

func renderHistory(events []journal.Event) string {
	var b strings.Builder
	for _, ev := range events {
		fmt.Fprintf(&b, "%s  step %d  %-9s", ev.At.Format(time.RFC3339), ev.StepIndex, ev.Kind)
		if ev.Key != "" {
			fmt.Fprintf(&b, "  key=%s", ev.Key)
		}
		if ev.Detail != "" {
			fmt.Fprintf(&b, "  %s", ev.Detail)
		}
		fmt.Fprintln(&b)
	}
	return strings.TrimRight(b.String(), "\n")
}
