package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/neuraldrift/driftstore/pkg/driftstore/integrity"
	"github.com/neuraldrift/driftstore/pkg/driftstore/session"
	"github.com/neuraldrift/driftstore/pkg/driftstore/store"
)

// StatusResult is the JSON payload for the status command.
type StatusResult struct {
	PlanID       string            `json:"plan_id,omitempty"`
	StepIndex    int               `json:"step_index"`
	Closed       bool              `json:"closed"`
	DirtyKeys    []string          `json:"dirty_keys,omitempty"`
	StartedAt    time.Time         `json:"started_at,omitempty"`
	UpdatedAt    time.Time         `json:"updated_at,omitempty"`
	Source       string            `json:"checkpoint_source,omitempty"`
	Fingerprints map[string]string `json:"fingerprints,omitempty"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Show the persisted checkpoint and document fingerprints",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	core, err := openCore(opts)
	if err != nil {
		_ = formatter.Error(err.Error(), nil)
		return err
	}
	defer core.Close()

	data, source, err := core.Store.LoadFrom(session.DefaultKey)
	if errors.Is(err, store.ErrNotFound) {
		return formatter.Success("no checkpoint")
	}
	if err != nil {
		_ = formatter.Error(err.Error(), nil)
		return WrapExitError(ExitRestart, "load checkpoint", err)
	}

	cp, err := session.Unmarshal(data)
	if err != nil {
		_ = formatter.Error(err.Error(), nil)
		return WrapExitError(ExitRestart, "decode checkpoint", err)
	}

	result := StatusResult{
		PlanID:       cp.PlanID,
		StepIndex:    cp.StepIndex,
		Closed:       cp.Closed,
		DirtyKeys:    cp.DirtyKeys,
		StartedAt:    cp.StartedAt,
		UpdatedAt:    cp.UpdatedAt,
		Source:       source.String(),
		Fingerprints: fingerprints(core.Store, cp),
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintln(formatter.Writer, renderStatus(result))
	return nil
}

// fingerprints hashes every on-disk slot the checkpoint refers to, so two
// status runs can be compared without diffing documents.
func fingerprints(st *store.FileStore, cp *session.Checkpoint) map[string]string {
	out := make(map[string]string)
	keys := append([]string{session.DefaultKey}, cp.DirtyKeys...)
	for _, key := range keys {
		for _, path := range []string{st.PrimaryPath(key), st.BackupPath(key)} {
			if _, err := os.Stat(path); err != nil {
				continue
			}
			sum, err := integrity.HashFile(path)
			if err != nil {
				continue
			}
			out[path] = sum
		}
	}
	return out
}

func renderStatus(r StatusResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "plan: %s\n", r.PlanID)
	fmt.Fprintf(&b, "step: %d\n", r.StepIndex)
	fmt.Fprintf(&b, "closed: %t\n", r.Closed)
	fmt.Fprintf(&b, "checkpoint source: %s\n", r.Source)
	if !r.UpdatedAt.IsZero() {
		fmt.Fprintf(&b, "updated: %s\n", r.UpdatedAt.Format(time.RFC3339))
	}
	if len(r.DirtyKeys) > 0 {
		fmt.Fprintf(&b, "dirty keys: %s\n", strings.Join(r.DirtyKeys, ", "))
	}
	if len(r.Fingerprints) > 0 {
		fmt.Fprintln(&b, "fingerprints:")
		for path, sum := range r.Fingerprints {
			fmt.Fprintf(&b, "  %s %s\n", sum, path)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
