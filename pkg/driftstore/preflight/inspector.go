// Package preflight classifies the prior run's on-disk state at process
// start: RESUME (clean), PARTIAL (interrupted after some documents saved),
// or RESTART (state unrecoverable even from backup). The inspector only
// reads; remediation belongs to the caller.
package preflight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/neuraldrift/driftstore/pkg/driftstore/journal"
	"github.com/neuraldrift/driftstore/pkg/driftstore/observability"
	"github.com/neuraldrift/driftstore/pkg/driftstore/session"
	"github.com/neuraldrift/driftstore/pkg/driftstore/store"
)

// Verdict classifies how the caller should treat prior state.
type Verdict int

const (
	// Resume means the last session closed cleanly or no prior session
	// exists; continue from the recovered checkpoint.
	Resume Verdict = iota

	// Partial means work was interrupted after some documents saved but
	// before the checkpoint advanced or closed; replay the steps after
	// the recovered step index for the affected keys.
	Partial

	// Restart means the checkpoint or a referenced document is
	// unrecoverable even from backup; the affected domain must be
	// reinitialized.
	Restart
)

// String returns the verdict name.
func (v Verdict) String() string {
	switch v {
	case Resume:
		return "RESUME"
	case Partial:
		return "PARTIAL"
	case Restart:
		return "RESTART"
	default:
		return "UNKNOWN"
	}
}

// Staleness grading thresholds, from the session freshness model: a
// checkpoint younger than FreshWithin is safe to act on directly, one
// younger than WarmWithin deserves review, anything older is stale.
const (
	DefaultFreshWithin = 2 * time.Hour
	DefaultWarmWithin  = 12 * time.Hour
)

// Report is the outcome of one inspection.
type Report struct {
	// Verdict is the most severe remediation needed anywhere.
	// KeyVerdicts scopes it: an unrecoverable document restarts only its
	// own key's domain while the rest stay PARTIAL.
	Verdict Verdict

	// AffectedKeys lists the dirty keys of the recovered checkpoint.
	AffectedKeys []string

	// KeyVerdicts maps each affected key to its own verdict.
	KeyVerdicts map[string]Verdict

	// Checkpoint is the recovered checkpoint, nil when none exists or it
	// was unrecoverable.
	Checkpoint *session.Checkpoint

	// Staleness is the age of the recovered checkpoint.
	Staleness time.Duration

	// Recommendations are human-readable remediation hints. Advisory
	// only; they never change the verdict.
	Recommendations []string
}

// Inspector reads the last checkpoint and the documents it references.
type Inspector struct {
	store         store.DocumentStore
	checkpointKey string
	logger        *slog.Logger
	spans         observability.SpanManager
	journal       *journal.Journal
	freshWithin   time.Duration
	warmWithin    time.Duration
	sweep         bool
}

// Option configures an Inspector.
type Option func(*Inspector)

// WithCheckpointKey sets the storage slot holding the checkpoint document.
// Default: session.DefaultKey.
func WithCheckpointKey(key string) Option {
	return func(i *Inspector) {
		if key != "" {
			i.checkpointKey = key
		}
	}
}

// WithLogger sets the structured logger. Default: no logging.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Inspector) {
		i.logger = logger
	}
}

// WithSpans sets the span manager. Default: no-op.
func WithSpans(sm observability.SpanManager) Option {
	return func(i *Inspector) {
		if sm != nil {
			i.spans = sm
		}
	}
}

// WithJournal records inspection verdicts to a journal.
func WithJournal(j *journal.Journal) Option {
	return func(i *Inspector) {
		i.journal = j
	}
}

// WithStaleness overrides the fresh/warm grading thresholds.
func WithStaleness(fresh, warm time.Duration) Option {
	return func(i *Inspector) {
		if fresh > 0 {
			i.freshWithin = fresh
		}
		if warm > 0 {
			i.warmWithin = warm
		}
	}
}

// WithSweep sweeps orphaned temp files before inspecting, when the store
// supports it. Temp files are inert garbage from interrupted saves.
func WithSweep(sweep bool) Option {
	return func(i *Inspector) {
		i.sweep = sweep
	}
}

// NewInspector creates an inspector over st.
func NewInspector(st store.DocumentStore, opts ...Option) *Inspector {
	i := &Inspector{
		store:         st,
		checkpointKey: session.DefaultKey,
		spans:         observability.NoopSpanManager{},
		freshWithin:   DefaultFreshWithin,
		warmWithin:    DefaultWarmWithin,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// sweeper is satisfied by stores with a startup cleanup pass.
type sweeper interface {
	Sweep() (int, error)
}

// Inspect classifies the current on-disk state. It is a pure function of
// that state (aside from the optional temp sweep): calling it twice with no
// intervening writes yields the same report. Intended to run once at
// process start.
func (i *Inspector) Inspect() (*Report, error) {
	ctx := context.Background()
	_, span := i.spans.StartInspectSpan(ctx)

	report, err := i.inspect()
	i.spans.EndSpanWithError(span, err)
	if err != nil {
		return nil, err
	}

	planID := ""
	if report.Checkpoint != nil {
		planID = report.Checkpoint.PlanID
	}
	i.record(journal.Event{
		Kind:   journal.KindPreflight,
		PlanID: planID,
		Detail: report.Verdict.String(),
	})
	observability.LogPreflight(i.logger, report.Verdict.String(), report.AffectedKeys)
	return report, nil
}

func (i *Inspector) inspect() (*Report, error) {
	if i.sweep {
		if sw, ok := i.store.(sweeper); ok {
			if removed, err := sw.Sweep(); err == nil && removed > 0 {
				i.record(journal.Event{Kind: journal.KindSweep, Detail: fmt.Sprintf("removed %d temp files", removed)})
			}
		}
	}

	report := &Report{
		AffectedKeys: []string{},
		KeyVerdicts:  make(map[string]Verdict),
	}

	data, _, err := i.store.LoadFrom(i.checkpointKey)
	switch {
	case errors.Is(err, store.ErrNotFound):
		// Fresh start is semantically a clean resume.
		report.Verdict = Resume
		report.Recommendations = append(report.Recommendations, "no prior session; starting clean")
		return report, nil
	case err != nil:
		var unrecoverable *store.UnrecoverableError
		if errors.As(err, &unrecoverable) {
			// An unrecoverable checkpoint dominates every document verdict.
			report.Verdict = Restart
			report.Recommendations = append(report.Recommendations,
				"checkpoint unrecoverable even from backup; reinitialize all document keys referenced by prior plans")
			return report, nil
		}
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	cp, err := session.Unmarshal(data)
	if err != nil {
		// Bytes passed the shallow gate but are not a checkpoint envelope.
		report.Verdict = Restart
		report.Recommendations = append(report.Recommendations,
			"checkpoint document malformed; reinitialize all document keys referenced by prior plans")
		return report, nil
	}

	report.Checkpoint = cp
	report.Staleness = time.Since(cp.UpdatedAt)
	i.gradeStaleness(report)

	if cp.Closed {
		report.Verdict = Resume
		return report, nil
	}

	// Unclean shutdown: classify each dirty key on its own.
	report.Verdict = Partial
	report.AffectedKeys = append(report.AffectedKeys, cp.DirtyKeys...)
	sort.Strings(report.AffectedKeys)

	for _, key := range cp.DirtyKeys {
		_, source, loadErr := i.store.LoadFrom(key)
		switch {
		case loadErr == nil:
			report.KeyVerdicts[key] = Partial
			if source == store.SourceBackup {
				report.Recommendations = append(report.Recommendations,
					fmt.Sprintf("%q recovered from backup; re-save to repair its primary", key))
			}
		case errors.Is(loadErr, store.ErrNotFound):
			// Marked dirty but never saved; the step replay re-derives it.
			report.KeyVerdicts[key] = Partial
		default:
			// A dirty key the store cannot even address (written by a
			// foreign or older writer) is as lost as a corrupt one; the
			// report must still carry a verdict for it.
			var unrecoverable *store.UnrecoverableError
			if !errors.As(loadErr, &unrecoverable) && !errors.Is(loadErr, store.ErrInvalidKey) {
				return nil, fmt.Errorf("load %q: %w", key, loadErr)
			}
			// Scoped to this key's domain; the rest stay PARTIAL.
			report.KeyVerdicts[key] = Restart
			report.Verdict = Restart
			report.Recommendations = append(report.Recommendations,
				fmt.Sprintf("%q unrecoverable; reinitialize its domain", key))
		}
	}

	if len(cp.DirtyKeys) == 0 {
		report.Recommendations = append(report.Recommendations,
			fmt.Sprintf("session for plan %q did not close; all steps through %d are durable, resume after reviewing", cp.PlanID, cp.StepIndex))
	} else {
		report.Recommendations = append(report.Recommendations,
			fmt.Sprintf("replay steps after %d for plan %q", cp.StepIndex, cp.PlanID))
	}
	return report, nil
}

func (i *Inspector) gradeStaleness(report *Report) {
	switch {
	case report.Staleness < i.freshWithin:
		// Fresh; nothing to say.
	case report.Staleness < i.warmWithin:
		report.Recommendations = append(report.Recommendations,
			fmt.Sprintf("checkpoint is %s old; review before continuing", report.Staleness.Round(time.Minute)))
	default:
		report.Recommendations = append(report.Recommendations,
			fmt.Sprintf("checkpoint is %s old; prior context is likely stale", report.Staleness.Round(time.Minute)))
	}
}

func (i *Inspector) record(ev journal.Event) {
	if i.journal == nil {
		return
	}
	if err := i.journal.Record(ev); err != nil && i.logger != nil {
		i.logger.Warn("journal record failed",
			slog.String("kind", ev.Kind),
			slog.String("error", err.Error()),
		)
	}
}
