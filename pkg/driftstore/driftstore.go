// Package driftstore composes the durability core: an atomic document
// store with rolling backups, a checkpointed session manager, a startup
// preflight inspector, and an optional SQLite transition journal.
//
// Typical startup:
//
//	core, err := driftstore.Open(config.Default())
//	if err != nil {
//		// handle ErrNonAtomicFilesystem etc.
//	}
//	defer core.Close()
//
//	report, err := core.Preflight.Inspect()
//	switch report.Verdict {
//	case preflight.Resume:
//		// continue
//	case preflight.Partial:
//		// replay steps after report.Checkpoint.StepIndex
//	case preflight.Restart:
//		// reinitialize report.AffectedKeys
//	}
package driftstore

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/neuraldrift/driftstore/pkg/driftstore/config"
	"github.com/neuraldrift/driftstore/pkg/driftstore/journal"
	"github.com/neuraldrift/driftstore/pkg/driftstore/observability"
	"github.com/neuraldrift/driftstore/pkg/driftstore/preflight"
	"github.com/neuraldrift/driftstore/pkg/driftstore/session"
	"github.com/neuraldrift/driftstore/pkg/driftstore/store"
)

// Core bundles the wired components. One Core owns the data directory for
// the life of the process; it is not safe for multiple processes to share.
type Core struct {
	Store     *store.FileStore
	Session   *session.Manager
	Preflight *preflight.Inspector
	Journal   *journal.Journal
}

// options collects cross-component wiring.
type options struct {
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
}

// Option configures Open.
type Option func(*options)

// WithLogger sets the structured logger shared by all components.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics recorder. Default: no-op.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithSpans sets the span manager. Default: no-op.
func WithSpans(sm observability.SpanManager) Option {
	return func(o *options) {
		o.spans = sm
	}
}

// Open validates settings and wires the core. Fails with
// store.ErrNonAtomicFilesystem if the data directory cannot provide atomic
// same-directory renames.
func Open(settings config.Settings, opts ...Option) (*Core, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	o := options{
		metrics: observability.NoopMetrics{},
		spans:   observability.NoopSpanManager{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	// The store creates the data directory; it must exist before the
	// journal opens, since the default layout puts journal.db inside it.
	st, err := store.NewFileStore(settings.DataDir,
		store.WithFileMode(settings.FileMode),
		store.WithLogger(o.logger),
		store.WithMetrics(o.metrics),
		store.WithSpans(o.spans),
	)
	if err != nil {
		return nil, err
	}

	var j *journal.Journal
	if settings.JournalPath != "" {
		if err := os.MkdirAll(filepath.Dir(settings.JournalPath), 0o750); err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
		opened, err := journal.Open(settings.JournalPath)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		j = opened
	}

	mgr := session.NewManager(st,
		session.WithJournal(j),
		session.WithLogger(o.logger),
	)

	inspector := preflight.NewInspector(st,
		preflight.WithJournal(j),
		preflight.WithLogger(o.logger),
		preflight.WithSpans(o.spans),
		preflight.WithStaleness(settings.FreshWithin, settings.WarmWithin),
		preflight.WithSweep(settings.SweepOnOpen),
	)

	return &Core{
		Store:     st,
		Session:   mgr,
		Preflight: inspector,
		Journal:   j,
	}, nil
}

// Close releases the store and journal.
func (c *Core) Close() error {
	var errs []error
	if c.Store != nil {
		errs = append(errs, c.Store.Close())
	}
	if c.Journal != nil {
		errs = append(errs, c.Journal.Close())
	}
	return errors.Join(errs...)
}
