package session

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/neuraldrift/driftstore/pkg/driftstore/journal"
	"github.com/neuraldrift/driftstore/pkg/driftstore/observability"
	"github.com/neuraldrift/driftstore/pkg/driftstore/store"
)

// Manager owns checkpoint content and transition timing for one process.
// All lifecycle methods serialize on one mutex; document saves for other
// keys may proceed concurrently through the store.
type Manager struct {
	mu        sync.Mutex
	store     store.DocumentStore
	key       string
	journal   *journal.Journal
	logger    *slog.Logger
	current   *Checkpoint
	confirmed map[string]bool // dirty key -> save confirmed durable since marked
}

// Option configures a Manager.
type Option func(*Manager)

// WithKey sets the storage slot for the checkpoint document.
// Default: DefaultKey.
func WithKey(key string) Option {
	return func(m *Manager) {
		if key != "" {
			m.key = key
		}
	}
}

// WithJournal attaches a transition journal. Journal failures are logged
// and never fail a lifecycle operation.
func WithJournal(j *journal.Journal) Option {
	return func(m *Manager) {
		m.journal = j
	}
}

// WithLogger sets the structured logger. Default: no logging.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a session manager persisting through st.
func NewManager(st store.DocumentStore, opts ...Option) *Manager {
	m := &Manager{
		store: st,
		key:   DefaultKey,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Key returns the storage slot holding the checkpoint document.
func (m *Manager) Key() string {
	return m.key
}

// Begin opens a checkpoint for planID at step zero and durably saves it.
//
// Begin consults the on-disk checkpoint, not process memory: if an unclosed
// checkpoint exists for any plan it fails with AlreadyOpenError and the
// caller must run preflight first. A corrupt or unrecoverable checkpoint
// also fails Begin; only preflight may decide what to do with it.
func (m *Manager) Begin(planID string) (*Checkpoint, error) {
	if planID == "" {
		return nil, fmt.Errorf("plan id must not be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && !m.current.Closed {
		return nil, &AlreadyOpenError{PlanID: m.current.PlanID}
	}

	data, _, err := m.store.LoadFrom(m.key)
	switch {
	case err == nil:
		prior, unmarshalErr := Unmarshal(data)
		if unmarshalErr != nil {
			return nil, fmt.Errorf("existing checkpoint unreadable, run preflight: %w", unmarshalErr)
		}
		if !prior.Closed {
			return nil, &AlreadyOpenError{PlanID: prior.PlanID}
		}
	case errors.Is(err, store.ErrNotFound):
		// First session ever; nothing to resolve.
	default:
		return nil, fmt.Errorf("existing checkpoint unrecoverable, run preflight: %w", err)
	}

	cp := New(planID)
	if err := m.persistLocked(cp); err != nil {
		return nil, err
	}
	m.current = cp
	m.confirmed = make(map[string]bool)

	m.record(journal.Event{Kind: journal.KindBegin, PlanID: planID})
	observability.LogSessionEvent(m.logger, "begin", planID, 0)
	return cp.clone(), nil
}

// Resume adopts the unclosed on-disk checkpoint after preflight reported
// RESUME or PARTIAL. Every dirty key starts unconfirmed: the caller must
// re-save (or repair) each one before the step can advance, which is the
// replay semantic PARTIAL asks for.
func (m *Manager) Resume() (*Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && !m.current.Closed {
		return nil, &AlreadyOpenError{PlanID: m.current.PlanID}
	}

	data, _, err := m.store.LoadFrom(m.key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("no checkpoint to resume: %w", ErrNoActiveSession)
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint unrecoverable, run preflight: %w", err)
	}
	cp, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("checkpoint unreadable, run preflight: %w", err)
	}
	if cp.Closed {
		return nil, fmt.Errorf("last session closed cleanly, call Begin: %w", ErrNoActiveSession)
	}

	m.current = cp
	m.confirmed = make(map[string]bool, len(cp.DirtyKeys))
	for _, key := range cp.DirtyKeys {
		m.confirmed[key] = false
	}

	m.record(journal.Event{Kind: journal.KindResume, PlanID: cp.PlanID, StepIndex: cp.StepIndex})
	observability.LogSessionEvent(m.logger, "resume", cp.PlanID, cp.StepIndex)
	return cp.clone(), nil
}

// MarkDirty records that key is about to be written and durably saves the
// checkpoint before the document save begins. A crash between the mark and
// the save is observably PARTIAL on the next boot, never silently clean.
func (m *Manager) MarkDirty(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireOpenLocked(); err != nil {
		return err
	}
	// A dirty mark persists the key name into the checkpoint; a key the
	// store would refuse must never get that far.
	if err := store.ValidateKey(key); err != nil {
		return err
	}
	if key == m.key {
		return fmt.Errorf("key %q is reserved for the checkpoint document", key)
	}
	cp := m.current
	if !slices.Contains(cp.DirtyKeys, key) {
		cp.DirtyKeys = append(cp.DirtyKeys, key)
		sort.Strings(cp.DirtyKeys)
	}
	// Re-marking resets confirmation: the key is dirty again until the
	// next confirmed save.
	m.confirmed[key] = false
	cp.UpdatedAt = time.Now().UTC()

	if err := m.persistLocked(cp); err != nil {
		return err
	}
	m.record(journal.Event{Kind: journal.KindDirty, PlanID: cp.PlanID, StepIndex: cp.StepIndex, Key: key})
	return nil
}

// ConfirmSaved records that key's document save completed durably.
// Confirmation is process-local; the durable truth is the document itself.
func (m *Manager) ConfirmSaved(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireOpenLocked(); err != nil {
		return err
	}
	if _, dirty := m.confirmed[key]; !dirty {
		return fmt.Errorf("key %q is not marked dirty", key)
	}
	m.confirmed[key] = true
	m.record(journal.Event{Kind: journal.KindConfirm, PlanID: m.current.PlanID, StepIndex: m.current.StepIndex, Key: key})
	return nil
}

// SaveDocument is the common write path: mark key dirty, save the document
// through the store, confirm. The checkpoint save is ordered before the
// document save; the document save happens outside the manager lock so
// unrelated keys can proceed concurrently.
func (m *Manager) SaveDocument(key string, data []byte) error {
	if err := m.MarkDirty(key); err != nil {
		return err
	}
	if err := m.store.Save(key, data); err != nil {
		return err
	}
	return m.ConfirmSaved(key)
}

// AdvanceStep commits the current step: callable only when every dirty key
// has a confirmed-durable save since it was marked. Clears the dirty set,
// increments the step index, and durably saves the checkpoint.
func (m *Manager) AdvanceStep() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireOpenLocked(); err != nil {
		return err
	}
	if unconfirmed := m.unconfirmedLocked(); len(unconfirmed) > 0 {
		return &UnconfirmedKeysError{Keys: unconfirmed}
	}

	cp := m.current
	cp.DirtyKeys = []string{}
	cp.StepIndex++
	cp.UpdatedAt = time.Now().UTC()
	m.confirmed = make(map[string]bool)

	if err := m.persistLocked(cp); err != nil {
		return err
	}
	m.record(journal.Event{Kind: journal.KindAdvance, PlanID: cp.PlanID, StepIndex: cp.StepIndex})
	observability.LogSessionEvent(m.logger, "advance", cp.PlanID, cp.StepIndex)
	return nil
}

// End closes the session: Closed=true written as the last durable act of a
// clean shutdown. Refuses while any dirty key lacks a confirmed save, since
// a closed checkpoint reads as RESUME on the next boot.
func (m *Manager) End() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireOpenLocked(); err != nil {
		return err
	}
	if unconfirmed := m.unconfirmedLocked(); len(unconfirmed) > 0 {
		return &UnconfirmedKeysError{Keys: unconfirmed}
	}

	cp := m.current
	cp.Closed = true
	cp.UpdatedAt = time.Now().UTC()

	if err := m.persistLocked(cp); err != nil {
		cp.Closed = false
		return err
	}
	m.record(journal.Event{Kind: journal.KindEnd, PlanID: cp.PlanID, StepIndex: cp.StepIndex})
	observability.LogSessionEvent(m.logger, "end", cp.PlanID, cp.StepIndex)
	m.current = nil
	m.confirmed = nil
	return nil
}

// Current returns a copy of the open checkpoint, or nil if none is open.
func (m *Manager) Current() *Checkpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	return m.current.clone()
}

func (m *Manager) requireOpenLocked() error {
	if m.current == nil || m.current.Closed {
		return ErrNoActiveSession
	}
	return nil
}

func (m *Manager) unconfirmedLocked() []string {
	var keys []string
	for key, ok := range m.confirmed {
		if !ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

func (m *Manager) persistLocked(cp *Checkpoint) error {
	data, err := cp.Marshal()
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	return m.store.Save(m.key, data)
}

func (m *Manager) record(ev journal.Event) {
	if m.journal == nil {
		return
	}
	if err := m.journal.Record(ev); err != nil && m.logger != nil {
		m.logger.Warn("journal record failed",
			slog.String("kind", ev.Kind),
			slog.String("error", err.Error()),
		)
	}
}
