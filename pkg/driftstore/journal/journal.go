// Package journal records session and store transitions in SQLite so the
// history of a plan (begins, dirty marks, advances, verdicts) survives and
// can be inspected after the fact. The journal is advisory: it never
// participates in the durability protocol, and a missing or broken journal
// must not fail a save.
package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Event kinds recorded by the session manager and preflight inspector.
const (
	KindBegin     = "begin"
	KindResume    = "resume"
	KindDirty     = "dirty"
	KindConfirm   = "confirm"
	KindAdvance   = "advance"
	KindEnd       = "end"
	KindPreflight = "preflight"
	KindSweep     = "sweep"
)

// Event is one recorded transition.
type Event struct {
	ID        int64
	Kind      string
	PlanID    string
	StepIndex int
	Key       string
	Detail    string
	At        time.Time
}

// ErrJournalClosed indicates the journal has been closed.
var ErrJournalClosed = errors.New("journal closed")

// Journal persists events to SQLite.
// It is suitable for single-process production use.
type Journal struct {
	db     *sql.DB
	mu     sync.Mutex
	closed bool
}

// Open creates or opens a journal at path.
// The path should be a file path (e.g., "./journal.db") or ":memory:" for testing.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			plan_id TEXT NOT NULL,
			step_index INTEGER NOT NULL,
			doc_key TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT '',
			at TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create events table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_events_plan_id
		ON events(plan_id)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &Journal{db: db}, nil
}

// Record appends one event. A zero At is filled with the current time.
func (j *Journal) Record(ev Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return ErrJournalClosed
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	_, err := j.db.Exec(`
		INSERT INTO events (kind, plan_id, step_index, doc_key, detail, at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ev.Kind, ev.PlanID, ev.StepIndex, ev.Key, ev.Detail, at.Format(time.RFC3339Nano))

	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

// History returns all events for a plan in recording order.
// Returns an empty slice (not an error) if the plan has no events.
func (j *Journal) History(planID string) ([]Event, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil, ErrJournalClosed
	}

	rows, err := j.db.Query(`
		SELECT id, kind, plan_id, step_index, doc_key, detail, at
		FROM events
		WHERE plan_id = ?
		ORDER BY id
	`, planID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var at string
		if err := rows.Scan(&ev.ID, &ev.Kind, &ev.PlanID, &ev.StepIndex, &ev.Key, &ev.Detail, &at); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.At, _ = time.Parse(time.RFC3339Nano, at)
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// Close releases the database handle.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true
	return j.db.Close()
}
