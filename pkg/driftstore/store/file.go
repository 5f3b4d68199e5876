package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/neuraldrift/driftstore/pkg/driftstore/integrity"
	"github.com/neuraldrift/driftstore/pkg/driftstore/observability"
)

// Slot suffixes within the data directory.
const (
	primarySuffix = ".primary"
	backupSuffix  = ".bak"
	tempInfix     = ".tmp-"
)

// FileStore is the durable DocumentStore backed by a single data directory.
// It is suitable for single-process production use; saves to different keys
// may run concurrently, saves to the same key serialize on a per-key lock.
type FileStore struct {
	dir     string
	mode    os.FileMode
	checker integrity.Checker
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager

	mu       sync.Mutex
	keyLocks map[string]*sync.Mutex
	closed   bool
}

// Compile-time interface check.
var _ DocumentStore = (*FileStore)(nil)

// FileOption configures a FileStore.
type FileOption func(*FileStore)

// WithChecker sets the integrity checker gating loads.
// Default: integrity.JSONChecker.
func WithChecker(c integrity.Checker) FileOption {
	return func(s *FileStore) {
		if c != nil {
			s.checker = c
		}
	}
}

// WithLogger sets the structured logger. Default: no logging.
func WithLogger(logger *slog.Logger) FileOption {
	return func(s *FileStore) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics recorder. Default: no-op.
func WithMetrics(m observability.MetricsRecorder) FileOption {
	return func(s *FileStore) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithSpans sets the span manager. Default: no-op.
func WithSpans(sm observability.SpanManager) FileOption {
	return func(s *FileStore) {
		if sm != nil {
			s.spans = sm
		}
	}
}

// WithFileMode sets the mode for primary and backup files. Default: 0600.
func WithFileMode(mode os.FileMode) FileOption {
	return func(s *FileStore) {
		if mode != 0 {
			s.mode = mode
		}
	}
}

// NewFileStore opens (creating if needed) a document store rooted at dir.
//
// The directory is probed for atomic same-directory rename support before
// any document is touched; if the filesystem cannot provide it the store
// refuses to open with ErrNonAtomicFilesystem.
func NewFileStore(dir string, opts ...FileOption) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("data directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	s := &FileStore{
		dir:      dir,
		mode:     0o600,
		checker:  integrity.JSONChecker{},
		metrics:  observability.NoopMetrics{},
		spans:    observability.NoopSpanManager{},
		keyLocks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := probeAtomicRename(dir); err != nil {
		return nil, err
	}
	return s, nil
}

// probeAtomicRename verifies that renaming over an existing file within dir
// succeeds. The rename-based save protocol is only crash-safe when the
// platform guarantees this.
func probeAtomicRename(dir string) error {
	src := filepath.Join(dir, ".rename-probe-"+uuid.NewString())
	dst := src + ".target"
	defer func() {
		_ = os.Remove(src)
		_ = os.Remove(dst)
	}()

	if err := os.WriteFile(src, []byte("probe"), 0o600); err != nil {
		return fmt.Errorf("probe write: %w", err)
	}
	if err := os.WriteFile(dst, []byte("target"), 0o600); err != nil {
		return fmt.Errorf("probe write: %w", err)
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrNonAtomicFilesystem, err)
	}
	return nil
}

// Dir returns the data directory.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) primaryPath(key string) string {
	return filepath.Join(s.dir, key+primarySuffix)
}

func (s *FileStore) backupPath(key string) string {
	return filepath.Join(s.dir, key+backupSuffix)
}

// PrimaryPath returns the on-disk path of the key's primary slot.
func (s *FileStore) PrimaryPath(key string) string {
	return s.primaryPath(key)
}

// BackupPath returns the on-disk path of the key's backup slot.
func (s *FileStore) BackupPath(key string) string {
	return s.backupPath(key)
}

// keyLock returns the mutex serializing operations on one key.
func (s *FileStore) keyLock(key string) (*sync.Mutex, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	lock, ok := s.keyLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.keyLocks[key] = lock
	}
	return lock, nil
}

// Save implements DocumentStore.
//
// Ordering: temp write + fsync, demote existing primary to the backup slot
// (durable before the install), rename temp into the primary slot. A crash
// at any point leaves either (old primary, old backup) or
// (new primary, old-as-backup); there is no window with no valid copy.
func (s *FileStore) Save(key string, data []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	lock, err := s.keyLock(key)
	if err != nil {
		return err
	}
	lock.Lock()
	defer lock.Unlock()

	ctx := context.Background()
	_, span := s.spans.StartSaveSpan(ctx, key)
	start := time.Now()

	err = s.saveLocked(key, data)
	s.spans.EndSpanWithError(span, err)
	s.metrics.RecordSave(ctx, key, time.Since(start), int64(len(data)), err)
	if err != nil {
		observability.LogSaveError(s.logger, key, err)
		return err
	}
	observability.LogSave(s.logger, key, len(data), float64(time.Since(start).Milliseconds()))
	return nil
}

func (s *FileStore) saveLocked(key string, data []byte) error {
	primary := s.primaryPath(key)
	backup := s.backupPath(key)
	tempPath := filepath.Join(s.dir, key+tempInfix+uuid.NewString())

	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempPath)
		}
	}()

	// #nosec G304 -- path is derived from a validated key inside the data dir.
	tempFile, err := os.OpenFile(tempPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, s.mode)
	if err != nil {
		return &IOError{Op: "create temp", Key: key, Err: err}
	}
	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return &IOError{Op: "write temp", Key: key, Err: err}
	}
	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		return &IOError{Op: "sync temp", Key: key, Err: err}
	}
	if err := tempFile.Close(); err != nil {
		return &IOError{Op: "close temp", Key: key, Err: err}
	}

	// Demote the current primary before installing the new one. The
	// backup must be durable first so a crash mid-save never leaves the
	// key without a valid copy.
	if _, err := os.Stat(primary); err == nil {
		if err := os.Rename(primary, backup); err != nil {
			return &IOError{Op: "demote primary", Key: key, Err: err}
		}
		if err := syncDir(s.dir); err != nil {
			return &IOError{Op: "sync backup", Key: key, Err: err}
		}
	} else if !os.IsNotExist(err) {
		return &IOError{Op: "stat primary", Key: key, Err: err}
	}

	if err := os.Rename(tempPath, primary); err != nil {
		return &IOError{Op: "install primary", Key: key, Err: err}
	}
	cleanup = false
	if err := syncDir(s.dir); err != nil {
		return &IOError{Op: "sync primary", Key: key, Err: err}
	}
	return nil
}

// Load implements DocumentStore.
func (s *FileStore) Load(key string) ([]byte, error) {
	data, _, err := s.LoadFrom(key)
	return data, err
}

// LoadFrom implements DocumentStore.
//
// A successful backup fallback does not repair the primary; reads are
// side-effect free. Repair is an explicit Save by the caller after
// inspecting the recovered value.
func (s *FileStore) LoadFrom(key string) ([]byte, Source, error) {
	if err := ValidateKey(key); err != nil {
		return nil, SourcePrimary, err
	}
	lock, err := s.keyLock(key)
	if err != nil {
		return nil, SourcePrimary, err
	}
	lock.Lock()
	defer lock.Unlock()

	ctx := context.Background()
	primary := s.primaryPath(key)
	backup := s.backupPath(key)

	primaryData, primaryErr := os.ReadFile(primary)
	switch {
	case primaryErr == nil:
		if s.checker.CheckBytes(primaryData) == integrity.OK {
			return primaryData, SourcePrimary, nil
		}
		observability.LogCorruption(s.logger, key, primary)
		s.metrics.RecordCorruption(ctx, key)
	case !os.IsNotExist(primaryErr):
		return nil, SourcePrimary, &IOError{Op: "read primary", Key: key, Err: primaryErr}
	}

	backupData, backupErr := os.ReadFile(backup)
	switch {
	case backupErr == nil:
		if s.checker.CheckBytes(backupData) == integrity.OK {
			observability.LogBackupRecovery(s.logger, key)
			s.metrics.RecordRecovery(ctx, key)
			return backupData, SourceBackup, nil
		}
		observability.LogCorruption(s.logger, key, backup)
		s.metrics.RecordCorruption(ctx, key)
	case !os.IsNotExist(backupErr):
		return nil, SourceBackup, &IOError{Op: "read backup", Key: key, Err: backupErr}
	}

	if os.IsNotExist(primaryErr) && os.IsNotExist(backupErr) {
		return nil, SourcePrimary, ErrNotFound
	}
	observability.LogUnrecoverable(s.logger, key)
	return nil, SourcePrimary, &UnrecoverableError{Key: key}
}

// Exists implements DocumentStore. A key whose primary was lost but whose
// backup survives is still loadable, so it still exists.
func (s *FileStore) Exists(key string) bool {
	if ValidateKey(key) != nil {
		return false
	}
	if _, err := os.Stat(s.primaryPath(key)); err == nil {
		return true
	}
	if _, err := os.Stat(s.backupPath(key)); err == nil {
		return true
	}
	return false
}

// Sweep deletes orphaned temp files left behind by an interrupted save.
// They are inert garbage, never read by any load path. Intended for a
// startup-only cleanup pass; returns the number of files removed.
//
// Each removal holds the per-key lock derived from the temp file's name,
// so a temp file belonging to an in-flight save is never pulled out from
// under it.
func (s *FileStore) Sweep() (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrStoreClosed
	}
	s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read data directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		idx := strings.Index(name, tempInfix)
		if entry.IsDir() || idx < 0 {
			continue
		}
		lock, err := s.keyLock(name[:idx])
		if err != nil {
			return removed, err
		}
		lock.Lock()
		if err := os.Remove(filepath.Join(s.dir, name)); err == nil {
			removed++
		}
		lock.Unlock()
	}
	observability.LogSweep(s.logger, removed)
	s.metrics.RecordSweep(context.Background(), removed)
	return removed, nil
}

// Close implements DocumentStore.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// syncDir flushes directory metadata so completed renames survive a crash.
func syncDir(dir string) error {
	// #nosec G304 -- dir is the store's own data directory.
	handle, err := os.Open(dir)
	if err != nil {
		return err
	}
	syncErr := handle.Sync()
	closeErr := handle.Close()
	if syncErr != nil {
		return syncErr
	}
	return closeErr
}
