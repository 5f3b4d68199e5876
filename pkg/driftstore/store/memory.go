package store

import (
	"sync"

	"github.com/neuraldrift/driftstore/pkg/driftstore/integrity"
)

// MemoryStore is an in-memory DocumentStore for testing and embedding.
// It keeps one backup generation per key, mirroring the file layout.
// Data is lost when the process exits.
type MemoryStore struct {
	mu      sync.RWMutex
	checker integrity.Checker
	primary map[string][]byte
	backup  map[string][]byte
	closed  bool
}

// Compile-time interface check.
var _ DocumentStore = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory document store gated by the
// default JSON integrity checker.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		checker: integrity.JSONChecker{},
		primary: make(map[string][]byte),
		backup:  make(map[string][]byte),
	}
}

// Save implements DocumentStore.
func (m *MemoryStore) Save(key string, data []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	// Copy data to avoid retaining caller's slice
	stored := make([]byte, len(data))
	copy(stored, data)

	if prev, ok := m.primary[key]; ok {
		m.backup[key] = prev
	}
	m.primary[key] = stored
	return nil
}

// Load implements DocumentStore.
func (m *MemoryStore) Load(key string) ([]byte, error) {
	data, _, err := m.LoadFrom(key)
	return data, err
}

// LoadFrom implements DocumentStore.
func (m *MemoryStore) LoadFrom(key string) ([]byte, Source, error) {
	if err := ValidateKey(key); err != nil {
		return nil, SourcePrimary, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, SourcePrimary, ErrStoreClosed
	}

	primaryData, havePrimary := m.primary[key]
	if havePrimary && m.checker.CheckBytes(primaryData) == integrity.OK {
		out := make([]byte, len(primaryData))
		copy(out, primaryData)
		return out, SourcePrimary, nil
	}

	backupData, haveBackup := m.backup[key]
	if haveBackup && m.checker.CheckBytes(backupData) == integrity.OK {
		out := make([]byte, len(backupData))
		copy(out, backupData)
		return out, SourceBackup, nil
	}

	if !havePrimary && !haveBackup {
		return nil, SourcePrimary, ErrNotFound
	}
	return nil, SourcePrimary, &UnrecoverableError{Key: key}
}

// Exists implements DocumentStore.
func (m *MemoryStore) Exists(key string) bool {
	if ValidateKey(key) != nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return false
	}
	_, havePrimary := m.primary[key]
	_, haveBackup := m.backup[key]
	return havePrimary || haveBackup
}

// Close implements DocumentStore.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
