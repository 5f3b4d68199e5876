package store

// Test-only mutators simulating slot damage on the in-memory store.

// Corrupt overwrites the key's primary with bytes that fail the integrity
// gate, leaving any backup intact.
func (m *MemoryStore) Corrupt(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.primary[key]; ok {
		m.primary[key] = []byte("{corrupt")
	}
}

// CorruptBackup overwrites the key's backup slot with invalid bytes.
func (m *MemoryStore) CorruptBackup(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.backup[key]; ok {
		m.backup[key] = []byte("{corrupt")
	}
}

// DropPrimary removes the key's primary slot, simulating a lost file.
func (m *MemoryStore) DropPrimary(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.primary, key)
}
