package benchmarks

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/neuraldrift/driftstore/pkg/driftstore/journal"
	"github.com/neuraldrift/driftstore/pkg/driftstore/session"
	"github.com/neuraldrift/driftstore/pkg/driftstore/store"
)

// LargeDocument represents a realistic document payload.
type LargeDocument struct {
	ID       string
	Values   []int
	Metadata map[string]string
	Nested   struct {
		A string
		B int
		C []string
	}
}

func createLargeDocument() []byte {
	doc := LargeDocument{
		ID:       "doc-1",
		Values:   make([]int, 256),
		Metadata: make(map[string]string),
	}
	for i := range doc.Values {
		doc.Values[i] = i
	}
	for i := 0; i < 32; i++ {
		doc.Metadata[fmt.Sprintf("key-%d", i)] = fmt.Sprintf("value-%d", i)
	}
	doc.Nested.A = "nested"
	doc.Nested.B = 42
	doc.Nested.C = []string{"a", "b", "c"}

	data, _ := json.Marshal(doc)
	return data
}

func docKey(i int) string {
	return fmt.Sprintf("doc-%d", i)
}

// BenchmarkMemoryStore_Save measures in-memory document save.
func BenchmarkMemoryStore_Save(b *testing.B) {
	st := store.NewMemoryStore()
	data := createLargeDocument()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = st.Save("doc-1", data)
	}
}

// BenchmarkMemoryStore_Load measures in-memory document load.
func BenchmarkMemoryStore_Load(b *testing.B) {
	st := store.NewMemoryStore()
	data := createLargeDocument()
	_ = st.Save("doc-1", data)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = st.Load("doc-1")
	}
}

// BenchmarkFileStore_Save measures the full atomic save protocol
// (temp write, fsync, backup demotion, rename, dir sync).
func BenchmarkFileStore_Save(b *testing.B) {
	st, err := store.NewFileStore(b.TempDir())
	if err != nil {
		b.Fatal(err)
	}
	defer st.Close()
	data := createLargeDocument()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = st.Save(docKey(i%100), data)
	}
}

// BenchmarkFileStore_Load measures reading the primary slot with the
// integrity gate applied.
func BenchmarkFileStore_Load(b *testing.B) {
	st, err := store.NewFileStore(b.TempDir())
	if err != nil {
		b.Fatal(err)
	}
	defer st.Close()
	data := createLargeDocument()
	_ = st.Save("doc-1", data)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = st.Load("doc-1")
	}
}

// BenchmarkSession_SaveDocument measures the checkpointed write path:
// dirty mark persist, document save, confirmation.
func BenchmarkSession_SaveDocument(b *testing.B) {
	st, err := store.NewFileStore(b.TempDir())
	if err != nil {
		b.Fatal(err)
	}
	defer st.Close()

	mgr := session.NewManager(st)
	if _, err := mgr.Begin("bench-plan"); err != nil {
		b.Fatal(err)
	}
	data := createLargeDocument()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = mgr.SaveDocument("doc-1", data)
	}
}

// BenchmarkSession_StepCycle measures a full step: save, advance.
func BenchmarkSession_StepCycle(b *testing.B) {
	mgr := session.NewManager(store.NewMemoryStore())
	if _, err := mgr.Begin("bench-plan"); err != nil {
		b.Fatal(err)
	}
	data := createLargeDocument()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = mgr.SaveDocument("doc-1", data)
		_ = mgr.AdvanceStep()
	}
}

// BenchmarkJournal_Record measures SQLite event appends.
func BenchmarkJournal_Record(b *testing.B) {
	j, err := journal.Open(":memory:")
	if err != nil {
		b.Fatal(err)
	}
	defer j.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = j.Record(journal.Event{
			Kind:      journal.KindDirty,
			PlanID:    "bench-plan",
			StepIndex: i,
			Key:       "doc-1",
		})
	}
}
