package preflight_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/neuraldrift/driftstore/pkg/driftstore/journal"
	"github.com/neuraldrift/driftstore/pkg/driftstore/preflight"
	"github.com/neuraldrift/driftstore/pkg/driftstore/session"
	"github.com/neuraldrift/driftstore/pkg/driftstore/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFileStore(t *testing.T) (*store.FileStore, string) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.NewFileStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st, dir
}

func TestInspectFreshStart(t *testing.T) {
	st, _ := newFileStore(t)
	inspector := preflight.NewInspector(st)

	report, err := inspector.Inspect()
	require.NoError(t, err)
	assert.Equal(t, preflight.Resume, report.Verdict)
	assert.Nil(t, report.Checkpoint)
	assert.Empty(t, report.AffectedKeys)
}

func TestInspectResumeAfterCleanShutdown(t *testing.T) {
	st, _ := newFileStore(t)

	mgr := session.NewManager(st)
	_, err := mgr.Begin("plan-1")
	require.NoError(t, err)
	require.NoError(t, mgr.SaveDocument("facts", []byte(`{"n": 1}`)))
	require.NoError(t, mgr.AdvanceStep())
	require.NoError(t, mgr.End())

	report, err := preflight.NewInspector(st).Inspect()
	require.NoError(t, err)
	assert.Equal(t, preflight.Resume, report.Verdict)
	require.NotNil(t, report.Checkpoint)
	assert.True(t, report.Checkpoint.Closed)
	assert.Equal(t, 1, report.Checkpoint.StepIndex)
}

func TestInspectPartialAfterInterruptedWork(t *testing.T) {
	st, _ := newFileStore(t)

	mgr := session.NewManager(st)
	_, err := mgr.Begin("plan-1")
	require.NoError(t, err)
	require.NoError(t, mgr.SaveDocument("facts", []byte(`{"n": 1}`)))
	// Crash before AdvanceStep/End.

	report, err := preflight.NewInspector(st).Inspect()
	require.NoError(t, err)
	assert.Equal(t, preflight.Partial, report.Verdict)
	assert.Equal(t, []string{"facts"}, report.AffectedKeys)
	assert.Equal(t, preflight.Partial, report.KeyVerdicts["facts"])
	require.NotNil(t, report.Checkpoint)
	assert.Equal(t, 0, report.Checkpoint.StepIndex)
}

func TestInspectPartialDirtyKeyNeverSaved(t *testing.T) {
	st, _ := newFileStore(t)

	mgr := session.NewManager(st)
	_, err := mgr.Begin("plan-1")
	require.NoError(t, err)
	require.NoError(t, mgr.MarkDirty("facts"))
	// Crash between the dirty mark and the document save.

	report, err := preflight.NewInspector(st).Inspect()
	require.NoError(t, err)
	assert.Equal(t, preflight.Partial, report.Verdict)
	assert.Equal(t, []string{"facts"}, report.AffectedKeys)
	assert.Equal(t, preflight.Partial, report.KeyVerdicts["facts"])
}

func TestInspectPartialUnclosedNoDirtyKeys(t *testing.T) {
	st, _ := newFileStore(t)

	mgr := session.NewManager(st)
	_, err := mgr.Begin("plan-1")
	require.NoError(t, err)
	require.NoError(t, mgr.SaveDocument("facts", []byte(`{"n": 1}`)))
	require.NoError(t, mgr.AdvanceStep())
	// Crash between AdvanceStep and End: all work durable, session unclosed.

	report, err := preflight.NewInspector(st).Inspect()
	require.NoError(t, err)
	assert.Equal(t, preflight.Partial, report.Verdict)
	assert.Empty(t, report.AffectedKeys)
}

func TestInspectRestartCheckpointUnrecoverable(t *testing.T) {
	st, dir := newFileStore(t)

	mgr := session.NewManager(st)
	_, err := mgr.Begin("plan-1")
	require.NoError(t, err)
	// Two checkpoint writes so a backup slot exists, then corrupt both.
	require.NoError(t, mgr.MarkDirty("facts"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "checkpoint.primary"), []byte("junk"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "checkpoint.bak"), []byte("junk"), 0o600))

	report, err := preflight.NewInspector(st).Inspect()
	require.NoError(t, err)
	assert.Equal(t, preflight.Restart, report.Verdict)
	assert.Nil(t, report.Checkpoint)
	assert.NotEmpty(t, report.Recommendations)
}

func TestInspectRestartMalformedCheckpointEnvelope(t *testing.T) {
	st, _ := newFileStore(t)

	// Valid JSON that passes the shallow gate but is not a checkpoint.
	require.NoError(t, st.Save(session.DefaultKey, []byte(`{"version": 1}`)))

	report, err := preflight.NewInspector(st).Inspect()
	require.NoError(t, err)
	assert.Equal(t, preflight.Restart, report.Verdict)
	assert.Nil(t, report.Checkpoint)
}

func TestInspectMixedKeyVerdicts(t *testing.T) {
	st, dir := newFileStore(t)

	mgr := session.NewManager(st)
	_, err := mgr.Begin("plan-1")
	require.NoError(t, err)
	require.NoError(t, mgr.SaveDocument("facts", []byte(`{"n": 1}`)))
	require.NoError(t, mgr.SaveDocument("agents", []byte(`{"n": 2}`)))

	// "facts" loses both slots; "agents" stays intact.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "facts.primary"), []byte("junk"), 0o600))

	report, err := preflight.NewInspector(st).Inspect()
	require.NoError(t, err)
	assert.Equal(t, preflight.Restart, report.Verdict)
	assert.Equal(t, []string{"agents", "facts"}, report.AffectedKeys)
	assert.Equal(t, preflight.Restart, report.KeyVerdicts["facts"])
	assert.Equal(t, preflight.Partial, report.KeyVerdicts["agents"])
}

func TestInspectBackupRecoveredKeyStaysPartial(t *testing.T) {
	st, dir := newFileStore(t)

	mgr := session.NewManager(st)
	_, err := mgr.Begin("plan-1")
	require.NoError(t, err)
	require.NoError(t, mgr.SaveDocument("facts", []byte(`{"n": 1}`)))
	require.NoError(t, mgr.SaveDocument("facts", []byte(`{"n": 2}`)))

	// Primary corrupt, backup valid: recoverable, so PARTIAL not RESTART.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "facts.primary"), []byte("junk"), 0o600))

	report, err := preflight.NewInspector(st).Inspect()
	require.NoError(t, err)
	assert.Equal(t, preflight.Partial, report.Verdict)
	assert.Equal(t, preflight.Partial, report.KeyVerdicts["facts"])

	found := false
	for _, rec := range report.Recommendations {
		found = found || (strings.Contains(rec, "facts") && strings.Contains(rec, "backup"))
	}
	assert.True(t, found, "expected a repair recommendation for facts")
}

func TestInspectUnaddressableDirtyKeyScopedRestart(t *testing.T) {
	st, _ := newFileStore(t)

	// A checkpoint written by a foreign or older writer can carry a key
	// the store refuses to address. Inspect must still return a full
	// report, not an error.
	cp := session.New("plan-1")
	cp.DirtyKeys = []string{"a/b", "facts"}
	data, err := cp.Marshal()
	require.NoError(t, err)
	require.NoError(t, st.Save(session.DefaultKey, data))
	require.NoError(t, st.Save("facts", []byte(`{"n": 1}`)))

	report, err := preflight.NewInspector(st).Inspect()
	require.NoError(t, err)
	assert.Equal(t, preflight.Restart, report.Verdict)
	assert.Equal(t, []string{"a/b", "facts"}, report.AffectedKeys)
	assert.Equal(t, preflight.Restart, report.KeyVerdicts["a/b"])
	assert.Equal(t, preflight.Partial, report.KeyVerdicts["facts"])
}

func TestInspectSweepsTempFiles(t *testing.T) {
	st, dir := newFileStore(t)

	stray := filepath.Join(dir, "facts.tmp-deadbeef")
	require.NoError(t, os.WriteFile(stray, []byte("{"), 0o600))

	_, err := preflight.NewInspector(st, preflight.WithSweep(true)).Inspect()
	require.NoError(t, err)
	assert.NoFileExists(t, stray)
}

func TestInspectStalenessRecommendation(t *testing.T) {
	st, _ := newFileStore(t)

	cp := session.New("plan-1")
	cp.UpdatedAt = time.Now().UTC().Add(-13 * time.Hour)
	data, err := cp.Marshal()
	require.NoError(t, err)
	require.NoError(t, st.Save(session.DefaultKey, data))

	report, err := preflight.NewInspector(st).Inspect()
	require.NoError(t, err)
	assert.Equal(t, preflight.Partial, report.Verdict)
	assert.Greater(t, report.Staleness, 12*time.Hour)

	found := false
	for _, rec := range report.Recommendations {
		found = found || strings.Contains(rec, "stale")
	}
	assert.True(t, found, "expected a staleness recommendation")
}

func TestInspectIsRepeatable(t *testing.T) {
	st, _ := newFileStore(t)

	mgr := session.NewManager(st)
	_, err := mgr.Begin("plan-1")
	require.NoError(t, err)
	require.NoError(t, mgr.SaveDocument("facts", []byte(`{"n": 1}`)))

	inspector := preflight.NewInspector(st)
	first, err := inspector.Inspect()
	require.NoError(t, err)
	second, err := inspector.Inspect()
	require.NoError(t, err)

	assert.Equal(t, first.Verdict, second.Verdict)
	assert.Equal(t, first.AffectedKeys, second.AffectedKeys)
}

func TestInspectRecordsJournalVerdict(t *testing.T) {
	st, _ := newFileStore(t)
	j, err := journal.Open(":memory:")
	require.NoError(t, err)
	defer j.Close()

	mgr := session.NewManager(st)
	_, err = mgr.Begin("plan-1")
	require.NoError(t, err)
	require.NoError(t, mgr.SaveDocument("facts", []byte(`{"n": 1}`)))

	_, err = preflight.NewInspector(st, preflight.WithJournal(j)).Inspect()
	require.NoError(t, err)

	events, err := j.History("plan-1")
	require.NoError(t, err)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, journal.KindPreflight, last.Kind)
	assert.Equal(t, "PARTIAL", last.Detail)
}

func TestInspectWithMemoryStore(t *testing.T) {
	st := store.NewMemoryStore()

	mgr := session.NewManager(st)
	_, err := mgr.Begin("plan-1")
	require.NoError(t, err)
	require.NoError(t, mgr.SaveDocument("facts", []byte(`{"n": 1}`)))
	// Two bad writes leave both generations failing the integrity gate.
	require.NoError(t, st.Save("facts", []byte("{corrupt")))
	require.NoError(t, st.Save("facts", []byte("{corrupt")))

	report, err := preflight.NewInspector(st).Inspect()
	require.NoError(t, err)
	assert.Equal(t, preflight.Restart, report.Verdict)
	assert.Equal(t, preflight.Restart, report.KeyVerdicts["facts"])
}

func TestVerdictString(t *testing.T) {
	assert.Equal(t, "RESUME", preflight.Resume.String())
	assert.Equal(t, "PARTIAL", preflight.Partial.String())
	assert.Equal(t, "RESTART", preflight.Restart.String())
}
