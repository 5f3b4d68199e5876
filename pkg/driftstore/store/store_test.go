package store_test

import (
	"testing"

	"github.com/neuraldrift/driftstore/pkg/driftstore/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeFactory creates a store instance for testing.
type storeFactory func(t *testing.T) store.DocumentStore

// storeContractTest runs contract tests against any DocumentStore implementation.
func storeContractTest(t *testing.T, name string, factory storeFactory) {
	t.Run(name+"/Save_and_Load", func(t *testing.T) {
		st := factory(t)
		defer st.Close()

		data := []byte(`{"facts": ["water is wet"]}`)
		err := st.Save("facts", data)
		require.NoError(t, err)

		loaded, err := st.Load("facts")
		require.NoError(t, err)
		assert.Equal(t, data, loaded)
	})

	t.Run(name+"/Load_NotFound", func(t *testing.T) {
		st := factory(t)
		defer st.Close()

		_, err := st.Load("nonexistent")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run(name+"/Save_Overwrite", func(t *testing.T) {
		st := factory(t)
		defer st.Close()

		require.NoError(t, st.Save("facts", []byte(`{"n": 1}`)))
		require.NoError(t, st.Save("facts", []byte(`{"n": 2}`)))

		loaded, err := st.Load("facts")
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"n": 2}`), loaded)
	})

	t.Run(name+"/LoadFrom_Primary", func(t *testing.T) {
		st := factory(t)
		defer st.Close()

		require.NoError(t, st.Save("facts", []byte(`{"n": 1}`)))

		_, source, err := st.LoadFrom("facts")
		require.NoError(t, err)
		assert.Equal(t, store.SourcePrimary, source)
	})

	t.Run(name+"/Exists", func(t *testing.T) {
		st := factory(t)
		defer st.Close()

		assert.False(t, st.Exists("facts"))
		require.NoError(t, st.Save("facts", []byte(`{}`)))
		assert.True(t, st.Exists("facts"))
	})

	t.Run(name+"/Invalid_Keys", func(t *testing.T) {
		st := factory(t)
		defer st.Close()

		for _, key := range []string{"", ".", "..", "a/b", `a\b`, ".hidden"} {
			assert.ErrorIs(t, st.Save(key, []byte(`{}`)), store.ErrInvalidKey, "key %q", key)
			_, err := st.Load(key)
			assert.ErrorIs(t, err, store.ErrInvalidKey, "key %q", key)
			assert.False(t, st.Exists(key), "key %q", key)
		}
	})

	t.Run(name+"/Closed", func(t *testing.T) {
		st := factory(t)
		require.NoError(t, st.Close())

		assert.ErrorIs(t, st.Save("facts", []byte(`{}`)), store.ErrStoreClosed)
		_, err := st.Load("facts")
		assert.ErrorIs(t, err, store.ErrStoreClosed)
	})
}

func TestFileStoreContract(t *testing.T) {
	storeContractTest(t, "FileStore", func(t *testing.T) store.DocumentStore {
		st, err := store.NewFileStore(t.TempDir())
		require.NoError(t, err)
		return st
	})
}

func TestMemoryStoreContract(t *testing.T) {
	storeContractTest(t, "MemoryStore", func(t *testing.T) store.DocumentStore {
		return store.NewMemoryStore()
	})
}
