package persist

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krisalay/chronocache/types"
)

func newTestSQLiteStore(t *testing.T, name string) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "snapshots.db"), name)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

//
// ================= SQLITE STORE =================
//

func TestSQLiteStoreSaveAndLoad(t *testing.T) {
	s := newTestSQLiteStore(t, "")
	assert.Equal(t, DefaultSnapshotName, s.Name())

	require.False(t, s.Exists())
	require.NoError(t, s.Save(samplePayload(t, "a", "b")))
	require.True(t, s.Exists())

	p, err := s.Load()
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, types.PayloadVersion, p.Version)
	assert.ElementsMatch(t, []string{"a", "b"}, payloadKeys(p))
}

func TestSQLiteStoreLoadColdStart(t *testing.T) {
	s := newTestSQLiteStore(t, "fresh")

	p, err := s.Load()
	require.NoError(t, err, "a missing snapshot is not a failure")
	assert.Nil(t, p)
}

func TestSQLiteStoreUpsert(t *testing.T) {
	s := newTestSQLiteStore(t, "main")

	require.NoError(t, s.Save(samplePayload(t, "old")))
	require.NoError(t, s.Save(samplePayload(t, "new")))

	p, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, payloadKeys(p))
}

func TestSQLiteStoreNamespaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")

	first, err := NewSQLiteStore(path, "sessions")
	require.NoError(t, err)
	require.NoError(t, first.Save(samplePayload(t, "s1")))
	require.NoError(t, first.Close())

	second, err := NewSQLiteStore(path, "profiles")
	require.NoError(t, err)
	require.NoError(t, second.Save(samplePayload(t, "p1")))

	p, err := second.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, payloadKeys(p))
	require.NoError(t, second.Close())

	reopened, err := NewSQLiteStore(path, "sessions")
	require.NoError(t, err)
	defer reopened.Close()

	p, err = reopened.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, payloadKeys(p), "names partition the same file")
}

func TestSQLiteStoreClear(t *testing.T) {
	s := newTestSQLiteStore(t, "main")

	require.NoError(t, s.Save(samplePayload(t, "a")))
	require.NoError(t, s.Clear())
	assert.False(t, s.Exists())

	p, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, p)

	assert.NoError(t, s.Clear(), "clearing an empty store is fine")
}

func TestSQLiteStoreRejectsNilPayload(t *testing.T) {
	s := newTestSQLiteStore(t, "main")
	assert.Error(t, s.Save(nil))
}

func TestSQLiteStoreRejectsEmptyPath(t *testing.T) {
	_, err := NewSQLiteStore("", "main")
	assert.Error(t, err)
}
