package persist

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open("sqlite", filepath.Join(t.TempDir(), "meta.db"))
	require.NoError(t, err)
	return NewStore(db, zap.NewNop())
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("oracle", "dsn")
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestCreateDocumentDedupBySha(t *testing.T) {
	store := newTestStore(t)

	first, err := store.CreateDocument("abc123", "paper.pdf", 1024)
	require.NoError(t, err)
	second, err := store.CreateDocument("abc123", "renamed.pdf", 1024)
	require.NoError(t, err)

	assert.Equal(t, first.DocID, second.DocID, "same content resolves to the same document")
	assert.Equal(t, "paper.pdf", second.Filename)

	other, err := store.CreateDocument("def456", "other.pdf", 10)
	require.NoError(t, err)
	assert.NotEqual(t, first.DocID, other.DocID)
}

func TestRunLifecycle(t *testing.T) {
	store := newTestStore(t)
	doc, err := store.CreateDocument("abc", "p.pdf", 1)
	require.NoError(t, err)

	run, err := store.CreateRun(doc.DocID, `{"rrf_k":60}`, "opthash", "v1", "rob2-v1")
	require.NoError(t, err)
	assert.Equal(t, "running", run.Status)
	assert.Nil(t, run.CompletedAt)

	require.NoError(t, store.CompleteRun(run.RunID, "completed", 1500, ""))

	loaded, err := store.GetRun(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, "completed", loaded.Status)
	require.NotNil(t, loaded.CompletedAt)
	require.NotNil(t, loaded.RuntimeMS)
	assert.Equal(t, int64(1500), *loaded.RuntimeMS)

	// 终结后的运行不可变更。
	err = store.CompleteRun(run.RunID, "failed", 1, "")
	assert.ErrorContains(t, err, "already completed")
}

func TestArtifactDedupAndLink(t *testing.T) {
	store := newTestStore(t)
	run, err := store.CreateRun("", "", "", "", "")
	require.NoError(t, err)

	first, err := store.InsertArtifact("hash1", "pipeline_result", "/tmp/a.json", 10)
	require.NoError(t, err)
	dup, err := store.InsertArtifact("hash1", "pipeline_result", "/tmp/b.json", 10)
	require.NoError(t, err)
	assert.Equal(t, first.ArtifactID, dup.ArtifactID, "content addressed")

	require.NoError(t, store.LinkArtifact(run.RunID, first.ArtifactID, "pipeline_result"))
}

func TestCacheEntryCRUD(t *testing.T) {
	store := newTestStore(t)

	missing, err := store.GetCacheEntry(StageBM25Index, "nokey")
	require.NoError(t, err)
	assert.Nil(t, missing)

	entry := CacheEntryRecord{
		Stage:       StageBM25Index,
		CacheKey:    "key1",
		ContentHash: "h",
		Path:        "/tmp/key1.json",
		CreatedAt:   time.Now().UTC().Add(-48 * time.Hour),
	}
	require.NoError(t, store.PutCacheEntry(entry))
	require.NoError(t, store.PutCacheEntry(entry), "overwrite is idempotent")

	got, err := store.GetCacheEntry(StageBM25Index, "key1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.LastAccessed)

	require.NoError(t, store.TouchCacheEntry(StageBM25Index, "key1"))
	got, err = store.GetCacheEntry(StageBM25Index, "key1")
	require.NoError(t, err)
	assert.NotNil(t, got.LastAccessed)

	stats, err := store.CacheStats()
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, StageBM25Index, stats[0].Stage)
	assert.Equal(t, int64(1), stats[0].Count)

	old, err := store.CacheEntriesOlderThan(time.Now().UTC().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Len(t, old, 1)

	require.NoError(t, store.DeleteCacheEntry(StageBM25Index, "key1"))
	got, err = store.GetCacheEntry(StageBM25Index, "key1")
	require.NoError(t, err)
	assert.Nil(t, got)
}
