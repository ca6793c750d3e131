package persist

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCache(t *testing.T, scope Scope) (*CacheManager, *Store) {
	t.Helper()
	base := t.TempDir()
	db, err := Open("sqlite", filepath.Join(base, "meta.db"))
	require.NoError(t, err)
	store := NewStore(db, zap.NewNop())
	manager, err := NewCacheManager(base, store, scope, zap.NewNop())
	require.NoError(t, err)
	return manager, store
}

func TestParseScope(t *testing.T) {
	scope, err := ParseScope("Deterministic")
	require.NoError(t, err)
	assert.Equal(t, ScopeDeterministic, scope)

	scope, err = ParseScope("")
	require.NoError(t, err)
	assert.Equal(t, ScopeNone, scope)

	_, err = ParseScope("everything")
	assert.ErrorContains(t, err, "unknown cache scope")
}

type indexPayload struct {
	Terms []string `json:"terms"`
	Avgdl float64  `json:"avgdl"`
}

func TestCacheJSONRoundTrip(t *testing.T) {
	manager, _ := newTestCache(t, ScopeDeterministic)
	in := indexPayload{Terms: []string{"sealed", "envelopes"}, Avgdl: 7.5}

	var miss indexPayload
	hit, err := manager.GetJSON(StageBM25Index, "k1", &miss)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, manager.SetJSON(StageBM25Index, "k1", in))

	var out indexPayload
	hit, err = manager.GetJSON(StageBM25Index, "k1", &out)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, in, out, "hit must be identical to the stored value")
}

func TestCacheVectorsRoundTrip(t *testing.T) {
	manager, _ := newTestCache(t, ScopeDeterministic)
	in := [][]float32{{1, 2.5, -3}, {0, 0.125, 42}}

	require.NoError(t, manager.SetVectors(StageDocVectors, "vk", in))

	out, hit, err := manager.GetVectors(StageDocVectors, "vk")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, in, out)
}

func TestCacheWriteToDisabledStageIsConfigError(t *testing.T) {
	manager, _ := newTestCache(t, ScopeDeterministic)
	err := manager.SetJSON("fusion", "k", map[string]int{"a": 1})
	assert.ErrorContains(t, err, "cache stage not enabled")

	none, _ := newTestCache(t, ScopeNone)
	err = none.SetJSON(StageBM25Index, "k", map[string]int{"a": 1})
	assert.ErrorContains(t, err, "cache stage not enabled")
}

func TestCacheScopeNoneNeverHits(t *testing.T) {
	manager, store := newTestCache(t, ScopeNone)
	// 即使后端有条目，none 作用域也绝不读。
	require.NoError(t, store.PutCacheEntry(CacheEntryRecord{
		Stage: StageBM25Index, CacheKey: "k", ContentHash: "h", Path: "/nope", CreatedAt: time.Now().UTC(),
	}))
	var out map[string]any
	hit, err := manager.GetJSON(StageBM25Index, "k", &out)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCacheMissingFileIsMiss(t *testing.T) {
	manager, _ := newTestCache(t, ScopeDeterministic)
	require.NoError(t, manager.SetJSON(StageBM25Index, "k1", map[string]int{"a": 1}))

	entry, err := manager.store.GetCacheEntry(StageBM25Index, "k1")
	require.NoError(t, err)
	require.NoError(t, os.Remove(entry.Path))

	var out map[string]int
	hit, err := manager.GetJSON(StageBM25Index, "k1", &out)
	require.NoError(t, err)
	assert.False(t, hit, "missing payload file recomputes, never fatals")
}

func TestCacheCorruptFileIsMiss(t *testing.T) {
	manager, _ := newTestCache(t, ScopeDeterministic)
	require.NoError(t, manager.SetJSON(StageBM25Index, "k1", map[string]int{"a": 1}))

	entry, err := manager.store.GetCacheEntry(StageBM25Index, "k1")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(entry.Path, []byte("{truncated"), 0o644))

	var out map[string]int
	hit, err := manager.GetJSON(StageBM25Index, "k1", &out)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, manager.SetVectors(StageDocVectors, "vk", [][]float32{{1}}))
	vecEntry, err := manager.store.GetCacheEntry(StageDocVectors, "vk")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(vecEntry.Path, []byte("xx"), 0o644))
	_, hit, err = manager.GetVectors(StageDocVectors, "vk")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCacheStatsAndPrune(t *testing.T) {
	manager, store := newTestCache(t, ScopeDeterministic)
	require.NoError(t, manager.SetJSON(StageBM25Index, "fresh", map[string]int{"a": 1}))
	require.NoError(t, manager.SetJSON(StagePreprocess, "old", map[string]int{"b": 2}))

	// 回拨 old 条目的创建时间，保持最近访问在当下: 按创建时间剪，不看访问。
	entry, err := store.GetCacheEntry(StagePreprocess, "old")
	require.NoError(t, err)
	entry.CreatedAt = time.Now().UTC().AddDate(0, 0, -30)
	require.NoError(t, store.PutCacheEntry(*entry))
	require.NoError(t, store.TouchCacheEntry(StagePreprocess, "old"))

	stats, err := manager.Stats()
	require.NoError(t, err)
	assert.Len(t, stats, 2)

	removed, err := manager.PruneOlderThan(7)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	var out map[string]int
	hit, err := manager.GetJSON(StagePreprocess, "old", &out)
	require.NoError(t, err)
	assert.False(t, hit)
	_, statErr := os.Stat(entry.Path)
	assert.True(t, os.IsNotExist(statErr), "payload file deleted with the entry")

	hit, err = manager.GetJSON(StageBM25Index, "fresh", &out)
	require.NoError(t, err)
	assert.True(t, hit, "recent entry survives pruning")
}
