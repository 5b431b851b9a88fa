package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBM25Index_DefaultsMatchSpecTuning(t *testing.T) {
	idx := NewMemoryBM25Index(BM25Config{})
	assert.Equal(t, 1.5, idx.cfg.K1)
	assert.Equal(t, 0.75, idx.cfg.B)
}

func TestMemoryBM25Index_SearchRanksMoreRelevantDocHigher(t *testing.T) {
	idx := NewMemoryBM25Index(SpecBM25Config())
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, []*Document{
		{ID: "a", Content: "graph database query engine for knowledge graphs"},
		{ID: "b", Content: "bakery recipe for sourdough bread"},
		{ID: "c", Content: "graph graph graph traversal and graph indexing"},
	}))

	results, err := idx.Search(ctx, "graph", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "c", results[0].DocID)
	assert.Equal(t, "a", results[1].DocID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestMemoryBM25Index_ReindexSameIDIsIdempotent(t *testing.T) {
	idx := NewMemoryBM25Index(SpecBM25Config())
	ctx := context.Background()

	doc := &Document{ID: "a", Content: "graph database engine"}
	require.NoError(t, idx.Index(ctx, []*Document{doc}))
	statsOnce := idx.Stats()

	require.NoError(t, idx.Index(ctx, []*Document{doc}))
	statsTwice := idx.Stats()

	assert.Equal(t, statsOnce.DocumentCount, statsTwice.DocumentCount)
	assert.Equal(t, statsOnce.TermCount, statsTwice.TermCount)
	assert.InDelta(t, statsOnce.AvgDocLength, statsTwice.AvgDocLength, 1e-9)
}

func TestMemoryBM25Index_DeleteRetractsDFAndLength(t *testing.T) {
	idx := NewMemoryBM25Index(SpecBM25Config())
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, []*Document{
		{ID: "a", Content: "graph database engine"},
		{ID: "b", Content: "graph traversal engine"},
	}))

	require.NoError(t, idx.Delete(ctx, []string{"a"}))

	stats := idx.Stats()
	assert.Equal(t, 1, stats.DocumentCount)

	ids, err := idx.AllIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids)

	results, err := idx.Search(ctx, "database", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemoryBM25Index_EmptyQueryReturnsNoResults(t *testing.T) {
	idx := NewMemoryBM25Index(SpecBM25Config())
	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, []*Document{{ID: "a", Content: "graph database"}}))

	results, err := idx.Search(ctx, "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemoryBM25Index_SaveLoadRoundTrip(t *testing.T) {
	idx := NewMemoryBM25Index(SpecBM25Config())
	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, []*Document{
		{ID: "a", Content: "graph database engine"},
		{ID: "b", Content: "bakery sourdough recipe"},
	}))

	path := filepath.Join(t.TempDir(), "bm25.gob")
	require.NoError(t, idx.Save(path))

	loaded := NewMemoryBM25Index(BM25Config{})
	require.NoError(t, loaded.Load(path))

	before, err := idx.Search(ctx, "graph", 10)
	require.NoError(t, err)
	after, err := loaded.Search(ctx, "graph", 10)
	require.NoError(t, err)

	require.Len(t, after, len(before))
	assert.Equal(t, before[0].DocID, after[0].DocID)
}

func TestMemoryBM25Index_LoadMissingFileErrors(t *testing.T) {
	idx := NewMemoryBM25Index(BM25Config{})
	err := idx.Load(filepath.Join(os.TempDir(), "does-not-exist-bm25.gob"))
	assert.Error(t, err)
}
