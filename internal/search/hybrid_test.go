package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usorama/pingmem/internal/graph"
	"github.com/usorama/pingmem/internal/store"
	"github.com/usorama/pingmem/internal/vectorize"
)

// =============================================================================
// Hybrid Search Engine (C14) tests
// =============================================================================

// fakeKeywordIndex and fakeVectorStore return a fixed ranking regardless of
// the query, so fusion ordering can be pinned down exactly as in spec
// Scenario H1 without depending on the real scorers' internals.

type fakeKeywordIndex struct {
	order []string
}

func (f *fakeKeywordIndex) Index(ctx context.Context, docs []*store.Document) error { return nil }
func (f *fakeKeywordIndex) Search(ctx context.Context, query string, limit int) ([]*store.BM25Result, error) {
	out := make([]*store.BM25Result, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, &store.BM25Result{DocID: id, Score: 1})
	}
	return out, nil
}
func (f *fakeKeywordIndex) Delete(ctx context.Context, ids []string) error { return nil }
func (f *fakeKeywordIndex) AllIDs() ([]string, error)                     { return f.order, nil }
func (f *fakeKeywordIndex) Stats() *store.IndexStats                      { return &store.IndexStats{} }
func (f *fakeKeywordIndex) Save(path string) error                        { return nil }
func (f *fakeKeywordIndex) Load(path string) error                        { return nil }
func (f *fakeKeywordIndex) Close() error                                  { return nil }

type fakeVectorStore struct {
	order []string
}

func (f *fakeVectorStore) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	return nil
}
func (f *fakeVectorStore) Search(ctx context.Context, query []float32, k int) ([]*store.VectorResult, error) {
	out := make([]*store.VectorResult, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, &store.VectorResult{ID: id, Score: 1})
	}
	return out, nil
}
func (f *fakeVectorStore) Delete(ctx context.Context, ids []string) error { return nil }
func (f *fakeVectorStore) AllIDs() []string                               { return f.order }
func (f *fakeVectorStore) Contains(id string) bool                        { return false }
func (f *fakeVectorStore) Count() int                                     { return len(f.order) }
func (f *fakeVectorStore) Save(path string) error                         { return nil }
func (f *fakeVectorStore) Load(path string) error                         { return nil }
func (f *fakeVectorStore) Close() error                                   { return nil }

type failingMode struct{ err error }

func (f *failingMode) Index(ctx context.Context, docs []*store.Document) error { return nil }
func (f *failingMode) Search(ctx context.Context, query string, limit int) ([]*store.BM25Result, error) {
	return nil, f.err
}
func (f *failingMode) Delete(ctx context.Context, ids []string) error { return nil }
func (f *failingMode) AllIDs() ([]string, error)                      { return nil, nil }
func (f *failingMode) Stats() *store.IndexStats                       { return &store.IndexStats{} }
func (f *failingMode) Save(path string) error                         { return nil }
func (f *failingMode) Load(path string) error                         { return nil }
func (f *failingMode) Close() error                                   { return nil }

func seedSession(t *testing.T, h *HybridEngine, ids []string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, h.IndexDocument(context.Background(), id, "S", "content for "+id, time.Now(), ""))
	}
}

func TestSearch_FusionOrderingMatchesScenarioH1(t *testing.T) {
	keyword := &fakeKeywordIndex{order: []string{"mem-002", "mem-001", "mem-004", "mem-003"}} // B,A,D,C
	vectors := &fakeVectorStore{order: []string{"mem-001", "mem-002", "mem-003", "mem-004"}}  // A,B,C,D
	h := NewHybridEngine(keyword, vectors, vectorize.New(8), nil)
	seedSession(t, h, []string{"mem-001", "mem-002", "mem-003", "mem-004"})

	results, err := h.Search(context.Background(), "machine learning", HybridOptions{
		Modes:   []SearchMode{ModeSemantic, ModeKeyword},
		Weights: ModeWeights{ModeSemantic: 0.5, ModeKeyword: 0.3},
	})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(results), 2)
	assert.Equal(t, "mem-001", results[0].MemoryID)
	assert.Equal(t, "mem-002", results[1].MemoryID)
	assert.Greater(t, results[0].HybridScore, results[1].HybridScore)
}

func TestSearch_GraphModeSilentNoOpWithoutSeed(t *testing.T) {
	keyword := &fakeKeywordIndex{order: []string{"mem-001"}}
	h := NewHybridEngine(keyword, nil, nil, graph.NewStore())
	seedSession(t, h, []string{"mem-001"})

	results, err := h.Search(context.Background(), "q", HybridOptions{
		Modes:   []SearchMode{ModeKeyword, ModeGraph},
		Weights: ModeWeights{ModeKeyword: 0.3, ModeGraph: 0.2},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []SearchMode{ModeKeyword}, results[0].SearchModes)
}

func TestSearch_GraphModeExpandsNeighborsToMemoryIDs(t *testing.T) {
	g := graph.NewStore()
	seed, err := g.CreateEntity(&graph.Entity{ID: "seed", Type: graph.EntityConcept, Name: "seed"})
	require.NoError(t, err)
	chunk, err := g.CreateEntity(&graph.Entity{ID: "mem-chunk", Type: graph.EntityCodeFile, Name: "chunk"})
	require.NoError(t, err)
	_, err = g.CreateRelationship(&graph.Relationship{
		ID: "rel-1", Type: graph.RelRelatedTo, SourceID: seed.ID, TargetID: chunk.ID, Weight: 1,
	})
	require.NoError(t, err)

	keyword := &fakeKeywordIndex{}
	h := NewHybridEngine(keyword, nil, nil, g)
	require.NoError(t, h.IndexDocument(context.Background(), "mem-chunk", "S", "chunk body", time.Now(), ""))

	results, err := h.Search(context.Background(), "anything", HybridOptions{
		Modes:         []SearchMode{ModeGraph},
		Weights:       ModeWeights{ModeGraph: 1},
		GraphEntityID: "seed",
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "mem-chunk", results[0].MemoryID)
	require.NotNil(t, results[0].GraphContext)
	assert.Equal(t, 1, results[0].GraphContext.HopDistance)
}

func TestSearch_ModeFailurePropagatesSearchModeError(t *testing.T) {
	h := NewHybridEngine(&failingMode{err: assert.AnError}, nil, nil, nil)
	_, err := h.Search(context.Background(), "q", HybridOptions{
		Modes:   []SearchMode{ModeKeyword},
		Weights: ModeWeights{ModeKeyword: 1},
	})
	require.Error(t, err)
	var modeErr *SearchModeError
	require.ErrorAs(t, err, &modeErr)
	assert.Equal(t, ModeKeyword, modeErr.Mode)
}

func TestSearch_ThresholdDropsLowScores(t *testing.T) {
	keyword := &fakeKeywordIndex{order: []string{"mem-001"}}
	h := NewHybridEngine(keyword, nil, nil, nil)
	seedSession(t, h, []string{"mem-001"})

	results, err := h.Search(context.Background(), "q", HybridOptions{
		Modes:     []SearchMode{ModeKeyword},
		Weights:   ModeWeights{ModeKeyword: 1},
		Threshold: 1.0, // hybridScore for rank 1 is well below 1.0
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_SessionFilterExcludesOtherSessions(t *testing.T) {
	keyword := &fakeKeywordIndex{order: []string{"mem-001", "mem-002"}}
	h := NewHybridEngine(keyword, nil, nil, nil)
	require.NoError(t, h.IndexDocument(context.Background(), "mem-001", "S1", "a", time.Now(), ""))
	require.NoError(t, h.IndexDocument(context.Background(), "mem-002", "S2", "b", time.Now(), ""))

	results, err := h.Search(context.Background(), "q", HybridOptions{
		Modes:     []SearchMode{ModeKeyword},
		Weights:   ModeWeights{ModeKeyword: 1},
		SessionID: "S1",
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "mem-001", results[0].MemoryID)
}

type failingVectorStore struct{ fakeVectorStore }

func (f *failingVectorStore) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	return assert.AnError
}

func TestIndexDocument_VectorFailurePropagatesButKeywordWriteStands(t *testing.T) {
	keyword := &fakeKeywordIndex{}
	h := NewHybridEngine(keyword, &failingVectorStore{}, vectorize.New(8), nil)

	err := h.IndexDocument(context.Background(), "mem-001", "S", "body", time.Now(), "")
	require.Error(t, err)

	h.mu.RLock()
	meta, ok := h.docs["mem-001"]
	h.mu.RUnlock()
	require.True(t, ok, "keyword-side bookkeeping must survive a vector-store failure")
	assert.False(t, meta.HasVector)
}

func TestRemoveDocument_ReportsWhetherDocumentExisted(t *testing.T) {
	keyword := &fakeKeywordIndex{}
	h := NewHybridEngine(keyword, nil, nil, nil)
	require.NoError(t, h.IndexDocument(context.Background(), "mem-001", "S", "body", time.Now(), ""))

	removed, err := h.RemoveDocument(context.Background(), "mem-001")
	require.NoError(t, err)
	assert.True(t, removed)

	removedAgain, err := h.RemoveDocument(context.Background(), "mem-001")
	require.NoError(t, err)
	assert.False(t, removedAgain)
}
