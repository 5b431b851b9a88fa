package search

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/usorama/pingmem/internal/graph"
	"github.com/usorama/pingmem/internal/store"
	"github.com/usorama/pingmem/internal/vectorize"
)

// SearchMode identifies one of the three ranking signals a hybrid query can
// draw on.
type SearchMode string

const (
	ModeSemantic SearchMode = "semantic"
	ModeKeyword  SearchMode = "keyword"
	ModeGraph    SearchMode = "graph"
)

// HybridRRFConstant is the K in the weighted reciprocal-rank-fusion formula.
const HybridRRFConstant = 60

// ModeWeights assigns each mode a contribution weight. Weights are not
// required to sum to 1; fusion normalizes by the sum of weights of modes
// that actually contributed a given memory id.
type ModeWeights map[SearchMode]float64

// DefaultModeWeights returns the baseline semantic/keyword/graph split.
func DefaultModeWeights() ModeWeights {
	return ModeWeights{ModeSemantic: 0.5, ModeKeyword: 0.3, ModeGraph: 0.2}
}

// HybridOptions configures one HybridEngine.Search call.
type HybridOptions struct {
	Limit         int
	Threshold     float64
	SessionID     string
	Category      string
	Modes         []SearchMode
	Weights       ModeWeights
	GraphEntityID string
	GraphDepth    int
}

func (o HybridOptions) withDefaults() HybridOptions {
	if o.Limit <= 0 {
		o.Limit = 10
	}
	if o.Weights == nil {
		o.Weights = DefaultModeWeights()
	}
	if o.GraphDepth <= 0 {
		o.GraphDepth = 1
	}
	if len(o.Modes) == 0 {
		o.Modes = []SearchMode{ModeSemantic, ModeKeyword, ModeGraph}
	}
	return o
}

// ModeScore is one mode's contribution to a fused result, at its own
// 0-indexed similarity and 1-indexed rank.
type ModeScore struct {
	Mode  SearchMode
	Score float64
	Rank  int
}

// GraphContext describes how graph-mode expansion reached a result.
type GraphContext struct {
	RelatedEntityIDs []string
	RelationTypes    []graph.RelationshipType
	HopDistance      int
}

// HybridResult is one fused, ranked hybrid-search hit.
type HybridResult struct {
	MemoryID     string
	SessionID    string
	Content      string
	HybridScore  float64
	SearchModes  []SearchMode
	ModeScores   []ModeScore
	GraphContext *GraphContext
}

// SearchModeError reports that an enabled search mode failed. The whole
// hybrid search call fails with this error rather than returning partial
// results from the surviving modes.
type SearchModeError struct {
	Mode  SearchMode
	Cause error
}

func (e *SearchModeError) Error() string {
	return fmt.Sprintf("search mode %q failed: %v", e.Mode, e.Cause)
}

func (e *SearchModeError) Unwrap() error { return e.Cause }

// documentMeta is the bookkeeping indexDocument keeps per memory id so a
// fused rank can be joined back to its session, category and content.
// C4 and C3 only know ids and vectors; this map is the missing join table.
type documentMeta struct {
	SessionID string
	Content   string
	Category  string
	IndexedAt time.Time
	HasVector bool
}

// HybridEngine implements the three-mode hybrid search operation: keyword
// ranking over a BM25Index, semantic ranking over a VectorStore, and
// graph-expansion ranking over a bi-temporal graph.Store, fused by weighted
// reciprocal rank.
type HybridEngine struct {
	mu   sync.RWMutex
	docs map[string]*documentMeta

	keyword    store.BM25Index
	vectors    store.VectorStore
	vectorizer *vectorize.Vectorizer
	graphStore *graph.Store
}

// NewHybridEngine wires the three backing stores. vectors/vectorizer may be
// nil, in which case semantic mode is a no-op and indexDocument only writes
// to the keyword index; graphStore may be nil, disabling graph mode.
func NewHybridEngine(keyword store.BM25Index, vectors store.VectorStore, vectorizer *vectorize.Vectorizer, graphStore *graph.Store) *HybridEngine {
	return &HybridEngine{
		docs:       make(map[string]*documentMeta),
		keyword:    keyword,
		vectors:    vectors,
		vectorizer: vectorizer,
		graphStore: graphStore,
	}
}

// IndexDocument updates the keyword index unconditionally, then computes an
// embedding and stores it in the vector store if one is configured. Vector
// failures propagate to the caller; the keyword write is never rolled back.
func (h *HybridEngine) IndexDocument(ctx context.Context, memID, sessionID, content string, indexedAt time.Time, category string) error {
	if err := h.keyword.Index(ctx, []*store.Document{{ID: memID, Content: content}}); err != nil {
		return fmt.Errorf("keyword index: %w", err)
	}

	h.mu.Lock()
	meta := &documentMeta{SessionID: sessionID, Content: content, Category: category, IndexedAt: indexedAt}
	h.docs[memID] = meta
	h.mu.Unlock()

	if h.vectors == nil || h.vectorizer == nil {
		return nil
	}
	vec := h.vectorizer.Vectorize(content)
	if err := h.vectors.Add(ctx, []string{memID}, [][]float32{vec}); err != nil {
		return fmt.Errorf("vector index: %w", err)
	}
	h.mu.Lock()
	meta.HasVector = true
	h.mu.Unlock()
	return nil
}

// RemoveDocument deletes memID from the keyword and vector indices and
// reports whether the document was known beforehand.
func (h *HybridEngine) RemoveDocument(ctx context.Context, memID string) (bool, error) {
	h.mu.Lock()
	_, existed := h.docs[memID]
	delete(h.docs, memID)
	h.mu.Unlock()

	kwErr := h.keyword.Delete(ctx, []string{memID})
	var vecErr error
	if h.vectors != nil {
		vecErr = h.vectors.Delete(ctx, []string{memID})
	}
	if kwErr != nil && vecErr != nil {
		return false, fmt.Errorf("remove document %s: keyword: %v; vector: %v", memID, kwErr, vecErr)
	}
	return existed, nil
}

type modeOutcome struct {
	ranks    map[string]int
	scores   map[string]float64
	graphCtx map[string]*GraphContext
}

// Search runs the enabled modes concurrently, each over-fetching 2*limit
// candidates at its own threshold of 0, then fuses the per-mode ranks with
// weighted reciprocal rank fusion.
func (h *HybridEngine) Search(ctx context.Context, query string, opts HybridOptions) ([]*HybridResult, error) {
	opts = opts.withDefaults()
	overFetch := 2 * opts.Limit

	outcomes := make([]*modeOutcome, len(opts.Modes))
	g, gctx := errgroup.WithContext(ctx)
	for i, mode := range opts.Modes {
		i, mode := i, mode
		g.Go(func() error {
			out, err := h.runMode(gctx, mode, query, overFetch, opts)
			if err != nil {
				return &SearchModeError{Mode: mode, Cause: err}
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return h.fuse(opts, outcomes), nil
}

func (h *HybridEngine) runMode(ctx context.Context, mode SearchMode, query string, overFetch int, opts HybridOptions) (*modeOutcome, error) {
	switch mode {
	case ModeKeyword:
		res, err := h.keyword.Search(ctx, query, overFetch)
		if err != nil {
			return nil, err
		}
		ranks := make(map[string]int, len(res))
		scores := make(map[string]float64, len(res))
		for i, r := range res {
			ranks[r.DocID] = i + 1
			scores[r.DocID] = r.Score
		}
		return &modeOutcome{ranks: ranks, scores: scores}, nil

	case ModeSemantic:
		if h.vectors == nil || h.vectorizer == nil {
			return &modeOutcome{ranks: map[string]int{}, scores: map[string]float64{}}, nil
		}
		qv := h.vectorizer.Vectorize(query)
		res, err := h.vectors.Search(ctx, qv, overFetch)
		if err != nil {
			return nil, err
		}
		ranks := make(map[string]int, len(res))
		scores := make(map[string]float64, len(res))
		for i, r := range res {
			ranks[r.ID] = i + 1
			scores[r.ID] = float64(r.Score)
		}
		return &modeOutcome{ranks: ranks, scores: scores}, nil

	case ModeGraph:
		if opts.GraphEntityID == "" || h.graphStore == nil {
			return &modeOutcome{ranks: map[string]int{}, scores: map[string]float64{}}, nil
		}
		return h.graphSearch(opts.GraphEntityID, opts.GraphDepth, overFetch)

	default:
		return nil, fmt.Errorf("unknown search mode %q", mode)
	}
}

// graphSearch expands outward from seedID up to depth hops over the graph
// store's Neighborhood relation, treating every newly-reached entity id as a
// candidate memory id ranked by discovery order. This resolves neighbor
// entities to memory ids rather than leaving graph mode permanently empty:
// content chunks created by the ingestion pipeline are graph entities whose
// id is already the memory id used by indexDocument, so a chunk reached by
// expansion is directly usable as a hit.
func (h *HybridEngine) graphSearch(seedID string, depth, limit int) (*modeOutcome, error) {
	type frontierNode struct {
		id  string
		hop int
	}

	visited := map[string]bool{seedID: true}
	ranks := make(map[string]int)
	scores := make(map[string]float64)
	ctxs := make(map[string]*GraphContext)

	frontier := []frontierNode{{id: seedID, hop: 0}}
	rank := 0
	for d := 0; d < depth && len(frontier) > 0 && rank < limit; d++ {
		var next []frontierNode
		for _, node := range frontier {
			triples, err := h.graphStore.Neighborhood(node.id)
			if err != nil {
				if _, ok := err.(graph.ErrNotFound); ok {
					continue
				}
				return nil, err
			}
			for _, t := range triples {
				other := t.Target
				if other.ID == node.id {
					other = t.Source
				}
				if visited[other.ID] {
					continue
				}
				visited[other.ID] = true
				rank++
				ranks[other.ID] = rank
				scores[other.ID] = 1.0 / float64(node.hop+2)
				ctxs[other.ID] = &GraphContext{
					RelatedEntityIDs: []string{node.id},
					RelationTypes:    []graph.RelationshipType{t.Type},
					HopDistance:      node.hop + 1,
				}
				next = append(next, frontierNode{id: other.ID, hop: node.hop + 1})
				if rank >= limit {
					break
				}
			}
			if rank >= limit {
				break
			}
		}
		frontier = next
	}
	return &modeOutcome{ranks: ranks, scores: scores, graphCtx: ctxs}, nil
}

type fusionAccum struct {
	rrf        float64
	totalW     float64
	modes      []SearchMode
	modeScores []ModeScore
	graphCtx   *GraphContext
}

func (h *HybridEngine) fuse(opts HybridOptions, outcomes []*modeOutcome) []*HybridResult {
	acc := make(map[string]*fusionAccum)
	for i, mode := range opts.Modes {
		oc := outcomes[i]
		if oc == nil {
			continue
		}
		w := opts.Weights[mode]
		if w <= 0 {
			continue
		}
		for id, rank := range oc.ranks {
			a := acc[id]
			if a == nil {
				a = &fusionAccum{}
				acc[id] = a
			}
			a.rrf += w / float64(HybridRRFConstant+rank)
			a.totalW += w
			a.modes = append(a.modes, mode)
			a.modeScores = append(a.modeScores, ModeScore{Mode: mode, Score: oc.scores[id], Rank: rank})
			if mode == ModeGraph && oc.graphCtx != nil {
				if gc, ok := oc.graphCtx[id]; ok {
					a.graphCtx = gc
				}
			}
		}
	}

	results := make([]*HybridResult, 0, len(acc))
	for id, a := range acc {
		if a.totalW <= 0 {
			continue
		}
		fused := a.rrf / a.totalW
		hybridScore := math.Min(1, fused*HybridRRFConstant)
		if hybridScore < opts.Threshold {
			continue
		}

		h.mu.RLock()
		meta := h.docs[id]
		h.mu.RUnlock()

		if meta == nil && (opts.SessionID != "" || opts.Category != "") {
			continue
		}
		var sessionID, content string
		if meta != nil {
			if opts.SessionID != "" && meta.SessionID != opts.SessionID {
				continue
			}
			if opts.Category != "" && meta.Category != opts.Category {
				continue
			}
			sessionID, content = meta.SessionID, meta.Content
		}

		sort.Slice(a.modeScores, func(i, j int) bool { return a.modeScores[i].Mode < a.modeScores[j].Mode })
		results = append(results, &HybridResult{
			MemoryID:     id,
			SessionID:    sessionID,
			Content:      content,
			HybridScore:  hybridScore,
			SearchModes:  dedupSortedModes(a.modes),
			ModeScores:   a.modeScores,
			GraphContext: a.graphCtx,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].HybridScore != results[j].HybridScore {
			return results[i].HybridScore > results[j].HybridScore
		}
		return results[i].MemoryID < results[j].MemoryID
	})
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results
}

func dedupSortedModes(modes []SearchMode) []SearchMode {
	seen := make(map[SearchMode]bool, len(modes))
	out := make([]SearchMode, 0, len(modes))
	for _, m := range modes {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
