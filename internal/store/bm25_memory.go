package store

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"encoding/gob"
)

// SpecBM25Config returns the BM25 tuning spec.md's keyword-search component
// requires: k1=1.5 (versus this package's general-purpose DefaultBM25Config,
// which keeps the teacher's k1=1.2), b=0.75.
func SpecBM25Config() BM25Config {
	cfg := DefaultBM25Config()
	cfg.K1 = 1.5
	return cfg
}

type bm25Doc struct {
	id      string
	termFreq map[string]int
	length   int
}

// MemoryBM25Index is an in-process BM25 index that exposes its document
// frequency and average length bookkeeping directly, rather than hiding it
// behind a wrapped full-text engine. Re-indexing the same document id is
// idempotent: the old posting is fully retracted (df decremented for every
// term it contributed) before the new posting is added, so repeated
// Index() calls never inflate df or avgLen.
type MemoryBM25Index struct {
	mu        sync.RWMutex
	cfg       BM25Config
	docs      map[string]*bm25Doc
	df        map[string]int
	totalLen  int
	stopWords map[string]struct{}
}

// NewMemoryBM25Index creates an empty in-memory BM25 index with the given
// configuration.
func NewMemoryBM25Index(cfg BM25Config) *MemoryBM25Index {
	if cfg.K1 == 0 {
		cfg.K1 = SpecBM25Config().K1
	}
	if cfg.B == 0 {
		cfg.B = SpecBM25Config().B
	}
	if cfg.MinTokenLength == 0 {
		cfg.MinTokenLength = 2
	}
	return &MemoryBM25Index{
		cfg:       cfg,
		docs:      make(map[string]*bm25Doc),
		df:        make(map[string]int),
		stopWords: BuildStopWordMap(cfg.StopWords),
	}
}

func (idx *MemoryBM25Index) tokenize(content string) []string {
	tokens := TokenizeCode(content)
	tokens = FilterStopWords(tokens, idx.stopWords)
	filtered := tokens[:0]
	for _, t := range tokens {
		if len(t) >= idx.cfg.MinTokenLength {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

func (idx *MemoryBM25Index) avgLen() float64 {
	if len(idx.docs) == 0 {
		return 0
	}
	return float64(idx.totalLen) / float64(len(idx.docs))
}

// retract removes a document's contribution to df/totalLen without touching
// idx.docs itself; callers delete the entry separately.
func (idx *MemoryBM25Index) retract(doc *bm25Doc) {
	for term := range doc.termFreq {
		idx.df[term]--
		if idx.df[term] <= 0 {
			delete(idx.df, term)
		}
	}
	idx.totalLen -= doc.length
}

// Index adds documents to the index. Indexing the same id twice replaces
// the prior posting rather than double-counting it.
func (idx *MemoryBM25Index) Index(_ context.Context, docs []*Document) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, d := range docs {
		if existing, ok := idx.docs[d.ID]; ok {
			idx.retract(existing)
		}

		tokens := idx.tokenize(d.Content)
		tf := make(map[string]int, len(tokens))
		for _, t := range tokens {
			tf[t]++
		}

		doc := &bm25Doc{id: d.ID, termFreq: tf, length: len(tokens)}
		idx.docs[d.ID] = doc
		idx.totalLen += doc.length
		for term := range tf {
			idx.df[term]++
		}
	}
	return nil
}

// Search returns documents matching query, scored by BM25:
//
//	idf(t)   = ln((N - df + 0.5)/(df + 0.5) + 1)
//	score(d) = sum_t idf(t) * tf(t,d) * (k1+1) / (tf(t,d) + k1*(1-b+b*|d|/avgLen))
func (idx *MemoryBM25Index) Search(_ context.Context, query string, limit int) ([]*BM25Result, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	queryTerms := idx.tokenize(query)
	if len(queryTerms) == 0 || len(idx.docs) == 0 {
		return []*BM25Result{}, nil
	}

	n := float64(len(idx.docs))
	avgLen := idx.avgLen()
	k1 := idx.cfg.K1
	b := idx.cfg.B

	idf := make(map[string]float64, len(queryTerms))
	seen := make(map[string]struct{}, len(queryTerms))
	uniqueTerms := make([]string, 0, len(queryTerms))
	for _, t := range queryTerms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		uniqueTerms = append(uniqueTerms, t)
		df := float64(idx.df[t])
		idf[t] = math.Log((n-df+0.5)/(df+0.5) + 1)
	}

	results := make([]*BM25Result, 0)
	for _, doc := range idx.docs {
		var score float64
		var matched []string
		for _, t := range uniqueTerms {
			tf := float64(doc.termFreq[t])
			if tf == 0 {
				continue
			}
			matched = append(matched, t)
			denom := tf + k1*(1-b+b*float64(doc.length)/avgLen)
			score += idf[t] * tf * (k1 + 1) / denom
		}
		if score > 0 {
			results = append(results, &BM25Result{
				DocID:        doc.id,
				Score:        score,
				MatchedTerms: matched,
			})
		}
	}

	sortBM25Results(results)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func sortBM25Results(results []*BM25Result) {
	// Stable insertion sort by descending score, then ascending DocID for a
	// deterministic tie-break; result sets are small enough that this never
	// shows up as a bottleneck compared to the scoring pass above.
	for i := 1; i < len(results); i++ {
		j := i
		for j > 0 && bm25ResultLess(results[j], results[j-1]) {
			results[j], results[j-1] = results[j-1], results[j]
			j--
		}
	}
}

func bm25ResultLess(a, b *BM25Result) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.DocID < b.DocID
}

// Delete removes documents from the index, retracting their df/avgLen
// contribution.
func (idx *MemoryBM25Index) Delete(_ context.Context, docIDs []string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, id := range docIDs {
		doc, ok := idx.docs[id]
		if !ok {
			continue
		}
		idx.retract(doc)
		delete(idx.docs, id)
	}
	return nil
}

// AllIDs returns all document IDs in the index.
func (idx *MemoryBM25Index) AllIDs() ([]string, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	ids := make([]string, 0, len(idx.docs))
	for id := range idx.docs {
		ids = append(ids, id)
	}
	return ids, nil
}

// Stats returns index statistics.
func (idx *MemoryBM25Index) Stats() *IndexStats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return &IndexStats{
		DocumentCount: len(idx.docs),
		TermCount:     len(idx.df),
		AvgDocLength:  idx.avgLen(),
	}
}

type bm25Snapshot struct {
	Cfg      BM25Config
	Docs     map[string]*bm25Doc
	DF       map[string]int
	TotalLen int
}

// Save persists the index to disk via gob, atomically (temp file + rename).
func (idx *MemoryBM25Index) Save(path string) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	snap := bm25Snapshot{
		Cfg:      idx.cfg,
		Docs:     idx.docs,
		DF:       idx.df,
		TotalLen: idx.totalLen,
	}

	enc := gob.NewEncoder(file)
	if err := enc.Encode(snap); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("encode bm25 index: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close bm25 index file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// Load restores the index from a file written by Save.
func (idx *MemoryBM25Index) Load(path string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open bm25 index file: %w", err)
	}
	defer file.Close()

	var snap bm25Snapshot
	if err := gob.NewDecoder(file).Decode(&snap); err != nil {
		return fmt.Errorf("decode bm25 index: %w", err)
	}

	idx.cfg = snap.Cfg
	idx.docs = snap.Docs
	idx.df = snap.DF
	idx.totalLen = snap.TotalLen
	idx.stopWords = BuildStopWordMap(idx.cfg.StopWords)
	return nil
}

// Close is a no-op; the index holds no file handles or background goroutines.
func (idx *MemoryBM25Index) Close() error { return nil }

var _ BM25Index = (*MemoryBM25Index)(nil)
