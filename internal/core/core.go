// Package core assembles the persistent memory and knowledge-graph
// components (C1-C14) into one handle, the way a caller actually needs
// them: one graph store, one keyword index, one vector store, one
// hybrid search engine, one ingestion pipeline, all opened from a data
// directory and released together. cmd/pingmem and internal/mcp both
// build on top of this instead of wiring components by hand.
package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/usorama/pingmem/internal/graph"
	"github.com/usorama/pingmem/internal/index"
	"github.com/usorama/pingmem/internal/memstore"
	"github.com/usorama/pingmem/internal/scanner"
	"github.com/usorama/pingmem/internal/search"
	"github.com/usorama/pingmem/internal/store"
	"github.com/usorama/pingmem/internal/vectorize"
)

// Config selects the backends and capacity a Core is opened with.
type Config struct {
	// DataDir holds the index files: bm25.db, vectors.hnsw, memories.json.
	DataDir string

	// Dimensions is the vectorizer's output width. Zero selects
	// vectorize.DefaultDimensions.
	Dimensions int

	// BM25Backend is "sqlite" (default) or "bleve"; see store.NewBM25IndexWithBackend.
	BM25Backend string

	// IngestConcurrency bounds the pipeline's per-file fan-out. Zero
	// selects index.DefaultPipelineConcurrency.
	IngestConcurrency int
}

// Core is every component a tool handler or CLI command needs, opened
// once and shared for the life of the process.
type Core struct {
	cfg Config

	Graph      *graph.Store
	Temporal   *graph.TemporalStore
	Lineage    *graph.LineageEngine
	Evolution  *graph.EvolutionEngine
	Extractor  *graph.Extractor
	Inferencer *graph.Inferencer

	Vectorizer *vectorize.Vectorizer
	Keyword    store.BM25Index
	Vectors    store.VectorStore

	Hybrid   *search.HybridEngine
	Pipeline *index.Pipeline
	Memories *memstore.Store
}

func (c *Config) withDefaults() {
	if c.Dimensions <= 0 {
		c.Dimensions = vectorize.DefaultDimensions
	}
	if c.BM25Backend == "" {
		c.BM25Backend = "sqlite"
	}
	if c.IngestConcurrency <= 0 {
		c.IngestConcurrency = index.DefaultPipelineConcurrency
	}
}

func (c *Config) vectorPath() string { return filepath.Join(c.DataDir, "vectors.hnsw") }
func (c *Config) bm25Path() string   { return filepath.Join(c.DataDir, "bm25") }
func (c *Config) memoryPath() string { return filepath.Join(c.DataDir, "memories.json") }

// Open constructs every component and loads whatever persisted state
// already exists under cfg.DataDir. A fresh, empty DataDir is a valid
// starting point: every store initializes empty.
func Open(cfg Config) (*Core, error) {
	cfg.withDefaults()

	if cfg.DataDir == "" {
		return nil, fmt.Errorf("core: DataDir is required")
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("core: create data dir: %w", err)
	}

	sc, err := scanner.New()
	if err != nil {
		return nil, fmt.Errorf("core: create scanner: %w", err)
	}

	keyword, err := store.NewBM25IndexWithBackend(cfg.bm25Path(), store.DefaultBM25Config(), cfg.BM25Backend)
	if err != nil {
		return nil, fmt.Errorf("core: open keyword index: %w", err)
	}

	vectors, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(cfg.Dimensions))
	if err != nil {
		_ = keyword.Close()
		return nil, fmt.Errorf("core: create vector store: %w", err)
	}
	if _, statErr := os.Stat(cfg.vectorPath()); statErr == nil {
		if loadErr := vectors.Load(cfg.vectorPath()); loadErr != nil {
			_ = keyword.Close()
			_ = vectors.Close()
			return nil, fmt.Errorf("core: load vector store: %w", loadErr)
		}
	}

	memories, err := memstore.Open(cfg.memoryPath())
	if err != nil {
		_ = keyword.Close()
		_ = vectors.Close()
		return nil, fmt.Errorf("core: open memory store: %w", err)
	}

	graphStore := graph.NewStore()
	vectorizer := vectorize.New(cfg.Dimensions)

	c := &Core{
		cfg:        cfg,
		Graph:      graphStore,
		Temporal:   graph.NewTemporalStore(graphStore),
		Lineage:    graph.NewLineageEngine(graphStore),
		Evolution:  graph.NewEvolutionEngine(graphStore),
		Extractor:  graph.NewExtractor(),
		Inferencer: graph.NewInferencer(nil),
		Vectorizer: vectorizer,
		Keyword:    keyword,
		Vectors:    vectors,
		Memories:   memories,
		Hybrid:     search.NewHybridEngine(keyword, vectors, vectorizer, graphStore),
	}

	c.Pipeline = index.NewPipeline(index.PipelineConfig{
		Scanner:        sc,
		Graph:          graphStore,
		Vectors:        vectors,
		Keyword:        keyword,
		Vectorizer:     vectorizer,
		MaxConcurrency: cfg.IngestConcurrency,
	})

	return c, nil
}

// Close flushes the vector store to disk and releases the keyword and
// vector index handles. The graph store and memory table need no
// explicit flush: the graph is in-process only (see DESIGN.md) and the
// memory store is written synchronously on every Save/Delete.
func (c *Core) Close() error {
	var errs []error
	if err := c.Vectors.Save(c.cfg.vectorPath()); err != nil {
		errs = append(errs, fmt.Errorf("save vector store: %w", err))
	}
	if err := c.Keyword.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close keyword index: %w", err))
	}
	if err := c.Vectors.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close vector store: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("core: close: %v", errs)
	}
	return nil
}

// Checkpoint saves the vector store without closing it, so long-running
// processes (the MCP server) don't lose indexed vectors on a crash.
func (c *Core) Checkpoint(_ context.Context) error {
	return c.Vectors.Save(c.cfg.vectorPath())
}

// ProjectID derives the same deterministic, path-based project id the
// pipeline assigns during Ingest, so callers that only have a directory
// (project_delete, codebase_verify) can address a project without having
// kept its id from a prior Ingest result.
func (c *Core) ProjectID(projectDir string) string {
	abs, err := filepath.Abs(projectDir)
	if err != nil {
		return scanner.ProjectID(projectDir)
	}
	return scanner.ProjectID(abs)
}
