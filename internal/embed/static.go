package embed

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/usorama/pingmem/internal/vectorize"
)

// StaticEmbedder generates embeddings using the deterministic feature-hashing
// vectorizer. Works without external dependencies (no network, no model
// download) and is byte-identical across platforms for the same input.
type StaticEmbedder struct {
	mu     sync.RWMutex
	closed bool
	v      *vectorize.Vectorizer
}

// NewStaticEmbedder creates a new static embedder at StaticDimensions.
func NewStaticEmbedder() *StaticEmbedder {
	return &StaticEmbedder{v: vectorize.New(StaticDimensions)}
}

// NewStaticEmbedderWithDimensions creates a static embedder at a chosen
// dimension, used when a project config overrides the default vector width.
func NewStaticEmbedderWithDimensions(dimensions int) *StaticEmbedder {
	return &StaticEmbedder{v: vectorize.New(dimensions)}
}

// Embed generates embedding for a single text.
func (e *StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if strings.TrimSpace(text) == "" {
		return make([]float32, e.v.Dimensions()), nil
	}
	return e.v.Vectorize(text), nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d: %w", i, err)
		}
		results[i] = emb
	}

	return results, nil
}

// Dimensions returns the embedding dimension.
func (e *StaticEmbedder) Dimensions() int {
	return e.v.Dimensions()
}

// ModelName returns the model identifier.
func (e *StaticEmbedder) ModelName() string {
	return "static"
}

// Available checks if the embedder is ready (always true for static).
func (e *StaticEmbedder) Available(_ context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close releases resources.
func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// SetBatchIndex is a no-op for the static embedder (no thermal management needed).
func (e *StaticEmbedder) SetBatchIndex(_ int) {}

// SetFinalBatch is a no-op for the static embedder (no thermal management needed).
func (e *StaticEmbedder) SetFinalBatch(_ bool) {}
