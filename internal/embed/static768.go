package embed

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/usorama/pingmem/internal/vectorize"
)

// Static768Dimensions is the embedding dimension for the dimension-compatible
// static embedder. This matches the network-backed embedder's 768 dims for
// seamless fallback without re-indexing.
const Static768Dimensions = 768

// StaticEmbedder768 generates 768-dimensional embeddings using the same
// deterministic feature-hashing vectorizer as StaticEmbedder, at a width
// that matches the network-backed embedder for seamless fallback.
type StaticEmbedder768 struct {
	mu     sync.RWMutex
	closed bool
	v      *vectorize.Vectorizer
}

// NewStaticEmbedder768 creates a new dimension-compatible static embedder.
func NewStaticEmbedder768() *StaticEmbedder768 {
	return &StaticEmbedder768{v: vectorize.New(Static768Dimensions)}
}

// Embed generates embedding for a single text.
func (e *StaticEmbedder768) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if strings.TrimSpace(text) == "" {
		return make([]float32, Static768Dimensions), nil
	}
	return e.v.Vectorize(text), nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *StaticEmbedder768) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
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
func (e *StaticEmbedder768) Dimensions() int { return Static768Dimensions }

// ModelName returns the model identifier.
func (e *StaticEmbedder768) ModelName() string { return "static768" }

// Available checks if the embedder is ready (always true for static).
func (e *StaticEmbedder768) Available(_ context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close releases resources.
func (e *StaticEmbedder768) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// SetBatchIndex is a no-op (no thermal management needed).
func (e *StaticEmbedder768) SetBatchIndex(_ int) {}

// SetFinalBatch is a no-op (no thermal management needed).
func (e *StaticEmbedder768) SetFinalBatch(_ bool) {}
