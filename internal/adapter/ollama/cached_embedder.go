package ollama

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"atlas-rag/internal/domain"
)

// CachedEmbedder memoizes single-text embeddings in an LRU cache. Query
// embeddings repeat across conversation turns, and the embedding gateway
// round-trip dominates retrieval latency for cache hits. Batch calls bypass
// the cache since document chunks are embedded once.
type CachedEmbedder struct {
	inner domain.Embedder
	cache *lru.Cache[string, []float32]
}

func NewCachedEmbedder(inner domain.Embedder, size int) (*CachedEmbedder, error) {
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &CachedEmbedder{inner: inner, cache: cache}, nil
}

func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := e.cache.Get(text); ok {
		return vec, nil
	}
	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Add(text, vec)
	return vec, nil
}

func (e *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return e.inner.EmbedBatch(ctx, texts)
}

func (e *CachedEmbedder) Model() string {
	return e.inner.Model()
}

var _ domain.Embedder = (*CachedEmbedder)(nil)
