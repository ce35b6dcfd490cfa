package embeddings

import (
	"context"
	"strings"
	"sync"
)

// Cache memoizes embedding vectors keyed by normalized input text.
//
// Keys are content-addressed (trimmed, case-folded), so a cached vector
// can never be stale for its key as long as the upstream model is
// deterministic for identical text. The cache is unbounded for the
// process lifetime; inputs are de-duplicated short chunks and queries,
// so growth is modest in practice.
//
// The cache is an explicit object with an owned lifecycle: construct it
// once at startup and inject it wherever needed. Tests can swap in a
// fresh or pre-seeded instance.
type Cache struct {
	mu      sync.RWMutex
	vectors map[string][]float32
}

// NewCache creates an empty embedding cache.
func NewCache() *Cache {
	return &Cache{vectors: make(map[string][]float32)}
}

// NormalizeKey derives the cache key for a text: trimmed and lowercased.
func NormalizeKey(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// Get returns the cached vector for text, if present. The vector is
// stored and returned whole under the lock, so a reader never observes
// a partially written entry. The returned slice is a copy; callers may
// mutate it without corrupting the cached entry.
func (c *Cache) Get(text string) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	vector, ok := c.vectors[NormalizeKey(text)]
	if !ok {
		return nil, false
	}
	out := make([]float32, len(vector))
	copy(out, vector)
	return out, true
}

// Put stores a vector under the normalized key for text. The slice is
// copied, so later caller mutations do not reach the cache.
func (c *Cache) Put(text string, vector []float32) {
	stored := make([]float32, len(vector))
	copy(stored, vector)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vectors[NormalizeKey(text)] = stored
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.vectors)
}

// CachedEmbedder wraps an Embedder with a Cache so that each unique
// normalized text triggers at most one upstream call on the happy path.
// Two identical simultaneous misses may both call upstream; the later
// write wins, which is harmless because both computed the same value.
// Failed calls are never cached.
type CachedEmbedder struct {
	embedder Embedder
	cache    *Cache
	metrics  *Metrics
}

// NewCachedEmbedder wraps embedder with cache. A nil cache gets a fresh
// one, so the zero-config path still behaves correctly.
func NewCachedEmbedder(embedder Embedder, cache *Cache, metrics *Metrics) *CachedEmbedder {
	if cache == nil {
		cache = NewCache()
	}
	return &CachedEmbedder{
		embedder: embedder,
		cache:    cache,
		metrics:  metrics,
	}
}

// EmbedQuery returns the cached vector for text when present, calling
// upstream only on a miss.
func (e *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if vector, ok := e.cache.Get(text); ok {
		e.metrics.RecordCacheHit(ctx)
		return vector, nil
	}
	e.metrics.RecordCacheMiss(ctx)

	vector, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Put(text, vector)
	return vector, nil
}

// EmbedDocuments embeds texts, serving cached entries and batching the
// remaining misses into a single upstream call.
func (e *CachedEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return e.embedder.EmbedDocuments(ctx, texts)
	}

	vectors := make([][]float32, len(texts))
	var missed []string
	var missedIdx []int
	for i, text := range texts {
		if vector, ok := e.cache.Get(text); ok {
			e.metrics.RecordCacheHit(ctx)
			vectors[i] = vector
			continue
		}
		e.metrics.RecordCacheMiss(ctx)
		missed = append(missed, text)
		missedIdx = append(missedIdx, i)
	}

	if len(missed) > 0 {
		fresh, err := e.embedder.EmbedDocuments(ctx, missed)
		if err != nil {
			return nil, err
		}
		for j, vector := range fresh {
			vectors[missedIdx[j]] = vector
			e.cache.Put(missed[j], vector)
		}
	}
	return vectors, nil
}

// Ensure CachedEmbedder implements Embedder.
var _ Embedder = (*CachedEmbedder)(nil)
