// Package embeddings converts text to fixed-length vectors via an
// OpenAI-compatible embedding API, with memoized caching.
package embeddings

import (
	"context"
	"errors"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates the upstream embedding service
	// returned an error or timed out.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Embedder generates vector embeddings from text.
type Embedder interface {
	// EmbedQuery embeds a single text.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// EmbedDocuments embeds a batch of texts, returning one vector
	// per input in the same order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}
