// Package rag implements the retrieval-augmented answer pipeline:
// scoped similarity retrieval, context assembly, grounded generation,
// and deduplicated source citations.
package rag

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// topK is the fixed number of chunks retrieved per query.
const topK = 5

var tracer = otel.Tracer("ragd.rag")

var (
	// ErrRetrieval indicates the retrieval step failed, wrapping the
	// underlying embedding or index error. Retrieval is all-or-nothing:
	// no partial result is ever returned.
	ErrRetrieval = errors.New("retrieval failed")

	// ErrUnsupportedInput indicates document text that cannot be
	// ingested (empty after normalization).
	ErrUnsupportedInput = errors.New("unsupported document input")
)

// Retriever produces ranked, scoped chunk matches for a query.
type Retriever struct {
	embedder embeddings.Embedder
	index    vectorstore.Index
	logger   *zap.Logger
}

// NewRetriever creates a Retriever over the given embedder and index.
func NewRetriever(embedder embeddings.Embedder, index vectorstore.Index, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{
		embedder: embedder,
		index:    index,
		logger:   logger,
	}
}

// Retrieve embeds the query and returns the user's topK most similar
// chunks, sorted by descending score. An empty documentIDs slice means
// all of the user's documents. If the embedding step fails, the index
// is never queried.
func (r *Retriever) Retrieve(ctx context.Context, query string, documentIDs []string, userID string) ([]vectorstore.Match, error) {
	ctx, span := tracer.Start(ctx, "Retriever.Retrieve")
	defer span.End()

	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: embedding query: %w", ErrRetrieval, err)
	}

	matches, err := r.index.Query(ctx, userID, vector, topK, documentIDs)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: querying index: %w", ErrRetrieval, err)
	}

	r.logger.Debug("retrieved matches",
		zap.String("user_id", userID),
		zap.Int("document_scope", len(documentIDs)),
		zap.Int("matches", len(matches)),
	)
	return matches, nil
}
