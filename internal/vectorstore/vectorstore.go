// Package vectorstore adapts an external similarity-search service for
// chunk vector storage and top-K retrieval.
package vectorstore

import (
	"context"
	"errors"
)

var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidCollectionName indicates a collection name that fails
	// validation rules.
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrConnectionFailed indicates the index service is unreachable.
	ErrConnectionFailed = errors.New("connection to vector index failed")

	// ErrIndexWrite indicates an upsert batch failed. Batches already
	// written stay committed; the caller tolerates or retries.
	ErrIndexWrite = errors.New("vector index write failed")

	// ErrIndexQuery indicates a similarity query failed.
	ErrIndexQuery = errors.New("vector index query failed")

	// ErrIndexDelete indicates a delete operation failed.
	ErrIndexDelete = errors.New("vector index delete failed")
)

// Metadata is the payload stored alongside each vector. It carries
// everything retrieval needs so the index is the system of record for
// chunk text.
type Metadata struct {
	// Text is the chunk text.
	Text string

	// DocumentID identifies the source document.
	DocumentID string

	// UserID identifies the owning user. Every query is scoped to a
	// single user's vectors.
	UserID string

	// PageNumber is the page of the source document the chunk came from.
	PageNumber int

	// ChunkIndex is the chunk's position within its document.
	ChunkIndex int
}

// Vector is a chunk embedding ready for indexing.
type Vector struct {
	// ID is the caller-assigned vector identifier, preserved in the
	// payload for later retrieval and deletion.
	ID string

	// Values is the embedding.
	Values []float32

	// Metadata is the retrieval payload.
	Metadata Metadata
}

// Match is a retrieved chunk with its similarity score. Result sets are
// ordered by descending score.
type Match struct {
	Text       string
	DocumentID string
	PageNumber int
	Score      float32
}

// Index is the contract against the external nearest-neighbor service.
type Index interface {
	// Upsert writes vectors for the given user. Writes are batched;
	// a failure leaves earlier batches committed.
	Upsert(ctx context.Context, userID string, vectors []Vector) error

	// Query returns up to topK matches for the query vector among the
	// user's vectors, sorted by descending score. A non-empty
	// documentIDs slice restricts matches to those documents.
	Query(ctx context.Context, userID string, vector []float32, topK int, documentIDs []string) ([]Match, error)

	// DeleteByDocument removes every vector belonging to documentID.
	DeleteByDocument(ctx context.Context, documentID string) error

	// Close releases the underlying connection.
	Close() error
}
