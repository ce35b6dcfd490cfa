package rag

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/ragd/internal/chunker"
	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// maxEmbedConcurrency bounds parallel embedding calls during document
// ingestion. Chunks are mutually independent, so they may embed in
// parallel; index writes stay sequential to respect the batch limit.
const maxEmbedConcurrency = 8

// AnswerGenerator is the completion step of the pipeline.
type AnswerGenerator interface {
	Generate(ctx context.Context, query, contextText string) (string, error)
}

// Answer is a generated answer with its cited sources. It is built per
// query and handed to the caller; the pipeline retains nothing.
type Answer struct {
	Text    string   `json:"text"`
	Sources []Source `json:"sources"`
}

// IngestRequest describes a document to index.
type IngestRequest struct {
	// DocumentID identifies the document. Required.
	DocumentID string

	// UserID is the owning user. Required.
	UserID string

	// Text is the raw document text. File-format extraction happens
	// upstream; this is plain text.
	Text string

	// PageNumber is the page this text came from. Defaults to 1.
	PageNumber int
}

// IngestResult reports what an ingestion wrote.
type IngestResult struct {
	DocumentID  string    `json:"document_id"`
	ChunkCount  int       `json:"chunk_count"`
	VectorCount int       `json:"vector_count"`
	IngestedAt  time.Time `json:"ingested_at"`
}

// Service is the pipeline entry point: document ingestion, deletion,
// and retrieval-augmented answering.
type Service struct {
	chunker   *chunker.Chunker
	embedder  embeddings.Embedder
	index     vectorstore.Index
	retriever *Retriever
	generator AnswerGenerator
	logger    *zap.Logger
}

// NewService wires the pipeline components together.
func NewService(ch *chunker.Chunker, embedder embeddings.Embedder, index vectorstore.Index, generator AnswerGenerator, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		chunker:   ch,
		embedder:  embedder,
		index:     index,
		retriever: NewRetriever(embedder, index, logger.Named("retriever")),
		generator: generator,
		logger:    logger,
	}
}

// Answer runs the full pipeline for a query: retrieve the user's most
// relevant chunks (optionally restricted to documentIDs), assemble them
// into a grounded prompt context, generate the answer, and extract the
// deduplicated source list. Any component failure propagates; there is
// no partial or fallback answer.
func (s *Service) Answer(ctx context.Context, query string, documentIDs []string, userID string) (*Answer, error) {
	ctx, span := tracer.Start(ctx, "Service.Answer")
	defer span.End()

	if query == "" {
		return nil, fmt.Errorf("%w: query cannot be empty", ErrUnsupportedInput)
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: user id required", ErrUnsupportedInput)
	}

	matches, err := s.retriever.Retrieve(ctx, query, documentIDs, userID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	text, err := s.generator.Generate(ctx, query, AssembleContext(matches))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return &Answer{
		Text:    text,
		Sources: DedupeSources(matches),
	}, nil
}

// IngestDocument chunks, embeds, and indexes a document's text.
//
// Chunk embeddings are computed with bounded concurrency; the index
// write itself is a single sequential batched upsert. A failure after
// some batches were written leaves those vectors committed; callers
// retry the whole ingest, and upserts are idempotent per vector id.
func (s *Service) IngestDocument(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	ctx, span := tracer.Start(ctx, "Service.IngestDocument")
	defer span.End()

	if req.DocumentID == "" {
		return nil, fmt.Errorf("%w: document id required", ErrUnsupportedInput)
	}
	if req.UserID == "" {
		return nil, fmt.Errorf("%w: user id required", ErrUnsupportedInput)
	}
	if req.PageNumber == 0 {
		req.PageNumber = 1
	}

	chunks := s.chunker.Split(req.DocumentID, chunker.Normalize(req.Text))
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: document %s has no chunkable text", ErrUnsupportedInput, req.DocumentID)
	}

	vectors := make([]vectorstore.Vector, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxEmbedConcurrency)
	for i, ch := range chunks {
		g.Go(func() error {
			values, err := s.embedder.EmbedQuery(gctx, ch.Text)
			if err != nil {
				return fmt.Errorf("embedding chunk %d: %w", ch.Index, err)
			}
			vectors[i] = vectorstore.Vector{
				ID:     fmt.Sprintf("%s_chunk_%d", req.DocumentID, ch.Index),
				Values: values,
				Metadata: vectorstore.Metadata{
					Text:       ch.Text,
					DocumentID: req.DocumentID,
					UserID:     req.UserID,
					PageNumber: req.PageNumber,
					ChunkIndex: ch.Index,
				},
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := s.index.Upsert(ctx, req.UserID, vectors); err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.logger.Info("document ingested",
		zap.String("document_id", req.DocumentID),
		zap.String("user_id", req.UserID),
		zap.Int("chunks", len(chunks)),
	)

	return &IngestResult{
		DocumentID:  req.DocumentID,
		ChunkCount:  len(chunks),
		VectorCount: len(vectors),
		IngestedAt:  time.Now().UTC(),
	}, nil
}

// DeleteDocument removes a document's vectors from the index. Cached
// embeddings of the deleted chunk text are left in place: the cache
// only short-circuits API calls, it never affects what is retrievable.
func (s *Service) DeleteDocument(ctx context.Context, documentID string) error {
	ctx, span := tracer.Start(ctx, "Service.DeleteDocument")
	defer span.End()

	if documentID == "" {
		return fmt.Errorf("%w: document id required", ErrUnsupportedInput)
	}

	if err := s.index.DeleteByDocument(ctx, documentID); err != nil {
		span.RecordError(err)
		return err
	}

	s.logger.Info("document vectors deleted", zap.String("document_id", documentID))
	return nil
}
