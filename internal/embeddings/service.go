package embeddings

import (
	"context"
	"fmt"
	"time"

	lcembeddings "github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

// Config holds configuration for the embedding service.
type Config struct {
	// BaseURL is the base URL for the embedding API.
	// For TEI: http://localhost:8080/v1
	// For OpenAI: https://api.openai.com/v1
	BaseURL string

	// Model is the embedding model to use.
	// For TEI: BAAI/bge-small-en-v1.5
	// For OpenAI: text-embedding-ada-002, text-embedding-3-small
	Model string

	// APIKey is the API key (required for OpenAI, optional for TEI).
	APIKey string
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	return nil
}

// Service generates embeddings through an OpenAI-compatible API.
//
// The service uses langchaingo's embeddings abstraction, so the same
// code path serves both a local TEI server and OpenAI's hosted API.
type Service struct {
	embedder *lcembeddings.EmbedderImpl
	config   Config
	metrics  *Metrics
}

// NewService creates a new embedding service with the given configuration.
func NewService(config Config, logger *zap.Logger) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// langchaingo requires a token, use placeholder for TEI
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = "placeholder"
	}

	llm, err := openai.New(
		openai.WithBaseURL(config.BaseURL),
		openai.WithEmbeddingModel(config.Model),
		openai.WithToken(apiKey),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}

	embedder, err := lcembeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	return &Service{
		embedder: embedder,
		config:   config,
		metrics:  NewMetrics(logger),
	}, nil
}

// EmbedQuery embeds a single text.
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	var embErr error
	defer func() {
		s.metrics.RecordGeneration(ctx, s.config.Model, "embed_query", time.Since(start), 1, embErr)
	}()

	if text == "" {
		embErr = fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
		return nil, embErr
	}

	vector, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		embErr = fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
		return nil, embErr
	}
	return vector, nil
}

// EmbedDocuments embeds a batch of texts.
func (s *Service) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	var embErr error
	defer func() {
		s.metrics.RecordGeneration(ctx, s.config.Model, "embed_documents", time.Since(start), len(texts), embErr)
	}()

	if len(texts) == 0 {
		embErr = fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
		return nil, embErr
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		embErr = fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
		return nil, embErr
	}
	return vectors, nil
}

// Ensure Service implements Embedder.
var _ Embedder = (*Service)(nil)
