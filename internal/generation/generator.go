// Package generation produces grounded answers by prompting a chat
// completion model with retrieved context.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrGenerationFailed indicates the completion service failed or
	// returned a malformed or empty response.
	ErrGenerationFailed = errors.New("answer generation failed")
)

// systemPromptFormat instructs the model to answer only from the
// supplied context and to admit when the context is insufficient. The
// assembled context is interpolated verbatim.
const systemPromptFormat = "You are a helpful assistant. Use the following context to answer the question. If you don't know the answer, say you don't know.\n\nContext: %s"

// Config holds configuration for the answer generator.
type Config struct {
	// BaseURL is the completion API base URL.
	BaseURL string

	// Model is the chat model identifier.
	Model string

	// APIKey authenticates against the completion API.
	APIKey string

	// Temperature is the sampling temperature.
	Temperature float64

	// MaxTokens caps the completion length.
	MaxTokens int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Model == "" {
		c.Model = "gpt-4"
	}
	if c.Temperature == 0 {
		c.Temperature = 0.7
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 1000
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: temperature must be in [0, 2], got %v", ErrInvalidConfig, c.Temperature)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("%w: max tokens must be positive, got %d", ErrInvalidConfig, c.MaxTokens)
	}
	return nil
}

// Generator turns a query and assembled context into an answer via a
// chat completion model. It fails fast: no internal retry, no partial
// answers.
type Generator struct {
	model  llms.Model
	config Config
	logger *zap.Logger
}

// NewGenerator creates a Generator backed by an OpenAI-compatible chat
// completion API.
func NewGenerator(config Config, logger *zap.Logger) (*Generator, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	opts := []openai.Option{
		openai.WithModel(config.Model),
		openai.WithToken(config.APIKey),
	}
	if config.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(config.BaseURL))
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}

	return newGenerator(model, config, logger), nil
}

// newGenerator wires a Generator around any llms.Model. Split out so
// tests can supply a fake model.
func newGenerator(model llms.Model, config Config, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		model:  model,
		config: config,
		logger: logger,
	}
}

// Generate builds a system+user prompt from context and query, invokes
// the completion model, and returns the trimmed text of the first
// choice.
func (g *Generator) Generate(ctx context.Context, query, contextText string) (string, error) {
	start := time.Now()

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, fmt.Sprintf(systemPromptFormat, contextText)),
		llms.TextParts(llms.ChatMessageTypeHuman, query),
	}

	resp, err := g.model.GenerateContent(ctx, messages,
		llms.WithModel(g.config.Model),
		llms.WithTemperature(g.config.Temperature),
		llms.WithMaxTokens(g.config.MaxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no completion choices returned", ErrGenerationFailed)
	}

	answer := strings.TrimSpace(resp.Choices[0].Content)
	if answer == "" {
		return "", fmt.Errorf("%w: empty completion", ErrGenerationFailed)
	}

	g.logger.Debug("generated answer",
		zap.String("model", g.config.Model),
		zap.Int("answer_chars", len(answer)),
		zap.Duration("duration", time.Since(start)),
	)
	return answer, nil
}
