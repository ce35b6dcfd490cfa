// Package config provides configuration loading for ragd.
package config

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig indicates invalid configuration.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the daemon configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Qdrant     QdrantConfig     `koanf:"qdrant"`
	Embedding  EmbeddingConfig  `koanf:"embedding"`
	Generation GenerationConfig `koanf:"generation"`
	Chunking   ChunkingConfig   `koanf:"chunking"`
	Logging    LoggingConfig    `koanf:"logging"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
}

// ServerConfig configures the HTTP API listener.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// QdrantConfig configures the vector index connection.
type QdrantConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	Collection string `koanf:"collection"`
	VectorSize uint64 `koanf:"vector_size"`
	UseTLS     bool   `koanf:"use_tls"`
}

// EmbeddingConfig configures the embedding service client.
type EmbeddingConfig struct {
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
	APIKey  Secret `koanf:"api_key"`
}

// GenerationConfig configures the completion service client.
type GenerationConfig struct {
	BaseURL     string  `koanf:"base_url"`
	Model       string  `koanf:"model"`
	APIKey      Secret  `koanf:"api_key"`
	Temperature float64 `koanf:"temperature"`
	MaxTokens   int     `koanf:"max_tokens"`
}

// ChunkingConfig configures document chunking.
type ChunkingConfig struct {
	MaxChunkSize      int `koanf:"max_chunk_size"`
	Overlap           int `koanf:"overlap"`
	SentenceLookahead int `koanf:"sentence_lookahead"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig configures OpenTelemetry export.
//
// Disabled by default; deployments without an OTLP collector run with
// no-op providers.
type TelemetryConfig struct {
	Enabled        bool     `koanf:"enabled"`
	Endpoint       string   `koanf:"endpoint"`
	Protocol       string   `koanf:"protocol"` // "grpc" or "http/protobuf"
	Insecure       bool     `koanf:"insecure"`
	SampleRate     float64  `koanf:"sample_rate"`
	MetricInterval Duration `koanf:"metric_interval"`
}

// Default returns the configuration defaults applied before file and
// environment overrides.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8090,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Qdrant: QdrantConfig{
			Host:       "localhost",
			Port:       6334,
			Collection: "documents",
			VectorSize: 1536,
		},
		Embedding: EmbeddingConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "text-embedding-ada-002",
		},
		Generation: GenerationConfig{
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4",
			Temperature: 0.7,
			MaxTokens:   1000,
		},
		Chunking: ChunkingConfig{
			MaxChunkSize:      1000,
			Overlap:           200,
			SentenceLookahead: 100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Enabled:        false,
			Endpoint:       "localhost:4317",
			Protocol:       "grpc",
			Insecure:       true,
			SampleRate:     1.0,
			MetricInterval: Duration(15 * time.Second),
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server port out of range: %d", ErrInvalidConfig, c.Server.Port)
	}
	if c.Qdrant.Host == "" {
		return fmt.Errorf("%w: qdrant host required", ErrInvalidConfig)
	}
	if c.Qdrant.Port <= 0 || c.Qdrant.Port > 65535 {
		return fmt.Errorf("%w: qdrant port out of range: %d", ErrInvalidConfig, c.Qdrant.Port)
	}
	if c.Qdrant.Collection == "" {
		return fmt.Errorf("%w: qdrant collection required", ErrInvalidConfig)
	}
	if c.Qdrant.VectorSize == 0 {
		return fmt.Errorf("%w: qdrant vector size required", ErrInvalidConfig)
	}
	if c.Embedding.BaseURL == "" {
		return fmt.Errorf("%w: embedding base URL required", ErrInvalidConfig)
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("%w: embedding model required", ErrInvalidConfig)
	}
	if c.Generation.Model == "" {
		return fmt.Errorf("%w: generation model required", ErrInvalidConfig)
	}
	if c.Generation.MaxTokens <= 0 {
		return fmt.Errorf("%w: generation max tokens must be positive", ErrInvalidConfig)
	}
	if c.Chunking.MaxChunkSize <= 0 {
		return fmt.Errorf("%w: chunking max chunk size must be positive", ErrInvalidConfig)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.MaxChunkSize {
		return fmt.Errorf("%w: chunking overlap must be in [0, max_chunk_size)", ErrInvalidConfig)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("%w: logging format must be json or console, got %q", ErrInvalidConfig, c.Logging.Format)
	}
	if c.Telemetry.Enabled {
		if c.Telemetry.Endpoint == "" {
			return fmt.Errorf("%w: telemetry endpoint required when enabled", ErrInvalidConfig)
		}
		switch c.Telemetry.Protocol {
		case "grpc", "http/protobuf":
		default:
			return fmt.Errorf("%w: telemetry protocol must be grpc or http/protobuf, got %q", ErrInvalidConfig, c.Telemetry.Protocol)
		}
		if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
			return fmt.Errorf("%w: telemetry sample rate must be in [0, 1], got %f", ErrInvalidConfig, c.Telemetry.SampleRate)
		}
		if c.Telemetry.MetricInterval.Duration() <= 0 {
			return fmt.Errorf("%w: telemetry metric interval must be positive", ErrInvalidConfig)
		}
	}
	return nil
}
