package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "bad server port", mutate: func(c *Config) { c.Server.Port = 0 }},
		{name: "missing qdrant host", mutate: func(c *Config) { c.Qdrant.Host = "" }},
		{name: "missing qdrant collection", mutate: func(c *Config) { c.Qdrant.Collection = "" }},
		{name: "zero vector size", mutate: func(c *Config) { c.Qdrant.VectorSize = 0 }},
		{name: "missing embedding model", mutate: func(c *Config) { c.Embedding.Model = "" }},
		{name: "missing generation model", mutate: func(c *Config) { c.Generation.Model = "" }},
		{name: "zero max tokens", mutate: func(c *Config) { c.Generation.MaxTokens = 0 }},
		{name: "overlap not below chunk size", mutate: func(c *Config) { c.Chunking.Overlap = c.Chunking.MaxChunkSize }},
		{name: "bad logging format", mutate: func(c *Config) { c.Logging.Format = "xml" }},
		{name: "telemetry enabled without endpoint", mutate: func(c *Config) {
			c.Telemetry.Enabled = true
			c.Telemetry.Endpoint = ""
		}},
		{name: "bad telemetry protocol", mutate: func(c *Config) {
			c.Telemetry.Enabled = true
			c.Telemetry.Protocol = "udp"
		}},
		{name: "telemetry sample rate above one", mutate: func(c *Config) {
			c.Telemetry.Enabled = true
			c.Telemetry.SampleRate = 1.5
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9999
qdrant:
  collection: my_docs
embedding:
  model: text-embedding-3-small
  api_key: secret-key
chunking:
  max_chunk_size: 500
  overlap: 100
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "my_docs", cfg.Qdrant.Collection)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedding.Model)
	assert.Equal(t, "secret-key", cfg.Embedding.APIKey.Value())
	assert.Equal(t, 500, cfg.Chunking.MaxChunkSize)
	assert.Equal(t, 100, cfg.Chunking.Overlap)

	// Untouched sections keep their defaults.
	assert.Equal(t, "gpt-4", cfg.Generation.Model)
	assert.Equal(t, 6334, cfg.Qdrant.Port)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9999\n"), 0o600))

	t.Setenv("RAGD_SERVER_PORT", "7777")
	t.Setenv("RAGD_QDRANT_VECTOR_SIZE", "384")
	t.Setenv("RAGD_GENERATION_MAX_TOKENS", "500")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, uint64(384), cfg.Qdrant.VectorSize)
	assert.Equal(t, 500, cfg.Generation.MaxTokens)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Server.Port, cfg.Server.Port)
}

func TestLoadInvalidConfigRejected(t *testing.T) {
	t.Setenv("RAGD_LOGGING_FORMAT", "xml")
	_, err := Load("")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestEnvTransform(t *testing.T) {
	assert.Equal(t, "server.port", envTransform("RAGD_SERVER_PORT"))
	assert.Equal(t, "qdrant.vector_size", envTransform("RAGD_QDRANT_VECTOR_SIZE"))
	assert.Equal(t, "embedding.api_key", envTransform("RAGD_EMBEDDING_API_KEY"))
}

func TestSecretRedaction(t *testing.T) {
	s := Secret("super-secret")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, "super-secret", s.Value())
	assert.True(t, s.IsSet())

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Equal(t, `"[REDACTED]"`, string(data))

	assert.Equal(t, "", Secret("").String())
	assert.False(t, Secret("").IsSet())
}

func TestDurationText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Duration())

	require.Error(t, d.UnmarshalText([]byte("-5s")))
	require.Error(t, d.UnmarshalText([]byte("bogus")))

	text, err := Duration(2 * time.Second).MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "2s", string(text))
}
