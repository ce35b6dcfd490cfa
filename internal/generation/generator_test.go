package generation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// fakeModel is an llms.Model returning canned responses.
type fakeModel struct {
	resp     *llms.ContentResponse
	err      error
	messages []llms.MessageContent
	opts     llms.CallOptions
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	for _, opt := range options {
		opt(&f.opts)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	resp, err := f.GenerateContent(ctx, []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)}, options...)
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Content, nil
}

func defaultConfig() Config {
	c := Config{}
	c.ApplyDefaults()
	return c
}

func TestConfigDefaults(t *testing.T) {
	c := defaultConfig()
	assert.Equal(t, "gpt-4", c.Model)
	assert.InDelta(t, 0.7, c.Temperature, 1e-9)
	assert.Equal(t, 1000, c.MaxTokens)
	require.NoError(t, c.Validate())
}

func TestGeneratePromptShape(t *testing.T) {
	fake := &fakeModel{resp: &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: "  The answer.  "}},
	}}
	g := newGenerator(fake, defaultConfig(), nil)

	answer, err := g.Generate(context.Background(), "What does Alpha like?", "[Source 1]\nAlpha likes cats.\nDocument: doc-1, Page: 1")
	require.NoError(t, err)
	assert.Equal(t, "The answer.", answer, "answer text is trimmed")

	require.Len(t, fake.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, fake.messages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, fake.messages[1].Role)

	system, ok := fake.messages[0].Parts[0].(llms.TextContent)
	require.True(t, ok)
	assert.Contains(t, system.Text, "Use the following context")
	assert.Contains(t, system.Text, "Alpha likes cats.", "context is interpolated verbatim")

	user, ok := fake.messages[1].Parts[0].(llms.TextContent)
	require.True(t, ok)
	assert.Equal(t, "What does Alpha like?", user.Text)

	// Fixed decoding parameters.
	assert.Equal(t, "gpt-4", fake.opts.Model)
	assert.InDelta(t, 0.7, fake.opts.Temperature, 1e-9)
	assert.Equal(t, 1000, fake.opts.MaxTokens)
}

func TestGenerateFailures(t *testing.T) {
	tests := []struct {
		name string
		fake *fakeModel
	}{
		{
			name: "upstream error",
			fake: &fakeModel{err: errors.New("rate limited")},
		},
		{
			name: "nil response",
			fake: &fakeModel{resp: nil},
		},
		{
			name: "no choices",
			fake: &fakeModel{resp: &llms.ContentResponse{}},
		},
		{
			name: "empty completion",
			fake: &fakeModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "   "}}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGenerator(tt.fake, defaultConfig(), nil)
			_, err := g.Generate(context.Background(), "query", "context")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrGenerationFailed)
		})
	}
}
