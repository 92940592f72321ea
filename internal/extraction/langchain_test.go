package extraction

import (
	"context"
	"errors"
	"testing"

	"github.com/fyrsmithlabs/metricsd/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

// fakeModel is an llms.Model returning canned content.
type fakeModel struct {
	content  string
	err      error
	empty    bool
	messages []llms.MessageContent
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	if f.err != nil {
		return nil, f.err
	}
	if f.empty {
		return &llms.ContentResponse{}, nil
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: f.content}},
	}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func textOf(t *testing.T, m llms.MessageContent) string {
	t.Helper()
	require.Len(t, m.Parts, 1)
	part, ok := m.Parts[0].(llms.TextContent)
	require.True(t, ok, "part is %T", m.Parts[0])
	return part.Text
}

func TestNewLangchainBackend_NilModel(t *testing.T) {
	_, err := NewLangchainBackend(nil)
	assert.Error(t, err)
}

func TestLangchainBackend_SendsInstructionAndExpression(t *testing.T) {
	model := &fakeModel{content: `{"identifiers": ["cpu.usage"], "confidence": 0.9}`}
	b, err := NewLangchainBackend(model)
	require.NoError(t, err)

	raw, err := b.Extract(context.Background(), "cpu.usage * 2", Instruction)
	require.NoError(t, err)

	require.Len(t, model.messages, 2)
	assert.Equal(t, schema.ChatMessageTypeSystem, model.messages[0].Role)
	assert.Equal(t, Instruction, textOf(t, model.messages[0]))
	assert.Equal(t, schema.ChatMessageTypeHuman, model.messages[1].Role)
	assert.Equal(t, "cpu.usage * 2", textOf(t, model.messages[1]))

	assert.Equal(t, Result{Identifiers: []string{"cpu.usage"}, Confidence: 0.9}, Normalize(raw))
}

func TestLangchainBackend_DecodesWrappedJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"markdown fence", "```json\n{\"identifiers\": [\"a.b\"], \"confidence\": 1}\n```"},
		{"bare fence", "```\n{\"identifiers\": [\"a.b\"], \"confidence\": 1}\n```"},
		{"prose around", "Here you go: {\"identifiers\": [\"a.b\"], \"confidence\": 1} Hope that helps."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewLangchainBackend(&fakeModel{content: tt.content})
			require.NoError(t, err)

			raw, err := b.Extract(context.Background(), "a.b", Instruction)
			require.NoError(t, err)
			assert.Equal(t, []string{"a.b"}, Normalize(raw).Identifiers)
		})
	}
}

func TestLangchainBackend_InvalidResponse(t *testing.T) {
	for name, model := range map[string]*fakeModel{
		"not json":   {content: "I cannot help with that."},
		"no choices": {empty: true},
	} {
		t.Run(name, func(t *testing.T) {
			b, err := NewLangchainBackend(model)
			require.NoError(t, err)

			_, err = b.Extract(context.Background(), "a.b", Instruction)
			var e *Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, KindInvalidResponse, e.Kind)
		})
	}
}

func TestLangchainBackend_ProviderErrorPassesThrough(t *testing.T) {
	cause := errors.New("API returned unexpected status code: 401")
	b, err := NewLangchainBackend(&fakeModel{err: cause})
	require.NoError(t, err)

	_, err = b.Extract(context.Background(), "a.b", Instruction)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindAuthentication, Classify(err))
}

func TestLangchainBackend_WithLLMExtractor(t *testing.T) {
	model := &fakeModel{content: `{"identifiers": ["CPU.Usage", "memory.total"], "confidence": 0.92}`}
	b, err := NewLangchainBackend(model)
	require.NoError(t, err)
	x, err := NewLLMExtractor(b, fastConfig(), nil)
	require.NoError(t, err)

	ids, err := x.Parse(context.Background(), "CPU.Usage / memory.total")
	require.NoError(t, err)
	assert.Equal(t, []string{"cpu.usage", "memory.total"}, ids)
}

func TestNewProviderModel(t *testing.T) {
	_, err := NewProviderModel(config.ExtractionConfig{Provider: "openai"})
	assert.ErrorContains(t, err, "API key required")

	_, err = NewProviderModel(config.ExtractionConfig{Provider: "bogus", APIKey: "k"})
	assert.ErrorContains(t, err, "unknown llm provider")

	m, err := NewProviderModel(config.ExtractionConfig{Provider: "openai", APIKey: "sk-test", Model: "gpt-4o-mini"})
	require.NoError(t, err)
	assert.NotNil(t, m)

	m, err = NewProviderModel(config.ExtractionConfig{Provider: "anthropic", APIKey: "sk-ant-test", Model: "claude-3-5-haiku-latest"})
	require.NoError(t, err)
	assert.NotNil(t, m)

	_, err = NewProviderModel(config.ExtractionConfig{Provider: "anthropic", APIKey: "sk-ant-test", BaseURL: "http://proxy.local"})
	assert.ErrorContains(t, err, "base URL")
}
