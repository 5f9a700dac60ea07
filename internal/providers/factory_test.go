package providers_test

import (
	"testing"

	"github.com/momo-mem/momo/internal/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLLM_DispatchesOnProviderPrefix(t *testing.T) {
	llm, err := providers.NewLLM(providers.LLMFactoryConfig{Provider: "ollama/qwen2.5:7b"})
	require.NoError(t, err)
	assert.Equal(t, "qwen2.5:7b", llm.Model())

	llm, err = providers.NewLLM(providers.LLMFactoryConfig{Provider: "openai/gpt-4o-mini"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", llm.Model())

	llm, err = providers.NewLLM(providers.LLMFactoryConfig{Provider: "anthropic/claude-haiku-4-5-20251001"})
	require.NoError(t, err)
	assert.Equal(t, "claude-haiku-4-5-20251001", llm.Model())
}

func TestNewLLM_BareModelDefaultsToOllama(t *testing.T) {
	llm, err := providers.NewLLM(providers.LLMFactoryConfig{Provider: "qwen2.5:7b"})
	require.NoError(t, err)
	assert.Equal(t, "qwen2.5:7b", llm.Model())
}

func TestNewLLM_UnknownProviderIsRejected(t *testing.T) {
	_, err := providers.NewLLM(providers.LLMFactoryConfig{Provider: "bogus/model"})
	require.Error(t, err)
}

func TestNewEmbedder_AnthropicIsRejected(t *testing.T) {
	_, err := providers.NewEmbedder(providers.EmbeddingFactoryConfig{Model: "anthropic/whatever"})
	require.Error(t, err)
}

func TestNewEmbedder_DispatchesOnProviderPrefix(t *testing.T) {
	e, err := providers.NewEmbedder(providers.EmbeddingFactoryConfig{Model: "local/test", Dimensions: 8})
	require.NoError(t, err)
	assert.Equal(t, 8, e.Dimension())
}
